package activity

import "context"

// Edge is one item of a paginated activity list.
type Edge struct {
	GasUsed     uint64
	BlockNumber uint64
}

// Page is one page of a cursor-paginated list.
type Page struct {
	Edges       []Edge
	HasNextPage bool
	EndCursor   string
}

// Indexer is the query surface of a chain indexing service.
//
// Implementations may ignore the range passed to the page queries; the
// fetcher filters edges client-side either way.
type Indexer interface {
	ChainHead(ctx context.Context) (uint64, error)
	CumulativeStats(ctx context.Context, address string) (ContractStats, error)
	TransactionPage(ctx context.Context, address string, rng BlockRange, after string) (Page, error)
	TokenTransferPage(ctx context.Context, address string, rng BlockRange, after string) (Page, error)
}
