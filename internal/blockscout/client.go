// Package blockscout queries a Blockscout explorer over its GraphQL and
// REST APIs.
package blockscout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/web3-frozen/chain-activity/internal/activity"
	"github.com/web3-frozen/chain-activity/internal/metrics"
)

const (
	DefaultGraphQLURL = "https://hashkey.blockscout.com/api/v1/graphql"
	DefaultAPIURL     = "https://hashkey.blockscout.com/api/v2"
	DefaultPageSize   = 100
)

// Client implements activity.Indexer against Blockscout.
type Client struct {
	graphqlURL string
	apiURL     string
	pageSize   int
	http       *http.Client
}

var _ activity.Indexer = (*Client)(nil)

func New(graphqlURL, apiURL string, pageSize int, timeout time.Duration) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if timeout <= 0 {
		timeout = activity.DefaultCallTimeout
	}
	return &Client{
		graphqlURL: graphqlURL,
		apiURL:     strings.TrimRight(apiURL, "/"),
		pageSize:   pageSize,
		http:       &http.Client{Timeout: timeout},
	}
}

const (
	addressTotalsQuery = `query AddressTotals($hash: AddressHash!) {
  address(hash: $hash) { hash gasUsed transactionsCount tokenTransfersCount }
}`

	transactionsQuery = `query AddressTransactions($hash: AddressHash!, $first: Int!, $after: String) {
  address(hash: $hash) {
    transactions(first: $first, after: $after) {
      edges { node { gasUsed blockNumber } }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

	tokenTransfersQuery = `query AddressTokenTransfers($hash: AddressHash!, $first: Int!, $after: String) {
  address(hash: $hash) {
    tokenTransfers(first: $first, after: $after) {
      edges { node { blockNumber } }
      pageInfo { hasNextPage endCursor }
    }
  }
}`
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type connection struct {
	Edges []struct {
		Node struct {
			GasUsed     flexUint `json:"gasUsed"`
			BlockNumber flexUint `json:"blockNumber"`
		} `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool    `json:"hasNextPage"`
		EndCursor   *string `json:"endCursor"`
	} `json:"pageInfo"`
}

func (c connection) page() activity.Page {
	p := activity.Page{HasNextPage: c.PageInfo.HasNextPage}
	if c.PageInfo.EndCursor != nil {
		p.EndCursor = *c.PageInfo.EndCursor
	}
	p.Edges = make([]activity.Edge, len(c.Edges))
	for i, e := range c.Edges {
		p.Edges[i] = activity.Edge{GasUsed: uint64(e.Node.GasUsed), BlockNumber: uint64(e.Node.BlockNumber)}
	}
	return p
}

// ChainHead returns the height of the newest indexed block.
func (c *Client) ChainHead(ctx context.Context) (uint64, error) {
	var body struct {
		Items []struct {
			Height flexUint `json:"height"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "blocks", c.apiURL+"/blocks?limit=1", &body); err != nil {
		return 0, err
	}
	if len(body.Items) == 0 {
		return 0, fmt.Errorf("blocks: %w: empty items", activity.ErrSchemaMismatch)
	}
	return uint64(body.Items[0].Height), nil
}

// CumulativeStats returns the address's lifetime counters.
func (c *Client) CumulativeStats(ctx context.Context, address string) (activity.ContractStats, error) {
	var data struct {
		Address *struct {
			GasUsed             flexUint `json:"gasUsed"`
			TransactionsCount   flexUint `json:"transactionsCount"`
			TokenTransfersCount flexUint `json:"tokenTransfersCount"`
		} `json:"address"`
	}
	if err := c.query(ctx, "address_totals", addressTotalsQuery, map[string]any{"hash": address}, &data); err != nil {
		return activity.ContractStats{}, err
	}
	if data.Address == nil {
		return activity.ContractStats{}, fmt.Errorf("address %s: %w: not indexed", address, activity.ErrSchemaMismatch)
	}
	return activity.ContractStats{
		GasUsed:             uint64(data.Address.GasUsed),
		TransactionsCount:   uint64(data.Address.TransactionsCount),
		TokenTransfersCount: uint64(data.Address.TokenTransfersCount),
	}, nil
}

// TransactionPage returns one page of the address's transactions. The
// GraphQL API cannot filter by block, so rng is left to the caller.
func (c *Client) TransactionPage(ctx context.Context, address string, _ activity.BlockRange, after string) (activity.Page, error) {
	var data struct {
		Address *struct {
			Transactions connection `json:"transactions"`
		} `json:"address"`
	}
	if err := c.query(ctx, "transactions", transactionsQuery, c.pageVars(address, after), &data); err != nil {
		return activity.Page{}, err
	}
	if data.Address == nil {
		return activity.Page{}, fmt.Errorf("address %s: %w: not indexed", address, activity.ErrSchemaMismatch)
	}
	return data.Address.Transactions.page(), nil
}

// TokenTransferPage returns one page of the address's token transfers.
func (c *Client) TokenTransferPage(ctx context.Context, address string, _ activity.BlockRange, after string) (activity.Page, error) {
	var data struct {
		Address *struct {
			TokenTransfers connection `json:"tokenTransfers"`
		} `json:"address"`
	}
	if err := c.query(ctx, "token_transfers", tokenTransfersQuery, c.pageVars(address, after), &data); err != nil {
		return activity.Page{}, err
	}
	if data.Address == nil {
		return activity.Page{}, fmt.Errorf("address %s: %w: not indexed", address, activity.ErrSchemaMismatch)
	}
	return data.Address.TokenTransfers.page(), nil
}

func (c *Client) pageVars(address, after string) map[string]any {
	vars := map[string]any{"hash": address, "first": c.pageSize}
	if after != "" {
		vars["after"] = after
	}
	return vars
}

// query posts a GraphQL request and decodes its data into out.
func (c *Client) query(ctx context.Context, call, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", call, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", call, err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(call, req)
	if err != nil {
		return err
	}

	var resp graphQLResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode %s: %w: %v", call, activity.ErrSchemaMismatch, err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("%s: %w: %s", call, activity.ErrSchemaMismatch, strings.Join(msgs, "; "))
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return fmt.Errorf("%s: %w: no data", call, activity.ErrSchemaMismatch)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w: %v", call, activity.ErrSchemaMismatch, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, call, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", call, err)
	}
	raw, err := c.do(call, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w: %v", call, activity.ErrSchemaMismatch, err)
	}
	return nil
}

// do sends req and returns the body of a successful response. Transport
// failures and error statuses are ErrUpstreamUnavailable.
func (c *Client) do(call string, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(call, "error").Inc()
		return nil, activity.Upstream(call, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(call, "error").Inc()
		return nil, activity.Upstream(call, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(call, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s: %w: status %d", call, activity.ErrUpstreamUnavailable, resp.StatusCode)
	}
	return body, nil
}

// flexUint decodes a JSON number, a decimal string or null.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("not an unsigned integer: %s", b)
	}
	*f = flexUint(n)
	return nil
}
