package activity

// ContractStats are the activity counters of one address (or a sum of
// addresses). Counters only grow on an append-only ledger.
type ContractStats struct {
	GasUsed             uint64 `json:"gas_used"`
	TransactionsCount   uint64 `json:"transactions_count"`
	TokenTransfersCount uint64 `json:"token_transfers_count"`
}

// Add returns the field-wise sum of s and o.
func (s ContractStats) Add(o ContractStats) ContractStats {
	return ContractStats{
		GasUsed:             s.GasUsed + o.GasUsed,
		TransactionsCount:   s.TransactionsCount + o.TransactionsCount,
		TokenTransfersCount: s.TokenTransfersCount + o.TokenTransfersCount,
	}
}

// IsZero reports whether every counter is zero.
func (s ContractStats) IsZero() bool {
	return s == ContractStats{}
}

// Sum folds parts with Add starting from the zero value.
func Sum(parts ...ContractStats) ContractStats {
	var total ContractStats
	for _, p := range parts {
		total = total.Add(p)
	}
	return total
}

// BlockRange is an inclusive [From, To] block interval.
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// UpTo is the range from genesis to n inclusive.
func UpTo(n uint64) BlockRange { return BlockRange{From: 0, To: n} }

// Contains reports whether block lies inside the range.
func (r BlockRange) Contains(block uint64) bool {
	return block >= r.From && block <= r.To
}
