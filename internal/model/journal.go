package model

// JournalRecord is one applied event as persisted by the event journal.
// The journal is an audit trail of what the cache consumed, not a source
// of truth; the cache is always rebuilt from chain history at startup.
type JournalRecord struct {
	ChainID     uint64   `json:"chain_id"`
	Pool        string   `json:"pool"`
	EventType   string   `json:"event_type"`
	LpID        uint64   `json:"lp_id,omitempty"`
	NFTIDs      []string `json:"nft_ids,omitempty"`
	BlockNumber uint64   `json:"block_number"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint64   `json:"log_index"`
	AppliedAt   string   `json:"applied_at"`
}
