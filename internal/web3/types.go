package web3

import "context"

// ChainSnapshot represents summarized network metadata for verdict stamping.
type ChainSnapshot struct {
	ChainID     string
	BlockNumber string
	Notes       string
}

// Client defines the common interface that any chain implementation must
// provide so higher layers can read network state uniformly.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Close()
}

// Stamper adapts a chain client to the snapshot pair consumed by the review
// processor.
type Stamper struct {
	client Client
}

// NewStamper wraps the given client.
func NewStamper(client Client) *Stamper {
	return &Stamper{client: client}
}

// Snapshot returns the current chain ID and block number.
func (s *Stamper) Snapshot(ctx context.Context) (string, string, error) {
	snapshot, err := s.client.FetchChainSnapshot(ctx)
	if err != nil {
		return "", "", err
	}
	return snapshot.ChainID, snapshot.BlockNumber, nil
}
