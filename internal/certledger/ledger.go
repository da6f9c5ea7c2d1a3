package certledger

import "context"

// Ledger is the interface for the bounded certification store.
type Ledger interface {
	// Certify validates req, issues a confirmed Record and appends it,
	// evicting the oldest record when the ledger is at capacity.
	Certify(ctx context.Context, req CertifyRequest) (Record, error)

	// Recent returns up to n of the most recently issued records, newest first.
	Recent(ctx context.Context, n int) ([]Record, error)

	// Get returns the retained record with the given transaction hash.
	Get(ctx context.Context, txHash string) (Record, error)

	// Len returns the number of records currently retained.
	Len(ctx context.Context) (int, error)

	// Issued returns the number of certifications issued since start,
	// including evicted ones.
	Issued(ctx context.Context) (uint64, error)
}
