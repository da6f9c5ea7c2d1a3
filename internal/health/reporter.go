// Package health tracks classifier availability and reports service health.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jmerrifield20/verichain/internal/certledger"
)

// LoadedState reports whether the classifier model is loaded.
// *Checker satisfies this interface.
type LoadedState interface {
	Loaded() bool
}

// Status is a point-in-time health snapshot.
type Status struct {
	ClassifierLoaded bool
	Timestamp        time.Time

	// TotalCertifications is the number of records currently retained by the
	// ledger. It stops growing once the ledger is at capacity.
	TotalCertifications int

	// LifetimeCertifications counts every certification issued since start.
	LifetimeCertifications uint64
}

// Reporter builds Status snapshots from the classifier state and the ledger.
type Reporter struct {
	model  LoadedState
	ledger certledger.Ledger
	now    func() time.Time
}

// NewReporter creates a Reporter.
func NewReporter(model LoadedState, ledger certledger.Ledger) *Reporter {
	return &Reporter{model: model, ledger: ledger, now: time.Now}
}

// Status returns the current snapshot.
func (r *Reporter) Status(ctx context.Context) (Status, error) {
	size, err := r.ledger.Len(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("ledger length: %w", err)
	}
	issued, err := r.ledger.Issued(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("ledger issued count: %w", err)
	}
	return Status{
		ClassifierLoaded:       r.model.Loaded(),
		Timestamp:              r.now().UTC(),
		TotalCertifications:    size,
		LifetimeCertifications: issued,
	}, nil
}
