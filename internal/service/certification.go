// Package service ties the fingerprinter, the classifier and the
// certification ledger together behind the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmerrifield20/verichain/internal/certledger"
	"github.com/jmerrifield20/verichain/internal/classifier"
	"github.com/jmerrifield20/verichain/internal/fingerprint"
	"github.com/jmerrifield20/verichain/internal/health"
	"go.uber.org/zap"
)

// HistoryLimit is the number of records returned by History.
const HistoryLimit = 10

// Analysis is the result of classifying an uploaded product image.
type Analysis struct {
	ProductName string    `json:"productName"`
	Confidence  string    `json:"confidence"`
	ProductID   string    `json:"productId"`
	Timestamp   time.Time `json:"timestamp"`
}

// CertifiedFunc is an optional callback invoked after every certification
// with the new record and the resulting ledger size.
type CertifiedFunc func(rec certledger.Record, ledgerSize int)

// ClassifiedFunc is an optional callback invoked after every classification.
type ClassifiedFunc func(success bool)

// CertificationService contains the business logic for analysing and
// certifying products.
type CertificationService struct {
	ledger       certledger.Ledger
	classifier   classifier.Classifier
	reporter     *health.Reporter
	onCertified  CertifiedFunc
	onClassified ClassifiedFunc
	now          func() time.Time
	logger       *zap.Logger
}

// NewCertificationService creates a CertificationService.
func NewCertificationService(ledger certledger.Ledger, clf classifier.Classifier, reporter *health.Reporter, logger *zap.Logger) *CertificationService {
	return &CertificationService{
		ledger:     ledger,
		classifier: clf,
		reporter:   reporter,
		now:        time.Now,
		logger:     logger,
	}
}

// SetCertifiedHook configures the post-certification callback.
func (s *CertificationService) SetCertifiedHook(fn CertifiedFunc) {
	s.onCertified = fn
}

// SetClassifiedHook configures the post-classification callback.
func (s *CertificationService) SetClassifiedHook(fn ClassifiedFunc) {
	s.onClassified = fn
}

// Analyze fingerprints image and classifies it. The ledger is not touched.
func (s *CertificationService) Analyze(ctx context.Context, image []byte) (*Analysis, error) {
	productID := fingerprint.Compute(image)

	pred, err := s.classifier.Classify(ctx, image)
	if s.onClassified != nil {
		s.onClassified(err == nil)
	}
	if err != nil {
		if !errors.Is(err, classifier.ErrClassification) {
			err = fmt.Errorf("%w: %v", classifier.ErrClassification, err)
		}
		return nil, err
	}

	a := &Analysis{
		ProductName: pred.ProductName(),
		Confidence:  pred.Confidence(),
		ProductID:   productID,
		Timestamp:   s.now().UTC(),
	}
	s.logger.Info("product analysed",
		zap.String("product_id", a.ProductID),
		zap.String("product_name", a.ProductName),
		zap.String("confidence", a.Confidence),
	)
	return a, nil
}

// Certify issues a certification record for an analysed product.
func (s *CertificationService) Certify(ctx context.Context, req certledger.CertifyRequest) (certledger.Record, error) {
	rec, err := s.ledger.Certify(ctx, req)
	if err != nil {
		return certledger.Record{}, err
	}

	size, err := s.ledger.Len(ctx)
	if err != nil {
		s.logger.Warn("ledger length after certify", zap.Error(err))
	}
	if s.onCertified != nil {
		s.onCertified(rec, size)
	}

	s.logger.Info("product certified",
		zap.String("product_id", rec.ProductID),
		zap.String("tx_hash", rec.TxHash),
		zap.Int64("block", rec.BlockNumber),
	)
	return rec, nil
}

// History returns the most recent certifications, newest first.
func (s *CertificationService) History(ctx context.Context) ([]certledger.Record, error) {
	recs, err := s.ledger.Recent(ctx, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("recent certifications: %w", err)
	}
	return recs, nil
}

// Certification returns a single retained certification by transaction hash.
func (s *CertificationService) Certification(ctx context.Context, txHash string) (certledger.Record, error) {
	return s.ledger.Get(ctx, txHash)
}

// Health returns the current health snapshot.
func (s *CertificationService) Health(ctx context.Context) (health.Status, error) {
	return s.reporter.Status(ctx)
}
