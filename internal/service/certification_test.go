package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jmerrifield20/verichain/internal/certledger"
	"github.com/jmerrifield20/verichain/internal/classifier"
	"github.com/jmerrifield20/verichain/internal/fingerprint"
	"github.com/jmerrifield20/verichain/internal/health"
	"github.com/jmerrifield20/verichain/internal/service"
	"go.uber.org/zap"
)

type stubClassifier struct {
	pred classifier.Prediction
	err  error
}

func (s *stubClassifier) Classify(context.Context, []byte) (classifier.Prediction, error) {
	return s.pred, s.err
}

type loaded bool

func (l loaded) Loaded() bool { return bool(l) }

func newService(t *testing.T, clf classifier.Classifier) (*service.CertificationService, *certledger.MemoryLedger) {
	t.Helper()
	ledger := certledger.New(certledger.Config{}, zap.NewNop())
	reporter := health.NewReporter(loaded(true), ledger)
	return service.NewCertificationService(ledger, clf, reporter, zap.NewNop()), ledger
}

func TestAnalyze_success(t *testing.T) {
	clf := &stubClassifier{pred: classifier.Prediction{Label: "running_shoe", Score: 0.912}}
	svc, ledger := newService(t, clf)

	var classified []bool
	svc.SetClassifiedHook(func(ok bool) { classified = append(classified, ok) })

	image := []byte("jpeg bytes")
	a, err := svc.Analyze(context.Background(), image)
	if err != nil {
		t.Fatal(err)
	}
	if a.ProductName != "Running Shoe" {
		t.Errorf("ProductName: got %q", a.ProductName)
	}
	if a.Confidence != "91.2%" {
		t.Errorf("Confidence: got %q", a.Confidence)
	}
	if a.ProductID != fingerprint.Compute(image) {
		t.Errorf("ProductID: got %q", a.ProductID)
	}
	if a.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
	if n, _ := ledger.Len(context.Background()); n != 0 {
		t.Errorf("analyze must not touch the ledger, got %d records", n)
	}
	if len(classified) != 1 || !classified[0] {
		t.Errorf("classified hook: %v", classified)
	}
}

func TestAnalyze_classifierFailure(t *testing.T) {
	svc, _ := newService(t, &stubClassifier{err: errors.New("connection reset")})

	_, err := svc.Analyze(context.Background(), []byte("x"))
	if !errors.Is(err, classifier.ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
}

func TestCertify_callsHook(t *testing.T) {
	svc, _ := newService(t, &stubClassifier{})

	var sizes []int
	svc.SetCertifiedHook(func(_ certledger.Record, size int) { sizes = append(sizes, size) })

	for i := 0; i < 3; i++ {
		if _, err := svc.Certify(context.Background(), certledger.CertifyRequest{ProductID: "VRC-1", ProductName: "Mug"}); err != nil {
			t.Fatal(err)
		}
	}
	if len(sizes) != 3 || sizes[2] != 3 {
		t.Errorf("unexpected hook sizes: %v", sizes)
	}
}

func TestCertify_validationNotRecorded(t *testing.T) {
	svc, _ := newService(t, &stubClassifier{})
	called := false
	svc.SetCertifiedHook(func(certledger.Record, int) { called = true })

	_, err := svc.Certify(context.Background(), certledger.CertifyRequest{ProductName: "Mug"})
	if !errors.Is(err, certledger.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if called {
		t.Error("hook must not fire for rejected requests")
	}
}

func TestHistory_capsAtTen(t *testing.T) {
	svc, _ := newService(t, &stubClassifier{})
	for i := 1; i <= 51; i++ {
		_, err := svc.Certify(context.Background(), certledger.CertifyRequest{
			ProductID:   fmt.Sprintf("VRC-%d", i),
			ProductName: fmt.Sprintf("C%d", i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	recs, err := svc.History(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != service.HistoryLimit {
		t.Fatalf("expected %d records, got %d", service.HistoryLimit, len(recs))
	}
	if recs[0].ProductName != "C51" || recs[9].ProductName != "C42" {
		t.Errorf("unexpected order: first=%s last=%s", recs[0].ProductName, recs[9].ProductName)
	}

	st, err := svc.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalCertifications != 50 || st.LifetimeCertifications != 51 {
		t.Errorf("health counters: total=%d lifetime=%d", st.TotalCertifications, st.LifetimeCertifications)
	}
}

func TestCertification_lookup(t *testing.T) {
	svc, _ := newService(t, &stubClassifier{})
	rec, err := svc.Certify(context.Background(), certledger.CertifyRequest{ProductID: "VRC-1", ProductName: "Mug"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Certification(context.Background(), rec.TxHash)
	if err != nil {
		t.Fatal(err)
	}
	if got != rec {
		t.Errorf("got %+v, want %+v", got, rec)
	}

	if _, err := svc.Certification(context.Background(), "0xdead"); !errors.Is(err, certledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
