package certledger_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/verichain/internal/certledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ctx = context.Background()

var txHashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// tickingClock returns a clock that advances one millisecond per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func newLedger(t *testing.T, numbering certledger.Numbering) *certledger.MemoryLedger {
	t.Helper()
	return certledger.New(certledger.Config{Numbering: numbering, Now: tickingClock()}, zap.NewNop())
}

func certifyN(t *testing.T, l *certledger.MemoryLedger, n int) []certledger.Record {
	t.Helper()
	out := make([]certledger.Record, 0, n)
	for i := 1; i <= n; i++ {
		rec, err := l.Certify(ctx, certledger.CertifyRequest{
			ProductID:   fmt.Sprintf("VRC-%016X", i),
			ProductName: fmt.Sprintf("C%d", i),
			Confidence:  "90.0%",
		})
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestNew_empty(t *testing.T) {
	l := newLedger(t, "")
	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, certledger.DefaultCapacity, l.Capacity())

	recent, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestCertify_recordFields(t *testing.T) {
	l := newLedger(t, certledger.NumberBySequence)
	rec, err := l.Certify(ctx, certledger.CertifyRequest{
		ProductID:   "VRC-0011223344556677",
		ProductName: "Running Shoe",
		Confidence:  "87.5%",
	})
	require.NoError(t, err)

	assert.Equal(t, "VRC-0011223344556677", rec.ProductID)
	assert.Equal(t, "Running Shoe", rec.ProductName)
	assert.Equal(t, "87.5%", rec.Confidence)
	assert.Equal(t, certledger.StatusConfirmed, rec.Status)
	assert.Equal(t, certledger.DefaultBlockBase, rec.BlockNumber)
	assert.Regexp(t, txHashPattern, rec.TxHash)
	assert.False(t, rec.Timestamp.IsZero())
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
}

func TestCertify_validation(t *testing.T) {
	l := newLedger(t, "")

	cases := []struct {
		name  string
		req   certledger.CertifyRequest
		field string
	}{
		{"missing id", certledger.CertifyRequest{ProductName: "Mug"}, "productId"},
		{"blank id", certledger.CertifyRequest{ProductID: "  ", ProductName: "Mug"}, "productId"},
		{"missing name", certledger.CertifyRequest{ProductID: "VRC-1"}, "productName"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Certify(ctx, tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, certledger.ErrValidation))

			var verr *certledger.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	n, _ := l.Len(ctx)
	assert.Zero(t, n, "rejected requests must not touch the ledger")
}

func TestCertify_confidenceOptional(t *testing.T) {
	l := newLedger(t, "")
	rec, err := l.Certify(ctx, certledger.CertifyRequest{ProductID: "VRC-1", ProductName: "Mug"})
	require.NoError(t, err)
	assert.Empty(t, rec.Confidence)
}

func TestCertify_blockNumbersIncreaseBelowCapacity(t *testing.T) {
	for _, mode := range []certledger.Numbering{certledger.NumberBySequence, certledger.NumberByLength} {
		t.Run(string(mode), func(t *testing.T) {
			recs := certifyN(t, newLedger(t, mode), certledger.DefaultCapacity)
			for i, rec := range recs {
				assert.Equal(t, certledger.DefaultBlockBase+int64(i), rec.BlockNumber)
				if i > 0 {
					assert.Greater(t, rec.BlockNumber, recs[i-1].BlockNumber)
				}
			}
		})
	}
}

func TestCertify_lengthNumberingRepeatsAfterSaturation(t *testing.T) {
	recs := certifyN(t, newLedger(t, certledger.NumberByLength), 53)
	for _, rec := range recs[50:] {
		assert.Equal(t, certledger.DefaultBlockBase+50, rec.BlockNumber)
	}
}

func TestCertify_sequenceNumberingKeepsIncreasing(t *testing.T) {
	recs := certifyN(t, newLedger(t, certledger.NumberBySequence), 120)
	for i, rec := range recs {
		assert.Equal(t, certledger.DefaultBlockBase+int64(i), rec.BlockNumber)
	}
}

func TestCertify_evictsOldestAtCapacity(t *testing.T) {
	l := newLedger(t, "")
	recs := certifyN(t, l, 51)

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	recent, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	for i, rec := range recent {
		assert.Equal(t, fmt.Sprintf("C%d", 51-i), rec.ProductName)
	}

	_, err = l.Get(ctx, recs[0].TxHash)
	assert.ErrorIs(t, err, certledger.ErrNotFound, "C1 must be evicted")

	got, err := l.Get(ctx, recs[1].TxHash)
	require.NoError(t, err)
	assert.Equal(t, "C2", got.ProductName)

	issued, err := l.Issued(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 51, issued)
}

func TestCertify_lengthStaysAtCapacity(t *testing.T) {
	l := newLedger(t, "")
	certifyN(t, l, 50)
	for i := 0; i < 25; i++ {
		_, err := l.Certify(ctx, certledger.CertifyRequest{ProductID: "VRC-X", ProductName: "extra"})
		require.NoError(t, err)
		n, _ := l.Len(ctx)
		require.Equal(t, 50, n)
	}
}

func TestCertify_sameProductDifferentInstants(t *testing.T) {
	l := newLedger(t, "")
	req := certledger.CertifyRequest{ProductID: "VRC-ABCDEF0123456789", ProductName: "Teapot"}
	a, err := l.Certify(ctx, req)
	require.NoError(t, err)
	b, err := l.Certify(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, a.TxHash, b.TxHash)
}

func TestCertify_hashDependsOnlyOnInputsAndTime(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 42, time.UTC)
	clock := func() time.Time { return fixed }
	a := certledger.New(certledger.Config{Now: clock}, nil)
	b := certledger.New(certledger.Config{Now: clock}, nil)

	req := certledger.CertifyRequest{ProductID: "VRC-1", ProductName: "Lamp", Confidence: "10.0%"}
	ra, err := a.Certify(ctx, req)
	require.NoError(t, err)
	req.Confidence = "99.0%"
	rb, err := b.Certify(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ra.TxHash, rb.TxHash)
}

func TestRecent_limits(t *testing.T) {
	l := newLedger(t, "")
	certifyN(t, l, 3)

	recent, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "C3", recent[0].ProductName)
	assert.Equal(t, "C1", recent[2].ProductName)

	recent, err = l.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestRecent_returnsCopies(t *testing.T) {
	l := newLedger(t, "")
	certifyN(t, l, 2)

	recent, _ := l.Recent(ctx, 2)
	recent[0].ProductName = "tampered"

	again, _ := l.Recent(ctx, 2)
	assert.Equal(t, "C2", again[0].ProductName)
}

func TestCertify_concurrent(t *testing.T) {
	l := newLedger(t, certledger.NumberBySequence)

	const writers = 200
	var wg sync.WaitGroup
	blocks := make(chan int64, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := l.Certify(ctx, certledger.CertifyRequest{
				ProductID:   fmt.Sprintf("VRC-%d", i),
				ProductName: "Widget",
			})
			if err != nil {
				t.Error(err)
				return
			}
			blocks <- rec.BlockNumber
		}(i)
	}
	wg.Wait()
	close(blocks)

	seen := make(map[int64]bool, writers)
	for b := range blocks {
		assert.False(t, seen[b], "duplicate block number %d", b)
		seen[b] = true
	}
	assert.Len(t, seen, writers)

	n, _ := l.Len(ctx)
	assert.Equal(t, certledger.DefaultCapacity, n)
	issued, _ := l.Issued(ctx)
	assert.EqualValues(t, writers, issued)
}

func TestParseNumbering(t *testing.T) {
	n, err := certledger.ParseNumbering("")
	require.NoError(t, err)
	assert.Equal(t, certledger.NumberBySequence, n)

	n, err = certledger.ParseNumbering("length")
	require.NoError(t, err)
	assert.Equal(t, certledger.NumberByLength, n)

	_, err = certledger.ParseNumbering("random")
	assert.Error(t, err)
}

func TestNew_customCapacity(t *testing.T) {
	l := certledger.New(certledger.Config{Capacity: 3, BlockBase: 10, Now: tickingClock()}, nil)
	recs := certifyN(t, l, 5)
	assert.EqualValues(t, 14, recs[4].BlockNumber)

	n, _ := l.Len(ctx)
	assert.Equal(t, 3, n)
	recent, _ := l.Recent(ctx, 10)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"C5", "C4", "C3"}, []string{recent[0].ProductName, recent[1].ProductName, recent[2].ProductName})
}
