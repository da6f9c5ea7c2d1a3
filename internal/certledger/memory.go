package certledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultCapacity is the number of records retained before eviction starts.
	DefaultCapacity = 50

	// DefaultBlockBase is added to the numbering counter to form block numbers.
	DefaultBlockBase int64 = 1_000_000
)

// Numbering selects how block numbers are derived.
type Numbering string

const (
	// NumberBySequence uses the lifetime issuance count. Block numbers keep
	// increasing after the ledger is saturated.
	NumberBySequence Numbering = "sequence"

	// NumberByLength uses the current ledger length. Once the ledger is full
	// every new record gets the same block number.
	NumberByLength Numbering = "length"
)

// ParseNumbering converts a config value into a Numbering.
func ParseNumbering(s string) (Numbering, error) {
	switch Numbering(s) {
	case "", NumberBySequence:
		return NumberBySequence, nil
	case NumberByLength:
		return NumberByLength, nil
	default:
		return "", fmt.Errorf("unknown block numbering %q (want %q or %q)", s, NumberBySequence, NumberByLength)
	}
}

// Config holds MemoryLedger configuration. Zero values select defaults.
type Config struct {
	Capacity  int
	BlockBase int64
	Numbering Numbering
	Now       func() time.Time // clock override for tests
}

// MemoryLedger is an in-memory, thread-safe Ledger backed by a ring buffer.
type MemoryLedger struct {
	mu     sync.RWMutex
	buf    []Record
	head   int // index of the oldest record
	size   int
	issued uint64
	byHash map[string]int // txHash -> buffer slot

	base      int64
	numbering Numbering
	now       func() time.Time
	logger    *zap.Logger
}

// New creates an empty MemoryLedger.
func New(cfg Config, logger *zap.Logger) *MemoryLedger {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.BlockBase == 0 {
		cfg.BlockBase = DefaultBlockBase
	}
	if cfg.Numbering == "" {
		cfg.Numbering = NumberBySequence
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryLedger{
		buf:       make([]Record, cfg.Capacity),
		byHash:    make(map[string]int, cfg.Capacity),
		base:      cfg.BlockBase,
		numbering: cfg.Numbering,
		now:       cfg.Now,
		logger:    logger,
	}
}

// Capacity returns the maximum number of retained records.
func (l *MemoryLedger) Capacity() int { return len(l.buf) }

// Certify implements Ledger.
func (l *MemoryLedger) Certify(_ context.Context, req CertifyRequest) (Record, error) {
	if err := req.Validate(); err != nil {
		return Record{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	issuedAt := l.now().UTC()

	// The counter is read before the append and before any eviction.
	var n int64
	if l.numbering == NumberByLength {
		n = int64(l.size)
	} else {
		n = int64(l.issued)
	}

	rec := Record{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		Confidence:  req.Confidence,
		TxHash:      txHash(req.ProductID, req.ProductName, issuedAt),
		BlockNumber: l.base + n,
		Timestamp:   issuedAt,
		Status:      StatusConfirmed,
	}

	if l.size == len(l.buf) {
		evicted := l.buf[l.head]
		if slot, ok := l.byHash[evicted.TxHash]; ok && slot == l.head {
			delete(l.byHash, evicted.TxHash)
		}
		l.buf[l.head] = rec
		l.byHash[rec.TxHash] = l.head
		l.head = (l.head + 1) % len(l.buf)
		l.logger.Debug("certification evicted",
			zap.String("tx_hash", evicted.TxHash),
			zap.Int64("block", evicted.BlockNumber),
		)
	} else {
		slot := (l.head + l.size) % len(l.buf)
		l.buf[slot] = rec
		l.byHash[rec.TxHash] = slot
		l.size++
	}
	l.issued++

	l.logger.Debug("certification appended",
		zap.String("tx_hash", rec.TxHash),
		zap.Int64("block", rec.BlockNumber),
		zap.String("product_id", rec.ProductID),
	)
	return rec, nil
}

// Recent implements Ledger.
func (l *MemoryLedger) Recent(_ context.Context, n int) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > l.size {
		n = l.size
	}
	if n <= 0 {
		return []Record{}, nil
	}
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		slot := (l.head + l.size - 1 - i) % len(l.buf)
		out = append(out, l.buf[slot])
	}
	return out, nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, txHash string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	slot, ok := l.byHash[txHash]
	if !ok {
		return Record{}, ErrNotFound
	}
	return l.buf[slot], nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size, nil
}

// Issued implements Ledger.
func (l *MemoryLedger) Issued(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.issued, nil
}
