package health

import (
	"context"
	"sync"
	"time"

	"github.com/jmerrifield20/verichain/internal/classifier"
	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// StatusChangeFunc is an optional callback invoked when the classifier
// transitions between loaded and unloaded.
type StatusChangeFunc func(loaded bool)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Checker periodically probes the classifier and tracks whether its model
// is loaded. The model counts as unloaded until the first successful probe
// and after FailThreshold consecutive failures.
type Checker struct {
	prober    classifier.Prober
	cfg       Config
	mu        sync.Mutex
	failCount int
	loaded    bool
	onChange  StatusChangeFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Checker.
func New(prober classifier.Prober, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{prober: prober, cfg: cfg, logger: logger}
}

// SetStatusChange configures the status transition callback.
func (h *Checker) SetStatusChange(fn StatusChangeFunc) {
	h.onChange = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Loaded reports whether the classifier model is currently considered loaded.
func (h *Checker) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// Start probes once immediately, then every CheckInterval until ctx is done.
func (h *Checker) Start(ctx context.Context) error {
	h.CheckOnce(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckOnce(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// CheckOnce runs a single probe, updates state and returns the probe result.
func (h *Checker) CheckOnce(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	err := h.prober.Ready(probeCtx)
	cancel()
	success := err == nil

	if h.onMetrics != nil {
		h.onMetrics(success)
	}

	h.mu.Lock()
	wasLoaded := h.loaded
	if success {
		h.failCount = 0
		h.loaded = true
	} else {
		h.failCount++
		if h.failCount >= h.cfg.FailThreshold {
			h.loaded = false
		}
	}
	loaded, count := h.loaded, h.failCount
	h.mu.Unlock()

	if !success {
		h.logger.Warn("health: classifier probe failed",
			zap.Error(err),
			zap.Int("fail_count", count),
		)
	}

	if loaded != wasLoaded {
		if loaded {
			h.logger.Info("health: classifier loaded")
		} else {
			h.logger.Warn("health: classifier unavailable", zap.Int("fail_count", count))
		}
		if h.onChange != nil {
			h.onChange(loaded)
		}
	}
	return success
}
