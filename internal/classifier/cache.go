package classifier

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmerrifield20/verichain/internal/fingerprint"
	"go.uber.org/zap"
)

// CachingClassifier memoises predictions by image content digest so that
// re-uploads of the same image skip the model server.
type CachingClassifier struct {
	inner  Classifier
	cache  *lru.Cache[string, Prediction]
	logger *zap.Logger
}

// NewCaching wraps inner with an LRU cache holding up to size predictions.
func NewCaching(inner Classifier, size int, logger *zap.Logger) (*CachingClassifier, error) {
	cache, err := lru.New[string, Prediction](size)
	if err != nil {
		return nil, fmt.Errorf("create prediction cache: %w", err)
	}
	return &CachingClassifier{inner: inner, cache: cache, logger: logger}, nil
}

// Classify implements Classifier. Failures are not cached.
func (c *CachingClassifier) Classify(ctx context.Context, image []byte) (Prediction, error) {
	key := fingerprint.Digest(image)
	if p, ok := c.cache.Get(key); ok {
		c.logger.Debug("prediction cache hit", zap.String("digest", key))
		return p, nil
	}

	p, err := c.inner.Classify(ctx, image)
	if err != nil {
		return Prediction{}, err
	}
	c.cache.Add(key, p)
	return p, nil
}

// Ready implements Prober by delegating to the wrapped classifier when it
// supports probing.
func (c *CachingClassifier) Ready(ctx context.Context) error {
	if p, ok := c.inner.(Prober); ok {
		return p.Ready(ctx)
	}
	return nil
}

// Len returns the number of cached predictions.
func (c *CachingClassifier) Len() int { return c.cache.Len() }
