package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthConfig enables OAuth2 client-credentials authentication against the
// model server. A zero ClientID disables it.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// HTTPConfig holds HTTPClassifier configuration.
type HTTPConfig struct {
	Endpoint     string        // POST target receiving the raw image bytes
	ReadinessURL string        // probed by Ready; defaults to Endpoint
	Timeout      time.Duration // per request, default 30s
	OAuth        OAuthConfig
}

// HTTPClassifier sends images to a model server over HTTP.
//
// The server receives the raw image as the request body and answers with
//
//	{"predictions": [{"class_id": "n04254680", "label": "soccer_ball", "score": 0.93}]}
//
// The highest-scoring prediction is used.
type HTTPClassifier struct {
	cfg        HTTPConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTP creates an HTTPClassifier.
func NewHTTP(cfg HTTPConfig, logger *zap.Logger) (*HTTPClassifier, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("classifier endpoint is required")
	}
	if cfg.ReadinessURL == "" {
		cfg.ReadinessURL = cfg.Endpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.OAuth.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		// The token source uses the timeout-bound client for its own requests.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
		hc = cc.Client(ctx)
		hc.Timeout = cfg.Timeout
	}

	return &HTTPClassifier{cfg: cfg, httpClient: hc, logger: logger}, nil
}

type predictResponse struct {
	Predictions []Prediction `json:"predictions"`
	Error       string       `json:"error,omitempty"`
}

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, image []byte) (Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(image))
	if err != nil {
		return Prediction{}, classificationError("build request: %v", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, classificationError("call model server: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Prediction{}, classificationError("read model response: %v", err)
	}

	var out predictResponse
	if resp.StatusCode != http.StatusOK {
		_ = json.Unmarshal(body, &out)
		return Prediction{}, classificationError("model server returned %d: %s", resp.StatusCode, out.Error)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Prediction{}, classificationError("decode model response: %v", err)
	}
	if len(out.Predictions) == 0 {
		return Prediction{}, classificationError("model returned no predictions")
	}

	best := out.Predictions[0]
	for _, p := range out.Predictions[1:] {
		if p.Score > best.Score {
			best = p
		}
	}

	c.logger.Debug("classified image",
		zap.String("label", best.Label),
		zap.Float64("score", best.Score),
		zap.Duration("latency", time.Since(start)),
	)
	return best, nil
}

// Ready implements Prober. It tries HEAD then GET against the readiness URL
// and succeeds on any 2xx response.
func (c *HTTPClassifier) Ready(ctx context.Context) error {
	status, err := c.probe(ctx, http.MethodHead)
	if err == nil && status >= 200 && status < 300 {
		return nil
	}

	status, err = c.probe(ctx, http.MethodGet)
	if err != nil {
		return fmt.Errorf("probe model server: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("model server not ready: status %d", status)
	}
	return nil
}

func (c *HTTPClassifier) probe(ctx context.Context, method string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.ReadinessURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}
