package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is matched by APIErrors carrying a 404 status.
var ErrNotFound = errors.New("not found")

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Analysis is the response of POST /analyze.
type Analysis struct {
	ProductName string    `json:"productName" yaml:"productName"`
	Confidence  string    `json:"confidence" yaml:"confidence"`
	ProductID   string    `json:"productId" yaml:"productId"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

// CertifyRequest is the payload for Certify.
type CertifyRequest struct {
	ProductID   string `json:"productId" yaml:"productId"`
	ProductName string `json:"productName" yaml:"productName"`
	Confidence  string `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Certification is a certification record as returned by the server.
type Certification struct {
	ProductID   string    `json:"productId" yaml:"productId"`
	ProductName string    `json:"productName" yaml:"productName"`
	Confidence  string    `json:"confidence" yaml:"confidence"`
	TxHash      string    `json:"txHash" yaml:"txHash"`
	BlockNumber int64     `json:"blockNumber" yaml:"blockNumber"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Status      string    `json:"status" yaml:"status"`
}

// Health is the response of GET /health.
type Health struct {
	Status                 string    `json:"status" yaml:"status"`
	ModelLoaded            bool      `json:"modelLoaded" yaml:"modelLoaded"`
	Timestamp              time.Time `json:"timestamp" yaml:"timestamp"`
	TotalCertifications    int       `json:"totalCertifications" yaml:"totalCertifications"`
	LifetimeCertifications uint64    `json:"lifetimeCertifications" yaml:"lifetimeCertifications"`
}

// Client is the VeriChain SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// WithBearerToken attaches an operator token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:5000".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Analyze uploads an image for classification.
func (c *Client) Analyze(ctx context.Context, filename string, image io.Reader) (*Analysis, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, image); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/analyze", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Analysis
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Certify issues a certification for an analysed product.
func (c *Client) Certify(ctx context.Context, r CertifyRequest) (*Certification, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/certify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out Certification
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the most recent certifications, newest first.
func (c *Client) History(ctx context.Context) ([]Certification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/history", nil)
	if err != nil {
		return nil, err
	}
	var out []Certification
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Certification fetches a single retained certification by transaction hash.
func (c *Client) Certification(ctx context.Context, txHash string) (*Certification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/certifications/"+url.PathEscape(txHash), nil)
	if err != nil {
		return nil, err
	}
	var out Certification
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the server health snapshot.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return nil, err
	}
	var out Health
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
