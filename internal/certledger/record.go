package certledger

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Status is the lifecycle state of a certification.
type Status string

// StatusConfirmed is the only status a certification is ever issued with.
const StatusConfirmed Status = "confirmed"

// Record is a single certification in the ledger. Records are values; the
// ledger never exposes pointers into its buffer.
type Record struct {
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Confidence  string    `json:"confidence"`
	TxHash      string    `json:"txHash"`
	BlockNumber int64     `json:"blockNumber"`
	Timestamp   time.Time `json:"timestamp"`
	Status      Status    `json:"status"`
}

// CertifyRequest is the validated input to Ledger.Certify.
type CertifyRequest struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Confidence  string `json:"confidence"`
}

// ErrValidation is matched by every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ErrNotFound is returned by Get when no retained record has the hash.
var ErrNotFound = errors.New("certification not found")

// ValidationError reports a missing or malformed certification field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Is makes errors.Is(err, ErrValidation) true for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate checks that the required fields are present.
func (r CertifyRequest) Validate() error {
	if strings.TrimSpace(r.ProductID) == "" {
		return &ValidationError{Field: "productId", Reason: "is required"}
	}
	if strings.TrimSpace(r.ProductName) == "" {
		return &ValidationError{Field: "productName", Reason: "is required"}
	}
	return nil
}

// txHash computes 0x-prefixed Keccak-256 over productID, productName and the
// issuance instant in Unix nanoseconds.
func txHash(productID, productName string, issuedAt time.Time) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(productID))
	h.Write([]byte(productName))
	h.Write([]byte(strconv.FormatInt(issuedAt.UnixNano(), 10)))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
