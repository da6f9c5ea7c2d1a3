// Package classifier talks to the external image-classification model.
//
// The model itself runs elsewhere (a model server reached over HTTP, see
// HTTPClassifier). This package turns its raw top prediction into the
// display label and confidence string used by the rest of the service.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrClassification wraps every failure reported by a Classifier.
var ErrClassification = errors.New("classification failed")

// Prediction is the top-1 result of a classification.
type Prediction struct {
	ClassID string  `json:"class_id"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"` // 0..1
}

// ProductName returns the display form of the label.
func (p Prediction) ProductName() string { return FormatLabel(p.Label) }

// Confidence returns the score as a percentage string, e.g. "93.4%".
func (p Prediction) Confidence() string { return FormatConfidence(p.Score) }

// Classifier maps image bytes to a prediction.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Prediction, error)
}

// Prober reports whether the model behind a Classifier is loaded and serving.
type Prober interface {
	Ready(ctx context.Context) error
}

// FormatLabel replaces underscores with spaces and title-cases the result:
// "running_shoe" becomes "Running Shoe".
func FormatLabel(label string) string {
	// Casers carry state; one per call.
	return cases.Title(language.English).String(strings.ReplaceAll(label, "_", " "))
}

// FormatConfidence renders a 0..1 score as a percentage with one decimal.
func FormatConfidence(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}

func classificationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrClassification, fmt.Sprintf(format, args...))
}
