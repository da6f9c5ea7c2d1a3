package classifier

import "context"

// StaticClassifier returns the same prediction for every image. It is used
// in development when no model server is configured.
type StaticClassifier struct {
	prediction Prediction
}

// NewStatic creates a StaticClassifier.
func NewStatic(label string, score float64) *StaticClassifier {
	return &StaticClassifier{prediction: Prediction{ClassID: "static", Label: label, Score: score}}
}

// Classify implements Classifier.
func (s *StaticClassifier) Classify(ctx context.Context, _ []byte) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, classificationError("%v", err)
	}
	return s.prediction, nil
}

// Ready implements Prober. A static classifier is always loaded.
func (s *StaticClassifier) Ready(context.Context) error { return nil }
