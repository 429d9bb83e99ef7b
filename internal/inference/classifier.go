// Package inference scores single connection records against the bundle in
// service.
package inference

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"botnet-detector/internal/bundle"
	"botnet-detector/internal/classifier"
	"botnet-detector/internal/features"
	"botnet-detector/internal/metrics"
	"botnet-detector/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BundleSource yields the bundle to score against. *bundle.Holder
// implements it.
type BundleSource interface {
	Current() *bundle.Bundle
}

type Classifier struct {
	source  BundleSource
	logger  *logrus.Logger
	metrics *metrics.PrometheusMetrics
}

// NewClassifier creates a classifier. metrics may be nil.
func NewClassifier(source BundleSource, logger *logrus.Logger, m *metrics.PrometheusMetrics) *Classifier {
	return &Classifier{source: source, logger: logger, metrics: m}
}

// Classify always returns a verdict. Missing fields yield StatusWarning,
// bad values and internal failures yield StatusError.
func (c *Classifier) Classify(raw map[string]string) model.Verdict {
	start := time.Now()
	b := c.source.Current()

	v := c.classify(b, raw)
	v.ID = uuid.NewString()
	v.Timestamp = start.UTC()
	v.Input = copyInput(raw)
	if b != nil {
		v.BundleID = b.ID()
	}

	for _, name := range v.Fallbacks {
		c.logger.WithFields(logrus.Fields{
			"verdict": v.ID,
			"feature": name,
			"value":   raw[name],
		}).Warn("Unseen category scored with sentinel code")
	}
	if c.metrics != nil {
		c.metrics.RecordVerdict(v, time.Since(start))
	}
	return v
}

func (c *Classifier) classify(b *bundle.Bundle, raw map[string]string) (v model.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("Classification panicked: %v", r)
			v = model.Verdict{Status: model.StatusError, Message: fmt.Sprintf("unexpected failure: %v", r)}
		}
	}()

	if b == nil {
		return model.Verdict{Status: model.StatusError, Message: "no model bundle loaded"}
	}

	if missing := MissingFields(b.Schema, raw); len(missing) > 0 {
		return model.Verdict{Status: model.StatusWarning, Message: model.MissingFieldsMessage, Missing: missing}
	}

	vec, err := features.BuildVector(features.Fields(raw), b.Schema, b.Encoders)
	if err != nil {
		var missing *features.MissingFeatureError
		var invalid *features.InvalidInputError
		switch {
		case errors.As(err, &missing):
			return model.Verdict{Status: model.StatusWarning, Message: model.MissingFieldsMessage, Missing: []string{missing.Feature}}
		case errors.As(err, &invalid):
			return model.Verdict{Status: model.StatusError, Message: fmt.Sprintf("could not convert %s value %q to a number", invalid.Feature, invalid.Value)}
		default:
			return model.Verdict{Status: model.StatusError, Message: err.Error()}
		}
	}

	x := b.Scaler.Transform(vec.Values)
	proba := b.Model.PredictProba(x)
	label := b.Model.Predict(x)

	v = model.Verdict{
		Status:      model.StatusOK,
		Label:       label,
		Result:      model.ResultNormal,
		Probability: proba,
		Fallbacks:   vec.Fallbacks,
		Defaulted:   vec.Defaulted,
	}
	if label == classifier.LabelAttack {
		v.Result = model.ResultAttack
	}
	return v
}

// MissingFields lists, in schema order, the required features that raw
// leaves absent or blank.
func MissingFields(schema *features.Schema, raw map[string]string) []string {
	var missing []string
	for _, name := range schema.Required() {
		if strings.TrimSpace(raw[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func copyInput(raw map[string]string) model.ConnectionRecord {
	out := make(model.ConnectionRecord, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
