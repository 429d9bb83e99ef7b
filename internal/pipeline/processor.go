package pipeline

import (
	"context"
	"fmt"
	"time"

	"botnet-detector/internal/alert"
	"botnet-detector/internal/metrics"
	"botnet-detector/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	AlertTypeBotnet = "botnet_traffic"
	SeverityHigh    = "HIGH"
)

// VerdictRecorder keeps classified verdicts for later queries.
type VerdictRecorder interface {
	AddVerdict(v model.Verdict)
}

// Processor receives verdicts, records them, and emits alerts for attacks
type Processor struct {
	recorder  VerdictRecorder
	notifiers []alert.Notifier
	metrics   *metrics.PrometheusMetrics
	logger    *logrus.Logger
}

// NewProcessor creates a new processor instance. recorder and m may be nil.
func NewProcessor(recorder VerdictRecorder, m *metrics.PrometheusMetrics, logger *logrus.Logger) *Processor {
	return &Processor{
		recorder: recorder,
		metrics:  m,
		logger:   logger,
	}
}

func (p *Processor) RegisterNotifier(n alert.Notifier) {
	p.notifiers = append(p.notifiers, n)
}

// Process records v and, when it is an attack, sends an alert to every
// notifier. Notifier failures are logged and the first one is returned.
func (p *Processor) Process(ctx context.Context, v model.Verdict) error {
	if p.recorder != nil {
		p.recorder.AddVerdict(v)
	}
	if !v.IsAttack() {
		return nil
	}

	a := model.Alert{
		Type:      AlertTypeBotnet,
		Severity:  SeverityHigh,
		Message:   describe(v),
		Timestamp: time.Now(),
		Verdict:   &v,
	}
	if p.metrics != nil {
		p.metrics.AlertCounter.WithLabelValues(a.Severity).Inc()
	}

	var firstErr error
	for _, n := range p.notifiers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.SendAlert(a); err != nil {
			p.logger.Errorf("Failed to send alert for verdict %s: %v", v.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func describe(v model.Verdict) string {
	msg := fmt.Sprintf("Connection classified as attack (p=%.2f)", v.Probability)
	in := v.Input
	if proto, service := in["proto"], in["service"]; proto != "" || service != "" {
		msg += fmt.Sprintf(", proto=%s service=%s", proto, service)
	}
	if state := in["conn_state"]; state != "" {
		msg += ", conn_state=" + state
	}
	return msg
}
