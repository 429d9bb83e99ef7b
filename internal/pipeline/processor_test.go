package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"botnet-detector/internal/metrics"
	"botnet-detector/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu       sync.Mutex
	verdicts []model.Verdict
}

func (r *memRecorder) AddVerdict(v model.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, v)
}

type captureNotifier struct {
	alerts []model.Alert
	err    error
}

func (n *captureNotifier) SendAlert(a model.Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func newProcessor() (*Processor, *memRecorder, *metrics.PrometheusMetrics) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rec := &memRecorder{}
	m := metrics.NewPrometheusMetrics()
	return NewProcessor(rec, m, logger), rec, m
}

func TestProcess_NormalVerdictIsRecordedOnly(t *testing.T) {
	p, rec, m := newProcessor()
	n := &captureNotifier{}
	p.RegisterNotifier(n)

	require.NoError(t, p.Process(context.Background(), model.Verdict{Status: model.StatusOK, Result: model.ResultNormal}))
	require.NoError(t, p.Process(context.Background(), model.Verdict{Status: model.StatusWarning, Message: model.MissingFieldsMessage}))

	assert.Len(t, rec.verdicts, 2)
	assert.Empty(t, n.alerts)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AlertCounter.WithLabelValues(SeverityHigh)))
}

func TestProcess_AttackAlertsEveryNotifier(t *testing.T) {
	p, rec, m := newProcessor()
	first, second := &captureNotifier{err: errors.New("down")}, &captureNotifier{}
	p.RegisterNotifier(first)
	p.RegisterNotifier(second)

	v := model.Verdict{
		ID:          "v-9",
		Status:      model.StatusOK,
		Result:      model.ResultAttack,
		Probability: 0.97,
		Input:       model.ConnectionRecord{"proto": "tcp", "service": "-", "conn_state": "REJ"},
	}
	err := p.Process(context.Background(), v)
	assert.EqualError(t, err, "down")

	assert.Len(t, rec.verdicts, 1)
	require.Len(t, second.alerts, 1)
	a := second.alerts[0]
	assert.Equal(t, AlertTypeBotnet, a.Type)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Equal(t, "v-9", a.Verdict.ID)
	assert.Contains(t, a.Message, "conn_state=REJ")
	assert.Len(t, first.alerts, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertCounter.WithLabelValues(SeverityHigh)))
}
