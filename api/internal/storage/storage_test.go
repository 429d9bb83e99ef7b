package storage

import (
	"io"
	"sync"
	"testing"

	"botnet-detector/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(size int) *Storage {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStorage(size, logger)
}

func TestAddVerdict_BoundedHistoryNewestFirst(t *testing.T) {
	s := newTestStorage(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		s.AddVerdict(model.Verdict{ID: id, Status: model.StatusOK, Result: model.ResultNormal})
	}

	got := s.GetVerdicts(10, VerdictFilter{})
	require.Len(t, got, 3)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "b", got[2].ID)
	assert.Nil(t, s.GetVerdictByID("a"))
	assert.NotNil(t, s.GetVerdictByID("c"))

	// Stats keep counting past eviction.
	assert.EqualValues(t, 4, s.GetStats().Total)
}

func TestGetVerdicts_Filter(t *testing.T) {
	s := newTestStorage(0)
	s.AddVerdict(model.Verdict{Status: model.StatusOK, Result: model.ResultAttack})
	s.AddVerdict(model.Verdict{Status: model.StatusOK, Result: model.ResultNormal, Fallbacks: []string{"service"}})
	s.AddVerdict(model.Verdict{Status: model.StatusWarning, Message: model.MissingFieldsMessage})
	s.AddVerdict(model.Verdict{Status: model.StatusError, Message: "boom"})

	assert.Len(t, s.GetVerdicts(10, VerdictFilter{Result: model.ResultAttack}), 1)
	assert.Len(t, s.GetVerdicts(10, VerdictFilter{Status: "ok"}), 2)
	assert.Len(t, s.GetVerdicts(1, VerdictFilter{}), 1)

	stats := s.GetStats()
	assert.EqualValues(t, 4, stats.Total)
	assert.EqualValues(t, 1, stats.Attacks)
	assert.EqualValues(t, 1, stats.Normal)
	assert.EqualValues(t, 1, stats.Warnings)
	assert.EqualValues(t, 1, stats.Errors)
	assert.EqualValues(t, 1, stats.Fallbacks)

	s.ResetStats()
	assert.EqualValues(t, 0, s.GetStats().Total)
}

func TestSubscribe_ReceivesMatchingVerdicts(t *testing.T) {
	s := newTestStorage(0)
	sub := &VerdictSubscriber{ID: "x", Channel: make(chan model.Verdict, 4), Filter: VerdictFilter{Result: model.ResultAttack}}
	s.Subscribe(sub)

	s.AddVerdict(model.Verdict{ID: "n", Status: model.StatusOK, Result: model.ResultNormal})
	s.AddVerdict(model.Verdict{ID: "a", Status: model.StatusOK, Result: model.ResultAttack})

	v := <-sub.Channel
	assert.Equal(t, "a", v.ID)
	assert.Len(t, sub.Channel, 0)

	s.Unsubscribe(sub)
	s.Unsubscribe(sub)
	assert.Equal(t, 0, s.SubscriberCount())
	_, open := <-sub.Channel
	assert.False(t, open)
}

func TestSendAlert(t *testing.T) {
	s := newTestStorage(0)
	require.NoError(t, s.SendAlert(model.Alert{Type: "botnet_traffic", Severity: "HIGH", Message: "Connection classified as attack, conn_state=REJ"}))
	require.NoError(t, s.SendAlert(model.Alert{Type: "botnet_traffic", Severity: "LOW", Message: "other"}))

	assert.Len(t, s.GetAlerts(10, "HIGH", ""), 1)
	got := s.GetAlerts(10, "", "REJ")
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestAddVerdict_ConcurrentWithSubscribers(t *testing.T) {
	s := newTestStorage(50)
	subs := make([]*VerdictSubscriber, 3)
	for i := range subs {
		subs[i] = &VerdictSubscriber{ID: "s", Channel: make(chan model.Verdict, 1000)}
		s.Subscribe(subs[i])
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.AddVerdict(model.Verdict{Status: model.StatusOK, Result: model.ResultNormal})
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 400, s.GetStats().Total)
	assert.Len(t, s.GetVerdicts(100, VerdictFilter{}), 50)
	for _, sub := range subs {
		assert.Len(t, sub.Channel, 400)
		s.Unsubscribe(sub)
	}
}
