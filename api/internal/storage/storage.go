package storage

import (
	"strings"
	"sync"
	"time"

	"botnet-detector/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxVerdicts = 1000
	defaultMaxAlerts   = 1000
)

// Storage keeps a bounded in-memory history of verdicts and alerts and fans
// new verdicts out to stream subscribers.
type Storage struct {
	mu          sync.RWMutex
	verdicts    []model.Verdict
	alerts      []Alert
	maxVerdicts int
	maxAlerts   int
	stats       model.VerdictStats
	logger      *logrus.Logger
	subs        map[*VerdictSubscriber]bool
	subsMu      sync.RWMutex
}

type Alert struct {
	ID string `json:"id"`
	model.Alert
}

// VerdictSubscriber is immutable once subscribed; notifySubscribers reads it
// under the read lock only.
type VerdictSubscriber struct {
	ID      string
	Channel chan model.Verdict
	Filter  VerdictFilter
}

type VerdictFilter struct {
	Status string
	Result string
}

func (f VerdictFilter) match(v model.Verdict) bool {
	if f.Status != "" && string(v.Status) != f.Status {
		return false
	}
	if f.Result != "" && v.Result != f.Result {
		return false
	}
	return true
}

// NewStorage keeps the last historySize verdicts and alerts. A
// non-positive size uses the default.
func NewStorage(historySize int, logger *logrus.Logger) *Storage {
	maxVerdicts, maxAlerts := defaultMaxVerdicts, defaultMaxAlerts
	if historySize > 0 {
		maxVerdicts, maxAlerts = historySize, historySize
	}
	return &Storage{
		verdicts:    make([]model.Verdict, 0),
		alerts:      make([]Alert, 0),
		maxVerdicts: maxVerdicts,
		maxAlerts:   maxAlerts,
		stats:       model.VerdictStats{LastReset: time.Now()},
		logger:      logger,
		subs:        make(map[*VerdictSubscriber]bool),
	}
}

// Verdict methods
func (s *Storage) AddVerdict(v model.Verdict) {
	s.mu.Lock()

	if v.ID == "" {
		v.ID = generateID()
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}

	s.verdicts = append(s.verdicts, v)
	if len(s.verdicts) > s.maxVerdicts {
		s.verdicts = s.verdicts[len(s.verdicts)-s.maxVerdicts:]
	}

	s.stats.Total++
	switch v.Status {
	case model.StatusOK:
		if v.IsAttack() {
			s.stats.Attacks++
		} else {
			s.stats.Normal++
		}
	case model.StatusWarning:
		s.stats.Warnings++
	default:
		s.stats.Errors++
	}
	if v.FallbackUsed() {
		s.stats.Fallbacks++
	}

	s.mu.Unlock()

	s.notifySubscribers(v)
}

// GetVerdicts returns up to limit verdicts, newest first.
func (s *Storage) GetVerdicts(limit int, filter VerdictFilter) []model.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Verdict, 0)
	for i := len(s.verdicts) - 1; i >= 0 && len(result) < limit; i-- {
		if filter.match(s.verdicts[i]) {
			result = append(result, s.verdicts[i])
		}
	}
	return result
}

func (s *Storage) GetVerdictByID(id string) *model.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.verdicts {
		if s.verdicts[i].ID == id {
			v := s.verdicts[i]
			return &v
		}
	}
	return nil
}

// GetStats counts every verdict ever added, including ones evicted from the
// history.
func (s *Storage) GetStats() model.VerdictStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Storage) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = model.VerdictStats{LastReset: time.Now()}
}

// Alert methods

// SendAlert records the alert. It lets Storage act as an alert.Notifier.
func (s *Storage) SendAlert(alert model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	s.alerts = append(s.alerts, Alert{ID: generateID(), Alert: alert})
	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	return nil
}

// GetAlerts returns up to limit alerts, newest first. search matches the
// alert message case-insensitively.
func (s *Storage) GetAlerts(limit int, severity, search string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(search)
	result := make([]Alert, 0)
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		alert := s.alerts[i]
		if severity != "" && alert.Severity != severity {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(alert.Message), search) {
			continue
		}
		result = append(result, alert)
	}
	return result
}

// Subscriber methods
func (s *Storage) Subscribe(sub *VerdictSubscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs[sub] = true
}

func (s *Storage) Unsubscribe(sub *VerdictSubscriber) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.subs[sub] {
		delete(s.subs, sub)
		close(sub.Channel)
	}
}

func (s *Storage) SubscriberCount() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

func (s *Storage) notifySubscribers(v model.Verdict) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for sub := range s.subs {
		if !sub.Filter.match(v) {
			continue
		}

		select {
		case sub.Channel <- v:
		default:
			s.logger.Debugf("Subscriber %s channel full, dropping verdict %s", sub.ID, v.ID)
		}
	}
}

func generateID() string {
	return uuid.NewString()
}
