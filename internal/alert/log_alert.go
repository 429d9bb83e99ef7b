package alert

import (
	"botnet-detector/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier sends alerts to local logs
type LogAlertNotifier struct {
	logger *logrus.Logger
}

func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

// SendAlert implements Notifier interface - sends alert to logs
func (ln *LogAlertNotifier) SendAlert(alert model.Alert) error {
	entry := ln.logger.WithFields(logrus.Fields{
		"severity": alert.Severity,
		"type":     alert.Type,
	})
	if v := alert.Verdict; v != nil {
		entry = entry.WithFields(logrus.Fields{
			"verdict":     v.ID,
			"bundle":      v.BundleID,
			"probability": v.Probability,
		})
	}
	entry.Warnf("ALERT [%s] %s: %s", alert.Severity, alert.Type, alert.Message)
	return nil
}
