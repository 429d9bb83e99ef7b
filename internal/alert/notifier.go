package alert

import "botnet-detector/internal/model"

// Notifier delivers alerts raised for attack verdicts.
type Notifier interface {
	SendAlert(alert model.Alert) error
}
