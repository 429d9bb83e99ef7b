package model

import "time"

type VerdictStatus string

const (
	StatusOK      VerdictStatus = "ok"
	StatusWarning VerdictStatus = "warning"
	StatusError   VerdictStatus = "error"
)

const (
	ResultAttack = "attack"
	ResultNormal = "normal"
)

// MissingFieldsMessage is returned when a caller leaves required fields
// empty.
const MissingFieldsMessage = "Please fill in all fields before predicting!"

// Verdict is the outcome of classifying one record. Only StatusOK verdicts
// carry a Result.
type Verdict struct {
	ID          string           `json:"id,omitempty"`
	Status      VerdictStatus    `json:"status"`
	Label       int              `json:"label"`
	Result      string           `json:"result,omitempty"`
	Probability float64          `json:"probability,omitempty"`
	Message     string           `json:"message,omitempty"`
	Missing     []string         `json:"missing,omitempty"`
	Fallbacks   []string         `json:"fallbacks,omitempty"`
	Defaulted   []string         `json:"defaulted,omitempty"`
	BundleID    string           `json:"bundle_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Input       ConnectionRecord `json:"input,omitempty"`
}

func (v Verdict) IsAttack() bool {
	return v.Status == StatusOK && v.Result == ResultAttack
}

// FallbackUsed reports whether any categorical value was scored through the
// sentinel code.
func (v Verdict) FallbackUsed() bool {
	return len(v.Fallbacks) > 0
}

// Display is the human readable line shown on the prediction page.
func (v Verdict) Display() string {
	switch v.Status {
	case StatusOK:
		return v.Result
	case StatusWarning:
		return v.Message
	default:
		return "Error: " + v.Message
	}
}

type VerdictStats struct {
	Total     int64     `json:"total"`
	Attacks   int64     `json:"attacks"`
	Normal    int64     `json:"normal"`
	Warnings  int64     `json:"warnings"`
	Errors    int64     `json:"errors"`
	Fallbacks int64     `json:"fallbacks"`
	LastReset time.Time `json:"last_reset"`
}
