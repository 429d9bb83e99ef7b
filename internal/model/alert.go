package model

import "time"

type Alert struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Verdict   *Verdict  `json:"verdict,omitempty"`
}
