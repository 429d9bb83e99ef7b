package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"botnet-detector/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	telegramAttempts   = 3
)

type TelegramNotifier struct {
	botToken        string
	chatID          string
	parseMode       string
	enabled         bool
	apiURL          string
	retryDelay      time.Duration
	messageTemplate *template.Template
	client          *http.Client
	logger          *logrus.Logger
}

type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type TelegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// TelegramAPIError is a request the Bot API answered with ok=false.
type TelegramAPIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *TelegramAPIError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

// Retryable reports whether sending again can succeed. Client errors such
// as a bad token or chat are permanent, except flood control (429).
func (e *TelegramAPIError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500 || e.Code == 0
}

func NewTelegramNotifier(botToken, chatID, parseMode string, enabled bool, logger *logrus.Logger) *TelegramNotifier {
	return NewTelegramNotifierWithTemplate(botToken, chatID, parseMode, enabled, "", logger)
}

// NewTelegramNotifierWithTemplate parses messageTemplate as a text/template
// over model.Alert. A template that fails to parse falls back to the
// default message layout.
func NewTelegramNotifierWithTemplate(botToken, chatID, parseMode string, enabled bool, messageTemplate string, logger *logrus.Logger) *TelegramNotifier {
	tn := &TelegramNotifier{
		botToken:   botToken,
		chatID:     chatID,
		parseMode:  parseMode,
		enabled:    enabled,
		apiURL:     defaultTelegramAPI,
		retryDelay: time.Second,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}

	if strings.TrimSpace(messageTemplate) != "" {
		funcMap := template.FuncMap{
			"formatTime": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
			"percent": func(p float64) string {
				return fmt.Sprintf("%.1f%%", p*100)
			},
		}
		tmpl, err := template.New("telegram_message").Funcs(funcMap).Parse(messageTemplate)
		if err != nil {
			logger.Warnf("Failed to parse Telegram message template: %v, using default format", err)
		} else {
			tn.messageTemplate = tmpl
		}
	}

	return tn
}

// SendAlert delivers the alert, retrying transient failures with linear
// backoff. Flood control waits for the delay the API asks for.
func (tn *TelegramNotifier) SendAlert(alert model.Alert) error {
	if !tn.enabled {
		tn.logger.Debug("Telegram notifier is disabled, skipping alert")
		return nil
	}

	message := tn.formatAlertMessage(alert)

	var err error
	for attempt := 1; attempt <= telegramAttempts; attempt++ {
		if err = tn.sendMessage(message); err == nil {
			return nil
		}

		wait := time.Duration(attempt) * tn.retryDelay
		var apiErr *TelegramAPIError
		if errors.As(err, &apiErr) {
			if !apiErr.Retryable() {
				return fmt.Errorf("telegram rejected alert: %w", err)
			}
			if apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
		}

		tn.logger.Warnf("Failed to send alert (attempt %d/%d): %v", attempt, telegramAttempts, err)
		if attempt < telegramAttempts {
			time.Sleep(wait)
		}
	}

	return fmt.Errorf("failed to send alert after %d attempts: %w", telegramAttempts, err)
}

func (tn *TelegramNotifier) formatAlertMessage(alert model.Alert) string {
	if tn.messageTemplate != nil {
		var buf bytes.Buffer
		err := tn.messageTemplate.Execute(&buf, alert)
		if err != nil {
			tn.logger.Warnf("Failed to execute message template: %v, using default format", err)
		} else {
			return buf.String()
		}
	}
	return defaultAlertMessage(alert)
}

// defaultAlertMessage lays the alert out as a header, the verdict summary,
// the connection fields the form submits, and the features that were scored
// through the sentinel code.
func defaultAlertMessage(alert model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALERT FIRING: Botnet Traffic [%s]\n", alert.Severity)
	fmt.Fprintf(&b, "time: %s\n", alert.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "description: %s\n", alert.Message)

	v := alert.Verdict
	if v == nil {
		return strings.TrimRight(b.String(), "\n")
	}

	bundleID := v.BundleID
	if bundleID == "" {
		bundleID = "unknown"
	}
	fmt.Fprintf(&b, "\nverdict: %s (attack probability %.1f%%)\n", v.ID, v.Probability*100)
	fmt.Fprintf(&b, "bundle: %s\n", bundleID)

	if len(v.Input) > 0 {
		b.WriteString("\nconnection:\n")
		for _, name := range model.FormFields {
			if value, ok := v.Input[name]; ok {
				fmt.Fprintf(&b, "  %s = %s\n", name, value)
			}
		}
	}

	if len(v.Fallbacks) > 0 {
		b.WriteString("\nunseen categories (scored as code 0):\n")
		for _, name := range v.Fallbacks {
			fmt.Fprintf(&b, "  %s = %q\n", name, v.Input[name])
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func (tn *TelegramNotifier) sendMessage(text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", tn.apiURL, tn.botToken)

	// Markdown modes reject unescaped characters common in alert text.
	parseMode := ""
	if tn.parseMode != "" && tn.parseMode != "Markdown" && tn.parseMode != "MarkdownV2" {
		parseMode = tn.parseMode
	}

	body, err := json.Marshal(TelegramMessage{ChatID: tn.chatID, Text: text, ParseMode: parseMode})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var telegramResp TelegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&telegramResp); err != nil {
		return fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if !telegramResp.OK {
		apiErr := &TelegramAPIError{Code: telegramResp.ErrorCode, Description: telegramResp.Description}
		if apiErr.Code == 0 && resp.StatusCode >= http.StatusBadRequest {
			apiErr.Code = resp.StatusCode
		}
		if p := telegramResp.Parameters; p != nil && p.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(p.RetryAfter) * time.Second
		}
		return apiErr
	}

	tn.logger.Debug("Alert sent to Telegram")
	return nil
}

func (tn *TelegramNotifier) SendTestMessage() error {
	if !tn.enabled {
		return fmt.Errorf("telegram notifier is disabled")
	}
	return tn.sendMessage("Test Message\n\nBotnet Detector is working correctly!")
}

func (tn *TelegramNotifier) IsEnabled() bool {
	return tn.enabled
}
