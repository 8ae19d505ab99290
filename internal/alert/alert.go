// Package alert posts failure notices to a Slack incoming webhook.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"
)

// DefaultTitle heads every message unless another title is configured.
const DefaultTitle = "OpsNow360 Health Check"

// Alerter sends Slack notifications for failed checks.
type Alerter struct {
	webhookURL string
	title      string
	cooldown   time.Duration
	client     *http.Client
	lastAlert  map[string]time.Time
	mu         sync.Mutex
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// New creates a new Alerter. An empty webhookURL disables sending. Pass nil
// logger to use the default logger.
func New(webhookURL, title string, cooldown time.Duration, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	if title == "" {
		title = DefaultTitle
	}
	return &Alerter{
		webhookURL: webhookURL,
		title:      title,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		lastAlert:  make(map[string]time.Time),
		logger:     logger,
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a != nil && a.webhookURL != ""
}

type slackPayload struct {
	Text string `json:"text"`
}

// Text renders the message body for a failed check.
func (a *Alerter) Text(check, reason, screenshot string) string {
	file := ""
	if screenshot != "" {
		file = filepath.Base(screenshot)
	}
	return fmt.Sprintf("%s\n- Incident Message : [%s] : Fail - \"%s\"\n- Add Screenshot : %s", a.title, check, reason, file)
}

// Notify reports a failed check unless the same check alerted within the
// cooldown. The message is sent in the background; call Wait before exiting.
func (a *Alerter) Notify(check, reason, screenshot string) {
	if !a.Enabled() {
		return
	}

	a.mu.Lock()
	last, exists := a.lastAlert[check]
	if exists && a.cooldown > 0 && time.Since(last) < a.cooldown {
		a.mu.Unlock()
		a.logger.Info("alert suppressed by cooldown", "check", check)
		return
	}
	a.lastAlert[check] = time.Now()
	a.mu.Unlock()

	text := a.Text(check, reason, screenshot)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.send(check, text)
	}()
}

// Wait blocks until every pending notification has been sent or has failed.
func (a *Alerter) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}

func (a *Alerter) send(check, text string) {
	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		a.logger.Error("marshaling slack payload", "check", check, "error", err)
		return
	}

	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("sending slack alert", "check", check, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("slack webhook returned non-2xx status",
			"check", check,
			"status", resp.StatusCode,
		)
	}
}
