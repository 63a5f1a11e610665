package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/resilience"
)

// DefaultDailyQuota is the send limit per UTC day.
const DefaultDailyQuota = 100

// ErrQuotaExceeded is returned when the daily send quota is used up.
var ErrQuotaExceeded = eris.New("notify: daily email quota exceeded")

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// EmailLog is the persistence the mailer needs.
type EmailLog interface {
	LogEmail(ctx context.Context, entry *model.EmailLog) error
	CountEmailsSince(ctx context.Context, since time.Time, status model.EmailStatus) (int, error)
}

// Mailer renders lifecycle emails and sends them within the daily quota.
type Mailer struct {
	log    EmailLog
	sender Sender
	from   string
	quota  int
	now    func() time.Time
}

// NewMailer creates a Mailer. A non-positive quota uses DefaultDailyQuota.
func NewMailer(log EmailLog, sender Sender, from string, quota int) *Mailer {
	if quota <= 0 {
		quota = DefaultDailyQuota
	}
	return &Mailer{log: log, sender: sender, from: from, quota: quota, now: time.Now}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Usage returns the emails sent so far today and the quota.
func (m *Mailer) Usage(ctx context.Context) (sent, quota int, err error) {
	sent, err = m.log.CountEmailsSince(ctx, startOfDay(m.now()), model.EmailSent)
	return sent, m.quota, eris.Wrap(err, "notify: count sent emails")
}

// Notify renders typ and sends it to to. The quota is checked before any
// send; over quota the attempt is logged as deferred and ErrQuotaExceeded
// is returned. Every attempt is logged.
func (m *Mailer) Notify(ctx context.Context, typ model.EmailType, to string, data map[string]string) error {
	subject, body, err := Render(typ, data)
	if err != nil {
		return err
	}

	sent, _, err := m.Usage(ctx)
	if err != nil {
		return err
	}
	entry := &model.EmailLog{Type: typ, Recipient: to}
	if sent >= m.quota {
		entry.Status = model.EmailDeferred
		entry.Error = ErrQuotaExceeded.Error()
		m.record(ctx, entry)
		zap.L().Warn("notify: quota exceeded, email deferred",
			zap.String("email_type", string(typ)), zap.Int("sent", sent), zap.Int("quota", m.quota))
		return eris.Wrapf(ErrQuotaExceeded, "notify: %d of %d sent today", sent, m.quota)
	}

	err = m.sender.Send(ctx, Message{From: m.from, To: to, Subject: subject, Body: body})
	if err != nil {
		entry.Status = model.EmailFailed
		entry.Error = err.Error()
		m.record(ctx, entry)
		return eris.Wrapf(err, "notify: send %s", typ)
	}
	entry.Status = model.EmailSent
	m.record(ctx, entry)
	return nil
}

func (m *Mailer) record(ctx context.Context, entry *model.EmailLog) {
	if err := m.log.LogEmail(ctx, entry); err != nil {
		zap.L().Error("notify: failed to log email", zap.String("email_type", string(entry.Type)), zap.Error(err))
	}
}

// SendGridSender posts messages to a SendGrid v3 compatible mail API.
type SendGridSender struct {
	apiKey  string
	baseURL string
	http    *http.Client
	breaker *resilience.Breaker
	policy  resilience.Policy
}

// NewSendGridSender creates a sender. An empty baseURL uses the public API.
func NewSendGridSender(apiKey, baseURL string, breaker *resilience.Breaker, policy resilience.Policy) *SendGridSender {
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	if breaker == nil {
		breaker = resilience.NewBreaker("email", resilience.BreakerConfig{})
	}
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetry("email", "send")
	}
	return &SendGridSender{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: breaker,
		policy:  policy,
	}
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send implements Sender.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(sgRequest{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.To}}}},
		From:             sgAddress{Email: msg.From},
		Subject:          msg.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: msg.Body}},
	})
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}

	_, err = resilience.Protect(ctx, s.breaker, s.policy, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, eris.Wrap(err, "notify: create request")
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.http.Do(req)
		if err != nil {
			return struct{}{}, eris.Wrap(err, "notify: send request")
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return struct{}{}, resilience.StatusError("email", resp.StatusCode, string(body))
		}
		return struct{}{}, nil
	})
	return err
}
