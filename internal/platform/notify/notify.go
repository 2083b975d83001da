// Package notify delivers alert and handover notifications to on-duty staff.
// Delivery is at-least-once and fire-and-log: the escalation deadline, not a
// delivery receipt, is the engine's safety mechanism, so a failed send is
// recorded and never blocks a state transition.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel represents the transport used to deliver a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Delivery describes one notification the engine wants delivered to the
// on-duty holder of a role within a department.
type Delivery struct {
	AlertID    uuid.UUID
	Event      string // template id: alert-created, alert-escalated, ...
	Room       string
	AlertType  string
	Urgency    int
	Department string
	Role       string
	Data       map[string]string // extra template fields
}

// DeliveryResult reports the outcome of a send for timeline metadata.
type DeliveryResult struct {
	ID        string    `json:"id"`
	Delivered bool      `json:"delivered"`
	Channel   Channel   `json:"channel"`
	Recipient string    `json:"recipient"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Notifier is the capability the escalation controller consumes.
type Notifier interface {
	Send(ctx context.Context, d Delivery) DeliveryResult
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string
	Subject string
	Body    string
	Channel Channel
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "alert-created",
			Subject: "New {{alert_type}} alert in {{room}}",
			Body:    "A {{alert_type}} alert (urgency {{urgency}}) was raised in {{room}}. {{department}} {{role}} on duty: acknowledge within the response window.",
			Channel: ChannelSMS,
		},
		{
			ID:      "alert-escalated",
			Subject: "ESCALATED: {{alert_type}} alert in {{room}} now at tier {{tier}}",
			Body:    "The {{alert_type}} alert in {{room}} went unacknowledged and has escalated to tier {{tier}}. {{role}}, this alert is now yours.",
			Channel: ChannelSMS,
		},
		{
			ID:      "alert-renotify",
			Subject: "STILL OPEN: {{alert_type}} alert in {{room}}",
			Body:    "The {{alert_type}} alert in {{room}} remains unacknowledged at the final escalation tier. {{role}}, immediate response required.",
			Channel: ChannelSMS,
		},
		{
			ID:      "handover-pending",
			Subject: "Shift handover awaiting acceptance",
			Body:    "{{from_user}} has prepared a shift handover for {{department}} with {{alert_count}} open alert(s). Accept or decline before the grace window closes.",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, channel Channel, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, t.Channel, nil
}

// RecipientResolver maps (role, department) to a deliverable address. The
// default joins them into an on-call routing key; production deployments
// plug in a roster lookup.
type RecipientResolver func(role, department string) string

func defaultResolver(role, department string) string {
	return strings.ToLower(role) + "@" + strings.ToLower(department) + ".oncall"
}

// Manager renders templates, dispatches through the channel senders, and
// keeps an in-memory journal of every attempt.
type Manager struct {
	email   EmailSender
	sms     SMSSender
	tpl     *TemplateEngine
	resolve RecipientResolver
	mu      sync.RWMutex
	journal []DeliveryResult
	maxKept int
}

// NewManager constructs a Manager with the default recipient resolver.
func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		email:   email,
		sms:     sms,
		tpl:     tpl,
		resolve: defaultResolver,
		maxKept: 1000,
	}
}

// SetRecipientResolver replaces the roster lookup.
func (m *Manager) SetRecipientResolver(r RecipientResolver) { m.resolve = r }

// Send renders the delivery's template and dispatches it. The result is
// always journaled, success or failure.
func (m *Manager) Send(ctx context.Context, d Delivery) DeliveryResult {
	data := map[string]string{
		"room":       d.Room,
		"alert_type": d.AlertType,
		"urgency":    fmt.Sprintf("%d", d.Urgency),
		"department": d.Department,
		"role":       d.Role,
	}
	for k, v := range d.Data {
		data[k] = v
	}

	result := DeliveryResult{
		ID:        uuid.New().String(),
		Recipient: m.resolve(d.Role, d.Department),
		SentAt:    time.Now().UTC(),
	}

	subject, body, channel, err := m.tpl.Render(d.Event, data)
	if err != nil {
		result.Error = err.Error()
		m.record(result)
		return result
	}
	result.Channel = channel

	var sendErr error
	switch channel {
	case ChannelEmail:
		sendErr = m.email.SendEmail(ctx, result.Recipient, subject, body)
	case ChannelSMS:
		sendErr = m.sms.SendSMS(ctx, result.Recipient, subject+" — "+body)
	default:
		sendErr = fmt.Errorf("unsupported channel: %s", channel)
	}

	if sendErr != nil {
		result.Error = sendErr.Error()
	} else {
		result.Delivered = true
	}
	m.record(result)
	return result
}

func (m *Manager) record(r DeliveryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = append(m.journal, r)
	if len(m.journal) > m.maxKept {
		m.journal = m.journal[len(m.journal)-m.maxKept:]
	}
}

// Journal returns a copy of recorded delivery attempts, oldest first.
func (m *Manager) Journal() []DeliveryResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DeliveryResult, len(m.journal))
	copy(out, m.journal)
	return out
}

// Stats returns delivery counts grouped by outcome.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int)
	for _, r := range m.journal {
		if r.Delivered {
			stats["delivered"]++
		} else {
			stats["failed"]++
		}
	}
	return stats
}

// -- Mock senders (test doubles, also used by the dev server) --

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
