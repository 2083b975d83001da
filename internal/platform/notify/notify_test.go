package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRenderReplacesPlaceholders(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, channel, err := e.Render("alert-created", map[string]string{
		"alert_type": "code_blue",
		"room":       "ICU-4",
		"urgency":    "5",
		"department": "ICU",
		"role":       "nurse",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if channel != ChannelSMS {
		t.Errorf("channel = %s, want sms", channel)
	}
	if !strings.Contains(subject, "code_blue") || !strings.Contains(subject, "ICU-4") {
		t.Errorf("subject not rendered: %q", subject)
	}
	if strings.Contains(body, "{{") {
		t.Errorf("body has unrendered placeholders: %q", body)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRegisterTemplateOverrides(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{
		ID:      "alert-created",
		Subject: "custom {{room}}",
		Body:    "custom body",
		Channel: ChannelEmail,
	})

	subject, _, channel, err := e.Render("alert-created", map[string]string{"room": "ER-1"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "custom ER-1" {
		t.Errorf("subject = %q", subject)
	}
	if channel != ChannelEmail {
		t.Errorf("channel = %s, want email", channel)
	}
}

func TestManagerSendSMS(t *testing.T) {
	sms := &MockSMSSender{}
	email := &MockEmailSender{}
	m := NewManager(email, sms, NewTemplateEngine())

	res := m.Send(context.Background(), Delivery{
		AlertID:    uuid.New(),
		Event:      "alert-escalated",
		Room:       "ICU-2",
		AlertType:  "cardiac_arrest",
		Urgency:    5,
		Department: "ICU",
		Role:       "attending_physician",
		Data:       map[string]string{"tier": "2"},
	})

	if !res.Delivered {
		t.Fatalf("expected delivered, got error %q", res.Error)
	}
	if res.Channel != ChannelSMS {
		t.Errorf("channel = %s", res.Channel)
	}
	calls := sms.Calls()
	if len(calls) != 1 {
		t.Fatalf("sms calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Body, "tier 2") {
		t.Errorf("body missing tier: %q", calls[0].Body)
	}
	if calls[0].To != "attending_physician@icu.oncall" {
		t.Errorf("recipient = %q", calls[0].To)
	}
	if len(email.Calls()) != 0 {
		t.Error("email sender should not be used for sms template")
	}
}

func TestManagerSendFailureJournaled(t *testing.T) {
	sms := &MockSMSSender{ShouldFail: true, FailError: "gateway timeout"}
	m := NewManager(&MockEmailSender{}, sms, NewTemplateEngine())

	res := m.Send(context.Background(), Delivery{
		AlertID:   uuid.New(),
		Event:     "alert-created",
		AlertType: "fire",
		Room:      "WARD-9",
	})
	if res.Delivered {
		t.Fatal("expected failure")
	}
	if res.Error != "gateway timeout" {
		t.Errorf("error = %q", res.Error)
	}

	journal := m.Journal()
	if len(journal) != 1 || journal[0].Delivered {
		t.Fatalf("journal = %+v", journal)
	}
	stats := m.Stats()
	if stats["failed"] != 1 || stats["delivered"] != 0 {
		t.Errorf("stats = %v", stats)
	}
}

func TestManagerCustomResolver(t *testing.T) {
	email := &MockEmailSender{}
	m := NewManager(email, &MockSMSSender{}, NewTemplateEngine())
	m.SetRecipientResolver(func(role, department string) string {
		return "pager-7"
	})

	res := m.Send(context.Background(), Delivery{
		Event:      "handover-pending",
		Department: "ER",
		Role:       "charge_nurse",
		Data:       map[string]string{"from_user": "n.okafor", "alert_count": "3"},
	})
	if !res.Delivered {
		t.Fatalf("send failed: %s", res.Error)
	}
	if res.Recipient != "pager-7" {
		t.Errorf("recipient = %q", res.Recipient)
	}
	calls := email.Calls()
	if len(calls) != 1 || !strings.Contains(calls[0].Body, "3 open alert(s)") {
		t.Fatalf("email calls = %+v", calls)
	}
}
