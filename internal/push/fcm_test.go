package push

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBuildMulticast_DeliveryHints(t *testing.T) {
	msg := &BatchMessage{
		Tokens:      []string{"t1", "t2"},
		Title:       "Goods receipt mismatch",
		Body:        "Ticket TKT-20250101-001-ab12 opened",
		ImageURL:    "https://example.com/i.png",
		ClickAction: "https://example.com/tickets/1",
		Data:        map[string]string{"ticket_id": "1"},
		Urgency:     UrgencyHigh,
		TTL:         time.Hour,
	}
	m := buildMulticast(msg)

	if len(m.Tokens) != 2 {
		t.Fatalf("tokens = %d", len(m.Tokens))
	}
	if m.Notification == nil || m.Notification.Title != msg.Title || m.Notification.ImageURL != msg.ImageURL {
		t.Fatalf("notification mapping broken: %+v", m.Notification)
	}
	if m.Android == nil || m.Android.Priority != "high" {
		t.Fatalf("android priority = %+v", m.Android)
	}
	if m.Android.TTL == nil || *m.Android.TTL != time.Hour {
		t.Fatalf("android ttl = %v", m.Android.TTL)
	}
	if m.Android.Notification == nil || m.Android.Notification.ClickAction != msg.ClickAction {
		t.Fatalf("click action not mapped: %+v", m.Android.Notification)
	}
	if m.Webpush == nil || m.Webpush.Headers["Urgency"] != "high" || m.Webpush.Headers["TTL"] != "3600" {
		t.Fatalf("webpush headers = %v", m.Webpush.Headers)
	}
	if m.Webpush.FCMOptions == nil || m.Webpush.FCMOptions.Link != msg.ClickAction {
		t.Fatalf("webpush link = %+v", m.Webpush.FCMOptions)
	}
}

func TestBuildMulticast_NoClickAction(t *testing.T) {
	m := buildMulticast(&BatchMessage{Tokens: []string{"t"}, Urgency: UrgencyNormal, TTL: 24 * time.Hour})
	if m.Android.Notification != nil {
		t.Fatal("android notification must stay nil without a click action")
	}
	if m.Webpush.FCMOptions != nil {
		t.Fatal("webpush fcm options must stay nil without a click action")
	}
	if m.Webpush.Headers["TTL"] != "86400" {
		t.Fatalf("TTL header = %q", m.Webpush.Headers["TTL"])
	}
}

func TestPermanentFailure_NilAndGeneric(t *testing.T) {
	if permanentFailure(nil) {
		t.Fatal("nil error is not a permanent failure")
	}
	if permanentFailure(errors.New("transient network blip")) {
		t.Fatal("generic errors must not deactivate endpoints")
	}
}

func TestDisabledGateway(t *testing.T) {
	g := Disabled()
	if g.Enabled() {
		t.Fatal("disabled gateway must report Enabled() == false")
	}
	if _, err := g.Send(context.Background(), &BatchMessage{}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Send on disabled gateway = %v, want ErrDisabled", err)
	}
}

func TestFCMGateway_RequiresCredentials(t *testing.T) {
	if _, err := NewFCMGateway(context.Background(), ""); err == nil {
		t.Fatal("empty credentials file must be rejected")
	}
	var g *FCMGateway
	if g.Enabled() {
		t.Fatal("nil gateway must not report enabled")
	}
}
