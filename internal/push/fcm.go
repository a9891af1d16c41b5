// Package push – Firebase Cloud Messaging gateway.
//
// One Send maps to one SendEachForMulticast call (FCM caps a multicast at
// 500 tokens; the dispatcher's batch size must respect that bound).
package push

import (
	"context"
	"errors"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMGateway delivers batches through Firebase Cloud Messaging.
type FCMGateway struct {
	client *messaging.Client
}

// NewFCMGateway builds a gateway from a service-account credentials file.
func NewFCMGateway(ctx context.Context, credentialsFile string) (*FCMGateway, error) {
	if credentialsFile == "" {
		return nil, errors.New("push: credentials file required")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &FCMGateway{client: client}, nil
}

// Enabled reports whether the underlying client is usable.
func (g *FCMGateway) Enabled() bool { return g != nil && g.client != nil }

// Send delivers one batch and maps the FCM per-token responses onto
// SendOutcome values, classifying permanently invalid endpoints.
func (g *FCMGateway) Send(ctx context.Context, msg *BatchMessage) (*BatchResult, error) {
	resp, err := g.client.SendEachForMulticast(ctx, buildMulticast(msg))
	if err != nil {
		return nil, err
	}

	out := &BatchResult{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
		Responses:    make([]SendOutcome, 0, len(resp.Responses)),
	}
	for i, r := range resp.Responses {
		o := SendOutcome{MessageID: r.MessageID}
		if i < len(msg.Tokens) {
			o.Token = msg.Tokens[i]
		}
		if !r.Success {
			o.Err = r.Error
			o.Unregistered = permanentFailure(r.Error)
		}
		out.Responses = append(out.Responses, o)
	}
	return out, nil
}

// buildMulticast translates the provider-neutral batch message into the FCM
// multicast shape, applying the urgency/TTL delivery hints to both Android
// and Webpush transports.
func buildMulticast(msg *BatchMessage) *messaging.MulticastMessage {
	ttl := msg.TTL
	android := &messaging.AndroidConfig{
		Priority: string(msg.Urgency),
		TTL:      &ttl,
	}
	if msg.ClickAction != "" {
		android.Notification = &messaging.AndroidNotification{ClickAction: msg.ClickAction}
	}

	webpush := &messaging.WebpushConfig{Headers: webpushHeaders(msg.Urgency, msg.TTL)}
	if msg.ClickAction != "" {
		webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: msg.ClickAction}
	}

	return &messaging.MulticastMessage{
		Tokens: msg.Tokens,
		Notification: &messaging.Notification{
			Title:    msg.Title,
			Body:     msg.Body,
			ImageURL: msg.ImageURL,
		},
		Data:    msg.Data,
		Android: android,
		Webpush: webpush,
	}
}

// webpushHeaders renders the Web Push protocol headers for a delivery hint.
func webpushHeaders(u Urgency, ttl time.Duration) map[string]string {
	return map[string]string{
		"Urgency": string(u),
		"TTL":     strconv.Itoa(int(ttl / time.Second)),
	}
}

// permanentFailure reports whether an FCM error means the endpoint is gone
// for good (uninstalled app, rotated token, wrong sender). Transient
// conditions (quota, unavailable, internal) are left for the retry sweeper.
func permanentFailure(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err)
}
