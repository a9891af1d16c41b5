// Package push abstracts the batched push-notification gateway. The
// dispatcher talks to the Gateway interface only; the concrete FCM client
// and the disabled (simulate) stub both implement it. One Send call covers
// one batch of endpoints and yields one outcome per endpoint, with errors
// already classified into "endpoint permanently invalid" vs. other.
package push

import (
	"context"
	"time"
)

// Urgency is the gateway-level delivery hint derived from the logical
// notification priority.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyNormal Urgency = "normal"
)

// BatchMessage is one gateway call: the same notification content fanned out
// to a batch of endpoints.
type BatchMessage struct {
	Tokens      []string
	Title       string
	Body        string
	ImageURL    string
	ClickAction string
	Data        map[string]string
	Urgency     Urgency
	TTL         time.Duration
}

// SendOutcome is the per-endpoint result of a batch call. Unregistered marks
// the endpoint as permanently invalid (to be deactivated); any other Err is
// treated as transient.
type SendOutcome struct {
	Token        string
	MessageID    string
	Err          error
	Unregistered bool
}

// BatchResult aggregates the outcomes of one batch call.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Responses    []SendOutcome
}

// Gateway is the push delivery port. Enabled reports whether real delivery
// is possible; when false the dispatcher takes its simulate path and Send
// must not be called.
type Gateway interface {
	Send(ctx context.Context, msg *BatchMessage) (*BatchResult, error)
	Enabled() bool
}
