package push

import (
	"context"
	"errors"
)

// ErrDisabled is returned if Send is called on the disabled gateway.
var ErrDisabled = errors.New("push: gateway disabled")

type disabledGateway struct{}

// Disabled returns a Gateway whose Enabled() is false. Used when the kill
// switch is off or no credentials are configured; the dispatcher then
// simulates delivery instead of calling Send.
func Disabled() Gateway { return disabledGateway{} }

func (disabledGateway) Enabled() bool { return false }

func (disabledGateway) Send(context.Context, *BatchMessage) (*BatchResult, error) {
	return nil, ErrDisabled
}
