package adapter

import (
	"context"

	"github.com/promohub/channel-dispatch/internal/domain"
)

// Payload is the channel-ready content of one send.
type Payload struct {
	OfferID  string `json:"offer_id"`
	Text     string `json:"text"`
	Priority string `json:"priority"`
}

// Adapter publishes a payload to one external channel. Implementations
// must respect ctx cancellation; the executor bounds every send with a
// timeout. Mocking this interface in tests gives full control over
// channel behaviour without real network calls.
type Adapter interface {
	Send(ctx context.Context, p Payload) (externalID string, err error)
}

// Registry maps each channel to its adapter. Channels without a
// configured integration fall back to the noop adapter so the pipeline
// behaves uniformly.
type Registry map[domain.Channel]Adapter

// For returns the adapter for the channel, falling back to noop.
func (r Registry) For(ch domain.Channel) Adapter {
	if a, ok := r[ch]; ok {
		return a
	}
	return Noop{}
}
