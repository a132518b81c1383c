package adapter

import (
	"context"

	"github.com/google/uuid"
)

// Noop accepts every send and fabricates an external id. Channels
// without a configured integration use it so the scheduler, pacing and
// audit trail behave exactly as they would against a real endpoint.
type Noop struct{}

func (Noop) Send(_ context.Context, _ Payload) (string, error) {
	return "noop-" + uuid.New().String(), nil
}

var _ Adapter = Noop{}
