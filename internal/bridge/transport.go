package bridge

import (
	"context"

	"github.com/agent-hub/backend/internal/model"
)

// virtualTransport is the hub transport of the virtual session. Replies and
// errors go to the peer; typing and system envelopes stay local.
type virtualTransport struct {
	bridge *Bridge
}

func (t *virtualTransport) Send(env model.Envelope) error {
	switch env.Type {
	case model.EnvelopeMessage, model.EnvelopeError:
		return t.bridge.Send(context.Background(), env.Message, env.Agent)
	default:
		return nil
	}
}

func (t *virtualTransport) Close() error {
	return nil
}
