package builtin

import (
	"context"

	"mcqq/internal/system"
	"mcqq/pkg/message"
)

// Echo relays everything that reaches the end of the chain to every other
// connector.
type Echo struct {
	env *system.Env
}

func NewEcho(env *system.Env) *Echo {
	return &Echo{env: env}
}

func (e *Echo) Name() string                     { return NameEcho }
func (e *Echo) Initialize(context.Context) error { return nil }

func (e *Echo) ProcessBroadcastInfo(ctx context.Context, info *message.BroadcastInfo) (bool, error) {
	logFailures(e.env.Relay(ctx, info), "relay")
	return true, nil
}
