package builtin

import (
	"context"

	"mcqq/internal/system"
	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// Online answers "list" with the players on the server.
type Online struct {
	env *system.Env
}

func NewOnline(env *system.Env) *Online {
	return &Online{env: env}
}

func (o *Online) Name() string                     { return NameOnline }
func (o *Online) Initialize(context.Context) error { return nil }
func (o *Online) Usage() string                    { return o.env.Tr("online.usage", nil) }

func (o *Online) ProcessBroadcastInfo(ctx context.Context, info *message.BroadcastInfo) (bool, error) {
	if _, ok := parse(o.env, info, "list"); !ok {
		return false, nil
	}
	if o.env.Host == nil {
		reply(ctx, o.env, info, "common.unavailable", nil)
		return true, nil
	}
	list, err := o.env.Host.Players(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Player list query failed")
		reply(ctx, o.env, info, "common.unavailable", nil)
		return true, nil
	}
	if list.Online == 0 {
		reply(ctx, o.env, info, "online.none", nil)
		return true, nil
	}
	reply(ctx, o.env, info, "online.result", map[string]any{
		"count":   list.Online,
		"max":     list.Max,
		"players": joinOr(list.Names, "-"),
	})
	return true, nil
}
