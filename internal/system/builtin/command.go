package builtin

import (
	"context"
	"strings"

	"mcqq/internal/system"
	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// Command runs a console command on the server for admins and replies with
// its output.
type Command struct {
	env *system.Env
}

func NewCommand(env *system.Env) *Command {
	return &Command{env: env}
}

func (c *Command) Name() string                     { return NameCommand }
func (c *Command) Initialize(context.Context) error { return nil }
func (c *Command) Usage() string                    { return c.env.Tr("command.usage", nil) }

func (c *Command) ProcessBroadcastInfo(ctx context.Context, info *message.BroadcastInfo) (bool, error) {
	cmd, ok := parse(c.env, info, "cmd")
	if !ok {
		return false, nil
	}
	if !info.IsAdmin {
		return denied(ctx, c.env, info), nil
	}
	if cmd.Rest == "" {
		return usage(ctx, c.env, info, "command.usage"), nil
	}
	if c.env.Host == nil {
		reply(ctx, c.env, info, "common.unavailable", nil)
		return true, nil
	}

	out, err := c.env.Host.Query(ctx, strings.TrimPrefix(cmd.Rest, "/"))
	if err != nil {
		logger.Warn().Err(err).Str("command", cmd.Rest).Msg("Server command failed")
		reply(ctx, c.env, info, "common.internal_error", map[string]any{"error": err.Error()})
		return true, nil
	}
	if out = strings.TrimSpace(out); out == "" {
		reply(ctx, c.env, info, "command.empty", nil)
		return true, nil
	}
	reply(ctx, c.env, info, "command.result", map[string]any{"output": out})
	return true, nil
}
