package builtin

import (
	"context"
	"strings"

	"mcqq/internal/system"
	"mcqq/pkg/message"
)

// Help lists the usage line of every system that has one.
type Help struct {
	env *system.Env
}

func NewHelp(env *system.Env) *Help {
	return &Help{env: env}
}

func (h *Help) Name() string                     { return NameHelp }
func (h *Help) Initialize(context.Context) error { return nil }
func (h *Help) Usage() string                    { return h.env.Tr("help.usage", nil) }

func (h *Help) ProcessBroadcastInfo(ctx context.Context, info *message.BroadcastInfo) (bool, error) {
	if _, ok := parse(h.env, info, "help"); !ok {
		return false, nil
	}
	lines := []string{h.env.Tr("help.header", nil)}
	if h.env.Systems != nil {
		for _, s := range h.env.Systems() {
			if u, ok := s.(system.Helper); ok {
				lines = append(lines, u.Usage())
			}
		}
	}
	logFailures(h.env.ReplyText(ctx, info, strings.Join(lines, "\n")), "help")
	return true, nil
}
