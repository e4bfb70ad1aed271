package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mcqq/internal/storage"
	"mcqq/internal/system"
	"mcqq/pkg/command"
	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// Keyword answers messages that equal a configured key. The original
// message is still relayed; the reply goes to every connector.
type Keyword struct {
	env     *system.Env
	replies *storage.Store[string]
}

func NewKeyword(env *system.Env) *Keyword {
	return &Keyword{env: env}
}

func (k *Keyword) Name() string  { return NameKeyword }
func (k *Keyword) Usage() string { return k.env.Tr("keyword.usage", nil) }

// Initialize loads the keyword table.
func (k *Keyword) Initialize(ctx context.Context) error {
	if k.env.DB == nil {
		return errors.New("keyword needs storage")
	}
	replies, err := storage.NewStore[string](ctx, k.env.DB, NameKeyword)
	if err != nil {
		return fmt.Errorf("load keywords: %w", err)
	}
	k.replies = replies
	return nil
}

// Reload rereads the table from storage.
func (k *Keyword) Reload(ctx context.Context) error {
	return k.replies.Load(ctx)
}

// Lookup returns the reply for text.
func (k *Keyword) Lookup(text string) (string, bool) {
	return k.replies.Get(strings.TrimSpace(text))
}

func (k *Keyword) ProcessBroadcastInfo(ctx context.Context, info *message.BroadcastInfo) (bool, error) {
	if cmd, ok := parse(k.env, info, NameKeyword); ok {
		sub, rest := cmd.Sub()
		k.manage(ctx, info, sub, rest)
		return true, nil
	}
	if info.EventType != message.EventMessage || !system.IsLocal(info) {
		return false, nil
	}

	text := info.Message.PlainText()
	if command.HasPrefix(text, k.env.CommandPrefix()) {
		return false, nil
	}
	answer, ok := k.Lookup(text)
	if !ok {
		return false, nil
	}
	logFailures(k.env.Relay(ctx, info), "relay")
	logFailures(k.env.Announce(ctx, info, message.TextMessage(answer)), "keyword")
	logger.Debug().Str("keyword", strings.TrimSpace(info.Message.PlainText())).Msg("Keyword answered")
	return true, nil
}

func (k *Keyword) manage(ctx context.Context, info *message.BroadcastInfo, sub string, cmd command.Command) {
	if sub != "list" && !info.IsAdmin {
		denied(ctx, k.env, info)
		return
	}
	switch sub {
	case "add":
		key, answer := cmd.Arg(0), cmd.From(1)
		if key == "" || answer == "" {
			usage(ctx, k.env, info, "keyword.usage")
			return
		}
		if command.HasPrefix(key, k.env.CommandPrefix()) {
			reply(ctx, k.env, info, "keyword.bad_key", map[string]any{"key": key})
			return
		}
		if err := k.replies.Set(ctx, key, answer); err != nil {
			failed(ctx, k.env, info, err)
			return
		}
		reply(ctx, k.env, info, "keyword.added", map[string]any{"key": key})
	case "del", "remove":
		key := cmd.Arg(0)
		if key == "" {
			usage(ctx, k.env, info, "keyword.usage")
			return
		}
		err := k.replies.Delete(ctx, key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			reply(ctx, k.env, info, "keyword.missing", map[string]any{"key": key})
		case err != nil:
			failed(ctx, k.env, info, err)
		default:
			reply(ctx, k.env, info, "keyword.deleted", map[string]any{"key": key})
		}
	case "list":
		if k.replies.Len() == 0 {
			reply(ctx, k.env, info, "keyword.empty", nil)
			return
		}
		reply(ctx, k.env, info, "keyword.list", map[string]any{"keys": strings.Join(k.replies.Keys(), ", ")})
	default:
		usage(ctx, k.env, info, "keyword.usage")
	}
}
