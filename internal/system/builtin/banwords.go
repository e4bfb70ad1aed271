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

// BanWords drops messages containing a banned word and manages the list.
// Words map to the reason shown when a message is blocked.
type BanWords struct {
	env   *system.Env
	words *storage.Store[string]
}

func NewBanWords(env *system.Env) *BanWords {
	return &BanWords{env: env}
}

func (b *BanWords) Name() string  { return NameBanWords }
func (b *BanWords) Usage() string { return b.env.Tr("ban_words.usage", nil) }

// Initialize loads the word list.
func (b *BanWords) Initialize(ctx context.Context) error {
	if b.env.DB == nil {
		return errors.New("ban_words needs storage")
	}
	words, err := storage.NewStore[string](ctx, b.env.DB, NameBanWords)
	if err != nil {
		return fmt.Errorf("load ban words: %w", err)
	}
	b.words = words
	return nil
}

// Match returns the first banned word contained in text, ignoring case.
func (b *BanWords) Match(text string) (word, reason string, ok bool) {
	lower := strings.ToLower(text)
	for _, w := range b.words.Keys() {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			r, _ := b.words.Get(w)
			return w, r, true
		}
	}
	return "", "", false
}

func (b *BanWords) ProcessBroadcastInfo(ctx context.Context, info *message.BroadcastInfo) (bool, error) {
	if cmd, ok := parse(b.env, info, NameBanWords); ok {
		if !info.IsAdmin {
			return denied(ctx, b.env, info), nil
		}
		sub, rest := cmd.Sub()
		b.manage(ctx, info, sub, rest)
		return true, nil
	}
	if info.EventType != message.EventMessage {
		return false, nil
	}

	word, reason, ok := b.Match(info.Message.PlainText())
	if !ok {
		return false, nil
	}
	logger.Info().Str("word", word).Str("sender", info.Sender).Str("source", info.Source.String()).Msg("Message blocked")
	if system.IsLocal(info) {
		if reason == "" {
			reason = word
		}
		reply(ctx, b.env, info, "ban_words.blocked", map[string]any{"sender": info.Sender, "reason": reason})
	}
	return true, nil
}

func (b *BanWords) manage(ctx context.Context, info *message.BroadcastInfo, sub string, cmd command.Command) {
	switch sub {
	case "add":
		word := cmd.Arg(0)
		if word == "" {
			usage(ctx, b.env, info, "ban_words.usage")
			return
		}
		if err := b.words.Set(ctx, word, cmd.From(1)); err != nil {
			failed(ctx, b.env, info, err)
			return
		}
		reply(ctx, b.env, info, "ban_words.added", map[string]any{"word": word})
	case "del", "remove":
		word := cmd.Arg(0)
		if word == "" {
			usage(ctx, b.env, info, "ban_words.usage")
			return
		}
		err := b.words.Delete(ctx, word)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			reply(ctx, b.env, info, "ban_words.missing", map[string]any{"word": word})
		case err != nil:
			failed(ctx, b.env, info, err)
		default:
			reply(ctx, b.env, info, "ban_words.deleted", map[string]any{"word": word})
		}
	case "list":
		if b.words.Len() == 0 {
			reply(ctx, b.env, info, "ban_words.empty", nil)
			break
		}
		reply(ctx, b.env, info, "ban_words.list", map[string]any{"words": strings.Join(b.words.Keys(), ", ")})
	default:
		usage(ctx, b.env, info, "ban_words.usage")
	}
}
