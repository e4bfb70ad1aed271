package builtin

import (
	"context"
	"errors"
	"strings"
	"time"

	"mcqq/internal/player"
	"mcqq/internal/storage"
	"mcqq/internal/system"
	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// NoticeGroupDecrease is the QQ notice sent when a member leaves a group.
const NoticeGroupDecrease = "group_decrease"

const defaultBindCooldown = 60 * time.Second

// BindOptions configures the bind system.
type BindOptions struct {
	// Minecraft is the name of the Minecraft connector; messages that enter
	// there bind by player name instead of QQ account.
	Minecraft string
}

// Bind links chat accounts to game names.
type Bind struct {
	env      *system.Env
	opts     BindOptions
	cooldown *storage.KV
}

func NewBind(env *system.Env, opts BindOptions) *Bind {
	return &Bind{env: env, opts: opts}
}

func (b *Bind) Name() string  { return NameBind }
func (b *Bind) Usage() string { return b.env.Tr("bind.usage", nil) }

func (b *Bind) Initialize(context.Context) error {
	if b.env.Players == nil {
		return errors.New("bind needs the player registry")
	}
	if b.env.DB != nil {
		b.cooldown = b.env.DB.KV("bind_cooldown")
	}
	return nil
}

func (b *Bind) ProcessBroadcastInfo(ctx context.Context, info *message.BroadcastInfo) (bool, error) {
	if info.EventType == message.EventNotice && info.EventSubType == NoticeGroupDecrease {
		return b.memberLeft(ctx, info), nil
	}
	if cmd, ok := parse(b.env, info, "bind"); ok {
		b.bind(ctx, info, cmd.Arg(0), cmd.Arg(1))
		return true, nil
	}
	if cmd, ok := parse(b.env, info, "unbind"); ok {
		b.unbind(ctx, info, cmd.Rest)
		return true, nil
	}
	if cmd, ok := parse(b.env, info, "whois"); ok {
		b.whois(ctx, info, cmd.Rest)
		return true, nil
	}
	return b.requireBind(ctx, info), nil
}

func (b *Bind) platform(info *message.BroadcastInfo) string {
	return system.Platform(info, b.opts.Minecraft)
}

func (b *Bind) bind(ctx context.Context, info *message.BroadcastInfo, kindArg, name string) {
	if kindArg == "" || name == "" {
		usage(ctx, b.env, info, "bind.usage")
		return
	}
	kind, ok := player.ParseKind(kindArg)
	if !ok {
		reply(ctx, b.env, info, "bind.bad_kind", map[string]any{"kind": kindArg})
		return
	}

	_, err := b.env.Players.Bind(ctx, b.platform(info), info.SenderID, kind, name)
	switch {
	case errors.Is(err, player.ErrLimitExceeded):
		reply(ctx, b.env, info, "bind.limit", nil)
	case errors.Is(err, player.ErrNameTaken):
		reply(ctx, b.env, info, "bind.taken", map[string]any{"name": name})
	case err != nil:
		failed(ctx, b.env, info, err)
	default:
		logger.Info().Str("account", info.SenderID).Str("name", name).Str("kind", string(kind)).Msg("Player bound")
		reply(ctx, b.env, info, "bind.success", map[string]any{"sender": info.Sender, "kind": kind, "name": name})
	}
}

func (b *Bind) unbind(ctx context.Context, info *message.BroadcastInfo, name string) {
	removed, err := b.env.Players.Unbind(ctx, b.platform(info), info.SenderID, name)
	switch {
	case errors.Is(err, player.ErrNotBound):
		reply(ctx, b.env, info, "bind.not_bound", nil)
	case err != nil:
		failed(ctx, b.env, info, err)
	case name == "":
		reply(ctx, b.env, info, "bind.unbind_all", map[string]any{"sender": info.Sender})
	default:
		reply(ctx, b.env, info, "bind.unbound", map[string]any{"name": strings.Join(removed, ", ")})
	}
}

func (b *Bind) whois(ctx context.Context, info *message.BroadcastInfo, name string) {
	var (
		p     player.Player
		found bool
	)
	if name == "" {
		name = info.Sender
		p, found = b.env.Players.FindByAccount(b.platform(info), info.SenderID)
	} else {
		p, found = b.env.Players.FindByName(name)
	}
	if !found {
		reply(ctx, b.env, info, "bind.whois_none", map[string]any{"name": name})
		return
	}
	reply(ctx, b.env, info, "bind.whois", map[string]any{
		"name":    p.Name,
		"java":    joinOr(p.JavaName, "-"),
		"bedrock": joinOr(p.BedrockName, "-"),
	})
}

// memberLeft drops the bindings of an account that left the group.
func (b *Bind) memberLeft(ctx context.Context, info *message.BroadcastInfo) bool {
	if info.SenderID == "" {
		return false
	}
	removed, err := b.env.Players.UnbindAccount(ctx, player.PlatformQQ, info.SenderID)
	if errors.Is(err, player.ErrNotBound) {
		return false
	}
	if err != nil {
		logger.Error().Err(err).Str("account", info.SenderID).Msg("Unbind on leave failed")
		return false
	}
	logger.Info().Str("account", info.SenderID).Strs("names", removed).Msg("Member left, bindings removed")
	if len(removed) > 0 {
		sender := b.env.QQName(ctx, info.SourceID, info.SenderID)
		text := b.env.Tr("bind.left", map[string]any{"sender": sender, "names": strings.Join(removed, ", ")})
		logFailures(b.env.Announce(ctx, info, message.TextMessage(text)), "announce")
	}
	return true
}

// requireBind claims chat from unbound QQ accounts when binding is
// mandatory. The reminder is sent at most once per cooldown.
func (b *Bind) requireBind(ctx context.Context, info *message.BroadcastInfo) bool {
	if info.EventType != message.EventMessage || !system.IsLocal(info) || info.IsAdmin {
		return false
	}
	if !b.env.Bool([]string{"systems", "bind", "require_bind"}, false) {
		return false
	}
	if b.platform(info) != player.PlatformQQ || info.SenderID == "" {
		return false
	}
	if _, ok := b.env.Players.FindByAccount(player.PlatformQQ, info.SenderID); ok {
		return false
	}

	if b.cooldown != nil {
		key := info.SenderID
		if seen, err := b.cooldown.Exists(ctx, key); err == nil && seen {
			return true
		}
		cd := time.Duration(b.env.Int([]string{"systems", "bind", "cooldown"}, 0)) * time.Second
		if cd <= 0 {
			cd = defaultBindCooldown
		}
		if err := b.cooldown.Set(ctx, key, "1", cd); err != nil {
			logger.Warn().Err(err).Msg("Bind cooldown not saved")
		}
	}
	reply(ctx, b.env, info, "bind.require", map[string]any{"sender": info.Sender})
	return true
}
