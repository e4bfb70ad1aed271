// Package player keeps the binding between chat accounts and game names.
package player

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"mcqq/internal/storage"
)

// Namespace is the storage namespace holding player records.
const Namespace = "players"

// Platforms an account can belong to.
const (
	PlatformQQ        = "qq"
	PlatformMinecraft = "minecraft"
)

// Kind is the game edition a name belongs to.
type Kind string

const (
	KindJava    Kind = "java"
	KindBedrock Kind = "bedrock"
)

// ParseKind accepts "java"/"je" and "bedrock"/"be".
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "java", "je":
		return KindJava, true
	case "bedrock", "be":
		return KindBedrock, true
	}
	return "", false
}

var (
	ErrLimitExceeded = errors.New("binding limit exceeded")
	ErrNameTaken     = errors.New("name bound to another player")
	ErrNotBound      = errors.New("not bound")
	ErrUnknownPlayer = errors.New("unknown player")
)

// Player is one person's set of game names and chat accounts.
type Player struct {
	Name        string              `json:"name"`
	JavaName    []string            `json:"java_name"`
	BedrockName []string            `json:"bedrock_name"`
	Accounts    map[string][]string `json:"accounts"`
	Properties  map[string]any      `json:"properties,omitempty"`
}

// IsEmpty reports whether the player holds no names and no accounts.
func (p *Player) IsEmpty() bool {
	if len(p.JavaName) > 0 || len(p.BedrockName) > 0 {
		return false
	}
	for _, ids := range p.Accounts {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Names returns every game name, java first.
func (p *Player) Names() []string {
	return append(slices.Clone(p.JavaName), p.BedrockName...)
}

// HasAccount reports whether id is bound on platform.
func (p *Player) HasAccount(platform, id string) bool {
	return slices.Contains(p.Accounts[platform], id)
}

// HasName reports whether name is one of the game names, ignoring case.
func (p *Player) HasName(name string) bool {
	for _, n := range p.Names() {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Bool reads a boolean property.
func (p *Player) Bool(key string) bool {
	v, _ := p.Properties[key].(bool)
	return v
}

func (p Player) clone() Player {
	cp := p
	cp.JavaName = slices.Clone(p.JavaName)
	cp.BedrockName = slices.Clone(p.BedrockName)
	cp.Accounts = make(map[string][]string, len(p.Accounts))
	for k, v := range p.Accounts {
		cp.Accounts[k] = slices.Clone(v)
	}
	if p.Properties != nil {
		cp.Properties = make(map[string]any, len(p.Properties))
		for k, v := range p.Properties {
			cp.Properties[k] = v
		}
	}
	return cp
}

func (p *Player) names(kind Kind) *[]string {
	if kind == KindBedrock {
		return &p.BedrockName
	}
	return &p.JavaName
}

// Limits bounds the size of each list. Zero or negative means 1.
type Limits struct {
	MaxJava     int
	MaxBedrock  int
	MaxAccounts int
}

func (l Limits) of(kind Kind) int {
	n := l.MaxJava
	if kind == KindBedrock {
		n = l.MaxBedrock
	}
	return max(n, 1)
}

// Registry is the persistent player table. Every mutation is written through
// to storage; players left empty are pruned.
type Registry struct {
	mu     sync.Mutex
	store  *storage.Store[Player]
	limits Limits
}

// NewRegistry wraps a loaded store.
func NewRegistry(store *storage.Store[Player], limits Limits) *Registry {
	return &Registry{store: store, limits: limits}
}

// SetLimits changes the bounds; existing records are not trimmed.
func (r *Registry) SetLimits(l Limits) {
	r.mu.Lock()
	r.limits = l
	r.mu.Unlock()
}

// FindByAccount returns the player owning the account.
func (r *Registry) FindByAccount(platform, id string) (Player, bool) {
	for _, p := range r.store.Items() {
		if p.HasAccount(platform, id) {
			return p.clone(), true
		}
	}
	return Player{}, false
}

// FindByName matches the canonical name or any game name, ignoring case.
func (r *Registry) FindByName(name string) (Player, bool) {
	if p, ok := r.store.Get(name); ok {
		return p.clone(), true
	}
	for _, p := range r.store.Items() {
		if strings.EqualFold(p.Name, name) || p.HasName(name) {
			return p.clone(), true
		}
	}
	return Player{}, false
}

// All returns every player sorted by name.
func (r *Registry) All() []Player {
	items := r.store.Items()
	out := make([]Player, 0, len(items))
	for _, p := range items {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bind attaches a game name to the player owning the account, creating the
// player on first bind.
func (r *Registry) Bind(ctx context.Context, platform, id string, kind Kind, name string) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.FindByAccount(platform, id)
	if other, taken := r.FindByName(name); taken && (!ok || other.Name != p.Name) {
		return Player{}, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	if !ok {
		p = Player{Name: name, Accounts: map[string][]string{platform: {id}}}
	}

	list := p.names(kind)
	if p.HasName(name) {
		return p, nil
	}
	if len(*list) >= r.limits.of(kind) {
		return Player{}, fmt.Errorf("%w: %s names", ErrLimitExceeded, kind)
	}
	*list = append(*list, name)

	if err := r.store.Set(ctx, p.Name, p); err != nil {
		return Player{}, err
	}
	return p, nil
}

// LinkAccount adds another chat account to an existing player.
func (r *Registry) LinkAccount(ctx context.Context, name, platform, id string) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.FindByAccount(platform, id); ok {
		if owner.Name == name {
			return owner, nil
		}
		return Player{}, fmt.Errorf("%w: %s:%s", ErrNameTaken, platform, id)
	}
	p, ok := r.FindByName(name)
	if !ok {
		return Player{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, name)
	}
	if len(p.Accounts[platform]) >= max(r.limits.MaxAccounts, 1) {
		return Player{}, fmt.Errorf("%w: %s accounts", ErrLimitExceeded, platform)
	}
	if p.Accounts == nil {
		p.Accounts = map[string][]string{}
	}
	p.Accounts[platform] = append(p.Accounts[platform], id)
	if err := r.store.Set(ctx, p.Name, p); err != nil {
		return Player{}, err
	}
	return p, nil
}

// Unbind removes one game name from the account's player, or every game name
// when name is empty. It returns the names removed.
func (r *Registry) Unbind(ctx context.Context, platform, id, name string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.FindByAccount(platform, id)
	if !ok {
		return nil, ErrNotBound
	}

	var removed []string
	if name == "" {
		removed = p.Names()
		p.JavaName, p.BedrockName = nil, nil
	} else {
		for _, kind := range []Kind{KindJava, KindBedrock} {
			list := p.names(kind)
			*list = slices.DeleteFunc(*list, func(n string) bool {
				if strings.EqualFold(n, name) {
					removed = append(removed, n)
					return true
				}
				return false
			})
		}
	}
	if len(removed) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, name)
	}
	if len(p.Names()) == 0 {
		// an account with no names left is no longer a binding
		delete(p.Accounts, platform)
	}
	return removed, r.save(ctx, p)
}

// UnbindAccount drops the account and, when the player has no other accounts
// left, the player itself. It returns the game names that became unbound.
func (r *Registry) UnbindAccount(ctx context.Context, platform, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.FindByAccount(platform, id)
	if !ok {
		return nil, ErrNotBound
	}
	p.Accounts[platform] = slices.DeleteFunc(p.Accounts[platform], func(s string) bool { return s == id })
	if len(p.Accounts[platform]) == 0 {
		delete(p.Accounts, platform)
	}

	var removed []string
	if len(p.Accounts) == 0 {
		removed = p.Names()
		p.JavaName, p.BedrockName = nil, nil
	}
	return removed, r.save(ctx, p)
}

// SetProperty sets a property on a player found by name.
func (r *Registry) SetProperty(ctx context.Context, name, key string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.FindByName(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, name)
	}
	if p.Properties == nil {
		p.Properties = map[string]any{}
	}
	p.Properties[key] = value
	return r.store.Set(ctx, p.Name, p)
}

// save writes p or prunes it when empty.
func (r *Registry) save(ctx context.Context, p Player) error {
	if p.IsEmpty() {
		err := r.store.Delete(ctx, p.Name)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return r.store.Set(ctx, p.Name, p)
}
