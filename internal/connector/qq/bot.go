package qq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

// MaxGetterTimeout bounds every getter wait.
const MaxGetterTimeout = 9 * time.Second

// ErrActionFailed is returned when the gateway answers with a failed status.
var ErrActionFailed = errors.New("onebot action failed")

// Request is an OneBot v11 action frame.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
	Echo   string         `json:"echo,omitempty"`
}

// Response is the gateway's answer to an action.
type Response struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Wording string          `json:"wording,omitempty"`
	Echo    string          `json:"echo,omitempty"`
}

// OK reports whether the action succeeded.
func (r Response) OK() bool { return r.Status == "ok" || (r.Status == "" && r.RetCode == 0) }

// Bot is the remote-procedure proxy to the gateway. Calls that need an answer
// are correlated by echo id; the pending table is cleared on answer, timeout
// or connection loss.
type Bot struct {
	timeout time.Duration

	mu      sync.Mutex
	write   func([]byte) error
	pending map[string]chan Response
}

// NewBot creates a detached proxy; timeout is clamped to (0, 9s].
func NewBot(timeout time.Duration) *Bot {
	return &Bot{timeout: ClampTimeout(timeout), pending: make(map[string]chan Response)}
}

// ClampTimeout maps non-positive and oversized values to MaxGetterTimeout.
func ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 || d > MaxGetterTimeout {
		return MaxGetterTimeout
	}
	return d
}

// attach sets the frame writer of the live connection.
func (b *Bot) attach(write func([]byte) error) {
	b.mu.Lock()
	b.write = write
	b.mu.Unlock()
}

// detach drops the writer and releases every waiter.
func (b *Bot) detach() {
	b.mu.Lock()
	b.write = nil
	pending := b.pending
	b.pending = make(map[string]chan Response)
	b.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// Connected reports whether a connection is attached.
func (b *Bot) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write != nil
}

// Pending returns the number of calls awaiting an answer.
func (b *Bot) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bot) send(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Action, err)
	}
	b.mu.Lock()
	write := b.write
	b.mu.Unlock()
	if write == nil {
		return connector.ErrNotConnected
	}
	return write(data)
}

// Send performs a fire-and-forget action.
func (b *Bot) Send(action string, params map[string]any) error {
	return b.send(Request{Action: action, Params: params, Echo: uuid.NewString()})
}

// Call performs an action and waits for its correlated answer or ctx.
func (b *Bot) Call(ctx context.Context, action string, params map[string]any) (Response, error) {
	id := uuid.NewString()
	ch := make(chan Response, 1)

	b.mu.Lock()
	if b.write == nil {
		b.mu.Unlock()
		return Response{}, connector.ErrNotConnected
	}
	b.pending[id] = ch
	b.mu.Unlock()
	defer b.forget(id)

	if err := b.send(Request{Action: action, Params: params, Echo: id}); err != nil {
		return Response{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, connector.ErrNotConnected
		}
		if !resp.OK() {
			return resp, fmt.Errorf("%w: %s: %s", ErrActionFailed, action, resp.Wording+resp.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Get is a getter call bounded by the configured timeout. It reports false
// when no usable answer arrived in time; callers treat that as unknown.
func (b *Bot) Get(ctx context.Context, action string, params map[string]any) (json.RawMessage, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	resp, err := b.Call(ctx, action, params)
	if err != nil {
		return nil, false
	}
	return resp.Data, true
}

func (b *Bot) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// HandleResponse routes an answer to its waiter. It reports false for
// unknown or late echo ids.
func (b *Bot) HandleResponse(resp Response) bool {
	b.mu.Lock()
	ch, ok := b.pending[resp.Echo]
	if ok {
		delete(b.pending, resp.Echo)
	}
	b.mu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

// SendGroupMsg posts msg to a group.
func (b *Bot) SendGroupMsg(groupID string, msg message.Message) error {
	return b.Send("send_group_msg", map[string]any{"group_id": idParam(groupID), "message": msg})
}

// SendPrivateMsg posts msg to a user.
func (b *Bot) SendPrivateMsg(userID string, msg message.Message) error {
	return b.Send("send_private_msg", map[string]any{"user_id": idParam(userID), "message": msg})
}

// LoginInfo is the answer of get_login_info.
type LoginInfo struct {
	UserID   ID     `json:"user_id"`
	Nickname string `json:"nickname"`
}

// MemberInfo is the answer of get_group_member_info.
type MemberInfo struct {
	GroupID  ID     `json:"group_id"`
	UserID   ID     `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Role     string `json:"role"`
}

// DisplayName prefers the group card.
func (m MemberInfo) DisplayName() string {
	if m.Card != "" {
		return m.Card
	}
	return m.Nickname
}

// StrangerInfo is the answer of get_stranger_info.
type StrangerInfo struct {
	UserID   ID     `json:"user_id"`
	Nickname string `json:"nickname"`
}

// GetLoginInfo asks for the bot account.
func (b *Bot) GetLoginInfo(ctx context.Context) (LoginInfo, bool) {
	var out LoginInfo
	return out, b.getInto(ctx, "get_login_info", nil, &out)
}

// GetGroupMemberInfo asks for a member of a group.
func (b *Bot) GetGroupMemberInfo(ctx context.Context, groupID, userID string) (MemberInfo, bool) {
	var out MemberInfo
	return out, b.getInto(ctx, "get_group_member_info", map[string]any{
		"group_id": idParam(groupID),
		"user_id":  idParam(userID),
	}, &out)
}

// GetStrangerInfo asks for any user.
func (b *Bot) GetStrangerInfo(ctx context.Context, userID string) (StrangerInfo, bool) {
	var out StrangerInfo
	return out, b.getInto(ctx, "get_stranger_info", map[string]any{"user_id": idParam(userID)}, &out)
}

func (b *Bot) getInto(ctx context.Context, action string, params map[string]any, v any) bool {
	data, ok := b.Get(ctx, action, params)
	if !ok || len(data) == 0 {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// idParam sends numeric ids as numbers, which every gateway accepts.
func idParam(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// ID decodes an OneBot id given either as a number or a string.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}
