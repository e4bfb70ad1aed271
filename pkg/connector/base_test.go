package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcqq/pkg/message"
)

func boolp(b bool) *bool { return &b }

func TestResolveFlags(t *testing.T) {
	tests := []struct {
		name    string
		enable  bool
		receive *bool
		send    *bool
		want    Flags
	}{
		{"defaults follow enable", true, nil, nil, Flags{true, true, true}},
		{"disabled wins", false, boolp(true), boolp(true), Flags{false, false, false}},
		{"receive only", true, nil, boolp(false), Flags{true, true, false}},
		{"send only", true, boolp(false), nil, Flags{true, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFlags(tt.enable, tt.receive, tt.send))
		})
	}
}

func TestBase_Deliver(t *testing.T) {
	b := NewBase("QQ", ResolveFlags(true, nil, nil))

	info := &message.BroadcastInfo{Message: message.TextMessage("hi")}
	assert.False(t, b.Deliver(context.Background(), info), "no handler registered")

	var got *message.BroadcastInfo
	b.OnMessage(func(_ context.Context, i *message.BroadcastInfo) bool {
		got = i
		return true
	})
	require.True(t, b.Deliver(context.Background(), info))
	assert.Equal(t, "QQ", got.ReceiverSource)
	assert.Equal(t, "QQ", got.Source.Origin())
}

func TestBase_DeliverReceiveDisabled(t *testing.T) {
	b := NewBase("QQ", ResolveFlags(true, boolp(false), nil))
	called := false
	b.OnMessage(func(context.Context, *message.BroadcastInfo) bool {
		called = true
		return true
	})

	assert.False(t, b.Deliver(context.Background(), &message.BroadcastInfo{}))
	assert.False(t, called)
	assert.True(t, b.CanSend())
	assert.False(t, b.CanReceive())
}

func TestParseError(t *testing.T) {
	cause := errors.New("bad json")
	raw := make([]byte, 600)
	for i := range raw {
		raw[i] = 'x'
	}
	err := NewParseError("QQ", raw, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "QQ: parse event")
	assert.Len(t, err.Raw, 515)
}
