package testsink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcqq/pkg/connector"
	"mcqq/pkg/message"
)

func TestConnector_RecordsSends(t *testing.T) {
	c := New("Test", connector.ResolveFlags(true, nil, nil))
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())

	require.NoError(t, c.SendMessage(context.Background(), &message.ProcessedInfo{
		ProcessedMessage: message.TextMessage("hello"),
		Source:           message.NewSource("QQ"),
	}))
	assert.Equal(t, []string{"hello"}, c.Texts())

	c.FailWith(errors.New("down"))
	assert.Error(t, c.SendMessage(context.Background(), &message.ProcessedInfo{}))
	c.Reset()
	assert.Empty(t, c.Sent())

	require.NoError(t, c.Disconnect(context.Background()))
	assert.False(t, c.Connected())
}

func TestConnector_SendDisabled(t *testing.T) {
	off := false
	c := New("Test", connector.ResolveFlags(true, nil, &off))
	c.FailWith(errors.New("must not be reached"))

	assert.NoError(t, c.SendMessage(context.Background(), &message.ProcessedInfo{ProcessedMessage: message.TextMessage("x")}))
	assert.Empty(t, c.Sent())
}

func TestConnector_Inject(t *testing.T) {
	c := New("Test", connector.ResolveFlags(true, nil, nil))
	var got *message.BroadcastInfo
	c.OnMessage(func(_ context.Context, info *message.BroadcastInfo) bool {
		got = info
		return true
	})

	assert.True(t, c.Inject(context.Background(), &message.BroadcastInfo{Message: message.TextMessage("hi")}))
	require.NotNil(t, got)
	assert.Equal(t, "Test", got.Source.Origin())
	assert.Equal(t, "Test", got.ReceiverSource)
}
