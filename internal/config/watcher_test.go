package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "server_name: a\n")
	m, err := Load(path)
	require.NoError(t, err)

	changed := make(chan string, 4)
	m.OnChange(func(c *Config) { changed <- c.ServerName })

	w, err := NewWatcher(m)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("server_name: watched\n"), 0644))

	select {
	case name := <-changed:
		assert.Equal(t, "watched", name)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	path := writeConfig(t, "server_name: a\n")
	m, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(m)
	require.NoError(t, err)
	w.Stop()
}
