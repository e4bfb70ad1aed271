package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with a fresh config under a temp dir.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	globalFlags = GlobalFlags{}
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"-q", "-c", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func tempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  path: " + filepath.ToSlash(filepath.Join(dir, "mcqq.db")) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestVersion_JSON(t *testing.T) {
	out, err := run(t, tempConfig(t), "version", "--json")
	require.NoError(t, err)

	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, "1.0.0", info.Bridge)
}

func TestConfig_SetGetList(t *testing.T) {
	path := tempConfig(t)

	_, err := run(t, path, "config", "set", "connectors.qq.access_token", "secret-token")
	require.NoError(t, err)

	out, err := run(t, path, "config", "get", "connectors.qq.access_token")
	require.NoError(t, err)
	assert.Equal(t, "secret-token\n", out)

	out, err = run(t, path, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "connectors.qq.access_token = se********en")
	assert.Contains(t, out, "command_prefix = #")

	_, err = run(t, path, "config", "get", "no.such.key")
	assert.Error(t, err)
}

func TestInit_RefusesOverwrite(t *testing.T) {
	path := tempConfig(t)
	_, err := run(t, path, "init")
	assert.Error(t, err)

	out, err := run(t, path, "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server_name")
}

func TestPlayers_AdminAndList(t *testing.T) {
	path := tempConfig(t)

	out, err := run(t, path, "players", "list")
	require.NoError(t, err)
	assert.Equal(t, "No players bound.\n", out)

	_, err = run(t, path, "players", "admin", "Steve")
	assert.Error(t, err, "unknown player")

	_, err = run(t, path, "players", "link", "Steve", "qq", "1")
	assert.Error(t, err)
}

func TestFormatAccounts(t *testing.T) {
	got := formatAccounts(map[string][]string{"qq": {"1", "2"}, "minecraft": {"Steve"}})
	assert.Equal(t, "minecraft:Steve qq:1,2", got)
	assert.True(t, strings.HasPrefix(maskValue("abcdefgh"), "ab"))
	assert.Equal(t, "***", maskValue("abc"))
}
