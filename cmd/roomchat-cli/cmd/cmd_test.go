package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	orig := loadConfig
	loadConfig = func() config.Provider { return cfg }
	t.Cleanup(func() { loadConfig = orig })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, &config.Config{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "roomchat-cli v")
}

func TestTopicsList(t *testing.T) {
	out, err := run(t, &config.Config{DefaultRoom: "general"}, "topics", "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "general")
	assert.Contains(t, out, "presence")
	assert.Equal(t, 3, len(strings.Split(strings.TrimSpace(out), "\n")))
}

func TestTopicsValidate(t *testing.T) {
	_, err := run(t, &config.Config{}, "topics", "validate", "Not A Topic")
	assert.Error(t, err)
}

func TestTokenIssuesVerifiableToken(t *testing.T) {
	cfg := &config.Config{JWTSecret: "secret"}
	out, err := run(t, cfg, "token", "--participant", "ops", "--name", "Ops")
	require.NoError(t, err)

	sess, err := auth.NewTokenProvider("secret").Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", sess.ParticipantID)
	assert.Equal(t, "Ops", sess.DisplayName)

	_, err = run(t, &config.Config{}, "token", "--participant", "ops")
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestHistoryRejectsUnknownFormat(t *testing.T) {
	cfg := &config.Config{DefaultRoom: "general", StoreBackend: config.BackendFile, FileStoreDir: t.TempDir(), JWTSecret: "x"}
	_, err := run(t, cfg, "history", "--format", "yaml")
	assert.ErrorContains(t, err, "unsupported output format")
}
