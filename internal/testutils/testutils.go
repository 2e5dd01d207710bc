package testutils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/logging"
)

// ConfigForTests applies the project's .env.test file, when there is one, and
// returns the resulting configuration. The test is skipped unless every
// variable in required is set, so backend tests only run where a server is
// available.
func ConfigForTests(t *testing.T, required ...string) config.Provider {
	t.Helper()

	if root, ok := projectRoot(); ok {
		env, err := godotenv.Read(filepath.Join(root, ".env.test"))
		switch {
		case err == nil:
			for key, value := range env {
				t.Setenv(key, value)
			}
		case !errors.Is(err, fs.ErrNotExist):
			t.Fatalf("failed to load .env.test file: %v", err)
		}
	}

	for _, key := range required {
		if os.Getenv(key) == "" {
			t.Skipf("%s not set", key)
		}
	}

	logging.New()
	return config.FromEnv()
}

// projectRoot walks up from the working directory to the go.mod.
func projectRoot() (string, bool) {
	path, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, true
		}
		if path == filepath.Dir(path) {
			return "", false
		}
		path = filepath.Dir(path)
	}
}
