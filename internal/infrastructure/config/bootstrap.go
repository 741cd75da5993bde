package config

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	apperrors "github.com/ngoclaw/gemini-go/pkg/errors"
)

// AppName names the configuration home directory.
const AppName = "gemini-go"

// HomeDir returns ~/.gemini-go.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "."+AppName)
}

// Bootstrap creates root and writes a commented config.yaml into it unless
// one already exists. It returns the path of the config file and whether it
// was created.
func Bootstrap(root string, logger *zap.Logger) (string, bool, error) {
	if root == "" {
		return "", false, apperrors.NewInvalidInputError("config directory is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", false, apperrors.NewInternalErrorWithCause("create config dir", err)
	}

	path := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		logger.Debug("Config file already present", zap.String("path", path))
		return path, false, nil
	}
	// 0600: the file is expected to hold the API key.
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		return "", false, apperrors.NewInternalErrorWithCause("write default config", err)
	}
	logger.Info("Wrote default config", zap.String("path", path))
	return path, true, nil
}

const defaultConfig = `# gemini-go configuration
# Every key can be overridden with a GEMINI_ environment variable,
# e.g. GEMINI_API_KEY, GEMINI_MODEL, GEMINI_LOG_LEVEL.

api_key: ""                # or set GEMINI_API_KEY
base_url: https://generativelanguage.googleapis.com/v1beta
model: gemini-2.0-flash
timeout: 2m                # whole command, 0 disables
max_rounds: 0              # function-calling rounds, 0 = unlimited

log:
  level: info              # debug | info | warn | error
  format: console          # console | json
  output: ""               # stderr, stdout, a file path, empty = off

render:
  markdown: true           # render replies with glamour
  width: 100
`
