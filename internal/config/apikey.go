package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// APIKeyEnv is the environment variable checked first for the Gemini API key.
const APIKeyEnv = "GEMINI_API_KEY"

// apiKeyFileName is the key file looked up under the XDG config directory
// when neither the environment variable nor an explicit key file is set.
const apiKeyFileName = "gemini_api_key"

// ErrNoAPIKey is returned when no API key can be found in any source.
var ErrNoAPIKey = errors.New("no API key found: set GEMINI_API_KEY or create the key file")

// ResolveAPIKey resolves the Gemini API key in order of precedence:
// 1. The explicit key (from a flag or already-populated config)
// 2. The GEMINI_API_KEY environment variable
// 3. keyFile, when set (from the config file's api_key_file)
// 4. The XDG config directory key file (~/.config/deepresearch/gemini_api_key)
//
// Key files are trimmed of surrounding whitespace so a trailing newline from
// an editor does not break authentication.
func ResolveAPIKey(explicit, keyFile string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		return key, nil
	}

	paths := []string{}
	if keyFile != "" {
		paths = append(paths, keyFile)
	}
	paths = append(paths, filepath.Join(XDGConfigDir(), apiKeyFileName))

	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // Key file path comes from config
		if err != nil {
			continue
		}
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}

	return "", ErrNoAPIKey
}
