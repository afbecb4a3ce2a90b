// Package credentials loads secrets kept outside the main config file.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when the credentials file is readable
// or writable by group or others.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds secrets loaded from credentials.toml:
//
//	[llm]
//	api_key = "..."        # used by any provider without its own section
//
//	[anthropic]
//	api_key = "..."
//
//	[telegram]
//	token = "123:abc"
type Credentials struct {
	sections map[string]map[string]string
}

// StandardPaths returns the credential file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"credentials.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "pulse", "credentials.toml"))
	}
	return paths
}

// Load loads credentials from the first standard location that exists.
// A missing file is not an error; it returns nil credentials.
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return nil, "", nil
}

// LoadFile loads credentials from a specific file. The file must not be
// accessible to group or others (0600 or 0400).
func LoadFile(path string) (*Credentials, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0600 or stricter)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	creds := &Credentials{sections: make(map[string]map[string]string)}
	for name, value := range raw {
		section, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		fields := make(map[string]string)
		for k, v := range section {
			if s, ok := v.(string); ok && s != "" {
				fields[k] = s
			}
		}
		if len(fields) > 0 {
			creds.sections[strings.ToLower(name)] = fields
		}
	}
	return creds, nil
}

// Get returns a raw value from a section, or "".
func (c *Credentials) Get(section, key string) string {
	if c == nil {
		return ""
	}
	return c.sections[strings.ToLower(section)][key]
}

// GetAPIKey returns the API key for an LLM provider.
// Priority: [provider] section > [llm] section > environment variable.
func (c *Credentials) GetAPIKey(provider string) string {
	if key := c.Get(provider, "api_key"); key != "" {
		return key
	}
	if key := c.Get("llm", "api_key"); key != "" {
		return key
	}
	return os.Getenv(envVarForProvider(provider))
}

// TelegramToken returns the bot token from [telegram] or TELEGRAM_BOT_TOKEN.
func (c *Credentials) TelegramToken() string {
	if token := c.Get("telegram", "token"); token != "" {
		return token
	}
	return os.Getenv("TELEGRAM_BOT_TOKEN")
}

// envVarForProvider returns the environment variable name for a provider.
func envVarForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	}
}
