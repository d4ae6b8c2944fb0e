package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Configuration keys. The same key names are honored in the process
// environment, in the config file, and in explicit overrides.
const (
	KeyOdysseyAPIKey    = "ODYSSEY_API_KEY"
	KeyDeveloperEmail   = "ODYSSEY_DEVELOPER_EMAIL"
	KeyOdysseyBaseURL   = "ODYSSEY_BASE_URL"
	KeyGeneratePath     = "ODYSSEY_GENERATE_PATH"
	KeyJobsPath         = "ODYSSEY_JOBS_PATH"
	KeyPollInterval     = "ODYSSEY_POLL_INTERVAL"
	KeyPollDeadline     = "ODYSSEY_POLL_DEADLINE"
	KeyOpenRouterAPIKey = "OPENROUTER_API_KEY"
	KeyOpenRouterBase   = "OPENROUTER_BASE_URL"
	KeyOpenRouterModel  = "OPENROUTER_MODEL"
	KeyOpenRouterRefer  = "OPENROUTER_REFERER"
	KeyOpenRouterTitle  = "OPENROUTER_TITLE"
	KeyOllamaBaseURL    = "OLLAMA_BASE_URL"
	KeyOllamaModel      = "OLLAMA_MODEL"
	KeyLogCapacity      = "COMPANION_LOG_CAPACITY"
)

type Config struct {
	OdysseyAPIKey  string `yaml:"odyssey_api_key"`
	DeveloperEmail string `yaml:"odyssey_developer_email"`
	OdysseyBaseURL string `yaml:"odyssey_base_url"`
	GeneratePath   string `yaml:"odyssey_generate_path"`
	JobsPath       string `yaml:"odyssey_jobs_path"`

	PollInterval time.Duration `yaml:"odyssey_poll_interval"`
	PollDeadline time.Duration `yaml:"odyssey_poll_deadline"`

	OpenRouterAPIKey  string `yaml:"openrouter_api_key"`
	OpenRouterBaseURL string `yaml:"openrouter_base_url"`
	OpenRouterModel   string `yaml:"openrouter_model"`
	OpenRouterReferer string `yaml:"openrouter_referer"`
	OpenRouterTitle   string `yaml:"openrouter_title"`

	OllamaBaseURL string `yaml:"ollama_base_url"`
	OllamaModel   string `yaml:"ollama_model"`

	LogCapacity int `yaml:"companion_log_capacity"`
}

func DefaultConfig() Config {
	return Config{
		OdysseyBaseURL:    "https://api.odyssey.ml/v1",
		GeneratePath:      "generations",
		JobsPath:          "jobs",
		PollInterval:      3 * time.Second,
		PollDeadline:      10 * time.Minute,
		OpenRouterBaseURL: "https://openrouter.ai/api/v1",
		OpenRouterModel:   "openai/gpt-4o-mini",
		OllamaBaseURL:     "http://localhost:11434",
		OllamaModel:       "llava",
		LogCapacity:       500,
	}
}

// Resolve layers configuration sources without touching the filesystem or
// process environment. Precedence per key: overrides > environ > fileValues >
// defaults; first non-empty wins.
func Resolve(overrides, environ, fileValues map[string]string, defaults Config) (Config, error) {
	lookup := func(key string) string {
		for _, layer := range []map[string]string{overrides, environ, fileValues} {
			if v, ok := layer[key]; ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	cfg := defaults
	if v := lookup(KeyOdysseyAPIKey); v != "" {
		cfg.OdysseyAPIKey = v
	}
	if v := lookup(KeyDeveloperEmail); v != "" {
		cfg.DeveloperEmail = v
	}
	if v := lookup(KeyOdysseyBaseURL); v != "" {
		cfg.OdysseyBaseURL = strings.TrimRight(v, "/")
	}
	if v := lookup(KeyGeneratePath); v != "" {
		cfg.GeneratePath = strings.Trim(v, "/")
	}
	if v := lookup(KeyJobsPath); v != "" {
		cfg.JobsPath = strings.Trim(v, "/")
	}
	if v := lookup(KeyPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, KeyPollInterval, err)
		}
		cfg.PollInterval = d
	}
	if v := lookup(KeyPollDeadline); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, KeyPollDeadline, err)
		}
		cfg.PollDeadline = d
	}
	if v := lookup(KeyOpenRouterAPIKey); v != "" {
		cfg.OpenRouterAPIKey = v
	}
	if v := lookup(KeyOpenRouterBase); v != "" {
		cfg.OpenRouterBaseURL = strings.TrimRight(v, "/")
	}
	if v := lookup(KeyOpenRouterModel); v != "" {
		cfg.OpenRouterModel = v
	}
	if v := lookup(KeyOpenRouterRefer); v != "" {
		cfg.OpenRouterReferer = v
	}
	if v := lookup(KeyOpenRouterTitle); v != "" {
		cfg.OpenRouterTitle = v
	}
	if v := lookup(KeyOllamaBaseURL); v != "" {
		cfg.OllamaBaseURL = strings.TrimRight(v, "/")
	}
	if v := lookup(KeyOllamaModel); v != "" {
		cfg.OllamaModel = v
	}
	if v := lookup(KeyLogCapacity); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidConfiguration, KeyLogCapacity)
		}
		cfg.LogCapacity = n
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PollDeadline <= 0 {
		cfg.PollDeadline = 10 * time.Minute
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = 500
	}
	return cfg, nil
}

// LoadFileValues reads the config file at path into a key/value map. A
// missing file is not an error. Files ending in .yml/.yaml are parsed as
// YAML; everything else is parsed as key=value (dotenv) lines. Keys are
// normalized to upper case so the same names work across all sources.
func LoadFileValues(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return map[string]string{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}

	var raw map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, path, err)
		}
	default:
		var err error
		raw, err = godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfiguration, path, err)
		}
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return values, nil
}

// EnvironMap converts os.Environ()-style "KEY=value" pairs into a map so
// Resolve can stay pure.
func EnvironMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// LoadConfig resolves the effective configuration from the real process
// environment and the config file at path.
func LoadConfig(path string, overrides map[string]string) (Config, error) {
	fileValues, err := LoadFileValues(path)
	if err != nil {
		return DefaultConfig(), err
	}
	return Resolve(overrides, EnvironMap(os.Environ()), fileValues, DefaultConfig())
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "companion", "config.env")
}
