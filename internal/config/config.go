package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all campus-aide environment variables.
const EnvPrefix = "CAMPUS_AIDE_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	Addr        string `yaml:"addr"`
	DBPath      string `yaml:"db_path"`
	AudioDir    string `yaml:"audio_dir"`
	Model       string `yaml:"model"`
	VoiceModel  string `yaml:"voice_model"`
	VoiceName   string `yaml:"voice_name"`
	VoiceRecord bool   `yaml:"voice_record"`

	HistoryWindow  int    `yaml:"history_window"`
	AnswerTimeout  string `yaml:"answer_timeout"`
	RetryAttempts  int    `yaml:"retry_attempts"`
	RetryBaseDelay string `yaml:"retry_base_delay"`

	CollegeBaseURL string   `yaml:"college_base_url"`
	ScrapeRelays   []string `yaml:"scrape_relays"`
	ScrapeTTL      string   `yaml:"scrape_ttl"`

	AskRatePerSecond float64 `yaml:"ask_rate_per_second"`
	AskRateBurst     int     `yaml:"ask_rate_burst"`

	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	GeminiAPIKey    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
}

func defaults() Config {
	return Config{
		Addr:             ":8080",
		DBPath:           "data/campus-aide.db",
		AudioDir:         "data/audio",
		Model:            "gemini/gemini-2.0-flash",
		VoiceModel:       "gemini-2.0-flash-live-001",
		VoiceName:        "Aoede",
		HistoryWindow:    12,
		AnswerTimeout:    "60s",
		RetryAttempts:    3,
		RetryBaseDelay:   "1s",
		CollegeBaseURL:   "https://www.college.edu",
		ScrapeRelays:     []string{"https://api.allorigins.win/raw?url=%s", "https://corsproxy.io/?%s"},
		ScrapeTTL:        "30m",
		AskRatePerSecond: 1,
		AskRateBurst:     5,
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedAnswerTimeout returns AnswerTimeout as a time.Duration, falling back
// to 60s if the value is invalid.
func (c *Config) ParsedAnswerTimeout() time.Duration {
	return parsedDuration(c.AnswerTimeout, 60*time.Second)
}

// ParsedRetryBaseDelay returns RetryBaseDelay as a time.Duration, falling
// back to 1s if the value is invalid.
func (c *Config) ParsedRetryBaseDelay() time.Duration {
	return parsedDuration(c.RetryBaseDelay, time.Second)
}

// ParsedScrapeTTL returns ScrapeTTL as a time.Duration, falling back to 30m
// if the value is invalid.
func (c *Config) ParsedScrapeTTL() time.Duration {
	return parsedDuration(c.ScrapeTTL, 30*time.Minute)
}

func parsedDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_DIR"); v != "" {
		cfg.AudioDir = v
	}
	if v := os.Getenv(EnvPrefix + "MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvPrefix + "VOICE_MODEL"); v != "" {
		cfg.VoiceModel = v
	}
	if v := os.Getenv(EnvPrefix + "VOICE_NAME"); v != "" {
		cfg.VoiceName = v
	}
	if v := os.Getenv(EnvPrefix + "VOICE_RECORD"); v != "" {
		cfg.VoiceRecord = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv(EnvPrefix + "HISTORY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.HistoryWindow = n
		}
	}
	if v := os.Getenv(EnvPrefix + "ANSWER_TIMEOUT"); v != "" {
		cfg.AnswerTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.RetryAttempts = n
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		cfg.RetryBaseDelay = v
	}
	if v := os.Getenv(EnvPrefix + "COLLEGE_BASE_URL"); v != "" {
		cfg.CollegeBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "SCRAPE_RELAYS"); v != "" {
		cfg.ScrapeRelays = parseList(v)
	}
	if v := os.Getenv(EnvPrefix + "SCRAPE_TTL"); v != "" {
		cfg.ScrapeTTL = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.GeminiAPIKey == "" {
		warnings = append(warnings, "Gemini API key not configured — answers and live voice are disabled. Set "+EnvPrefix+"GEMINI_API_KEY.")
	}
	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured — dictation is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.AnswerTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid answer_timeout %q — using default 60s.", cfg.AnswerTimeout))
	}
	if _, err := time.ParseDuration(cfg.ScrapeTTL); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid scrape_ttl %q — using default 30m.", cfg.ScrapeTTL))
	}
	if _, _, err := SplitModel(cfg.Model); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid model %q — expected provider/model_name.", cfg.Model))
	}

	return warnings
}

// SplitModel splits a "provider/model_name" string into its parts.
func SplitModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
