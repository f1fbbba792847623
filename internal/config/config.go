package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the ALIAS assistant.
// It is loaded from ~/.alias/config.yaml and can be overridden by environment variables.
type Config struct {
	DataDir  string         `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Memory   MemoryConfig   `mapstructure:"memory" yaml:"memory"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Speech   SpeechConfig   `mapstructure:"speech" yaml:"speech"`
	MySQL    MySQLConfig    `mapstructure:"mysql" yaml:"mysql"`
	Email    EmailConfig    `mapstructure:"email" yaml:"email"`
	News     NewsConfig     `mapstructure:"news" yaml:"news"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// LLMConfig configures the generative provider used for open-ended answers,
// code generation and natural-language-to-SQL translation.
type LLMConfig struct {
	// APIKey is the Gemini API key. GEMINI_API_KEY is honoured when empty.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the Gemini model name
	Model string `mapstructure:"model" yaml:"model" validate:"required"`
	// Temperature controls randomness
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	// MaxOutputTokens caps response length
	MaxOutputTokens int `mapstructure:"max_output_tokens" yaml:"max_output_tokens" validate:"gt=0"`
	// MaxRetries is the number of retries on transient failures
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`
	// Timeout bounds a single request
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MemoryConfig configures the persistent memory store.
type MemoryConfig struct {
	// DBPath is the SQLite database file
	DBPath string `mapstructure:"db_path" yaml:"db_path" validate:"required"`
}

// DispatchConfig configures the dispatch orchestrator.
type DispatchConfig struct {
	// HistoryLimit is how many turns are fetched per dispatch
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit" validate:"gte=0,lte=50"`
	// ContextTurns is how many of the fetched turns are rendered into the prompt
	ContextTurns int `mapstructure:"context_turns" yaml:"context_turns" validate:"gte=0,ltefield=HistoryLimit"`
	// DefaultSession is the session id used when none is given
	DefaultSession string `mapstructure:"default_session" yaml:"default_session" validate:"required"`
}

// SpeechConfig configures text-to-speech output.
type SpeechConfig struct {
	// Enabled is the initial value of the process-wide speech flag
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Backend is "command" (local TTS binary), "http" (OpenAI-compatible endpoint) or "none"
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=command http none"`
	// Command overrides the local TTS binary (default: say/espeak/powershell per OS)
	Command string `mapstructure:"command" yaml:"command,omitempty"`
	// Endpoint is the /v1/audio/speech URL for the http backend
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty" validate:"omitempty,url"`
	// Voice is the voice id for the http backend
	Voice string `mapstructure:"voice" yaml:"voice,omitempty"`
	// Player is the command that plays synthesized audio read from stdin
	Player string `mapstructure:"player" yaml:"player,omitempty"`
}

// MySQLConfig configures the database capability.
type MySQLConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Database string `mapstructure:"database" yaml:"database"`
}

// EmailConfig configures the mail capability.
type EmailConfig struct {
	Address    string `mapstructure:"address" yaml:"address,omitempty" validate:"omitempty,email"`
	Password   string `mapstructure:"password" yaml:"password,omitempty"`
	IMAPServer string `mapstructure:"imap_server" yaml:"imap_server"`
	SMTPServer string `mapstructure:"smtp_server" yaml:"smtp_server"`
	SMTPPort   int    `mapstructure:"smtp_port" yaml:"smtp_port" validate:"gte=0,lte=65535"`
}

// NewsConfig configures the news capability.
type NewsConfig struct {
	// APIKey is the NewsAPI key. NEWSAPI_KEY is honoured when empty.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Country is the ISO country code used for national headlines
	Country string `mapstructure:"country" yaml:"country" validate:"required,len=2"`
	// PageSize is the number of headlines fetched
	PageSize int `mapstructure:"page_size" yaml:"page_size" validate:"gt=0,lte=50"`
}

// ServerConfig configures the websocket presentation bridge.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
	// DocumentsDir is the only directory websocket clients may analyze files
	// from. Empty disables analysis over the bridge.
	DocumentsDir string `mapstructure:"documents_dir" yaml:"documents_dir,omitempty"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	// Dir is where session log files are written
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	aliasDir := filepath.Join(homeDir, ".alias")

	return &Config{
		DataDir: aliasDir,
		LLM: LLMConfig{
			Model:           "gemini-1.5-flash",
			Temperature:     0.4,
			MaxOutputTokens: 1000,
			MaxRetries:      3,
			Timeout:         15 * time.Second,
		},
		Memory: MemoryConfig{
			DBPath: filepath.Join(aliasDir, "alias_chat_history.db"),
		},
		Dispatch: DispatchConfig{
			HistoryLimit:   5,
			ContextTurns:   3,
			DefaultSession: "default",
		},
		Speech: SpeechConfig{
			Enabled: true,
			Backend: "command",
		},
		MySQL: MySQLConfig{
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Database: "alias",
		},
		Email: EmailConfig{
			IMAPServer: "imap.gmail.com",
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		News: NewsConfig{
			Country:  "us",
			PageSize: 8,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(aliasDir, "logs"),
		},
	}
}

// DefaultPath returns ~/.alias/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".alias", "config.yaml"), nil
}

// Load reads configuration from the default location and merges environment
// variables. If no config file exists, it creates one with default values.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
func LoadFromPath(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

var optionalKeys = []string{
	"llm.api_key",
	"news.api_key",
	"email.address",
	"email.password",
	"mysql.password",
	"speech.command",
	"speech.endpoint",
	"speech.voice",
	"speech.player",
	"server.documents_dir",
}

// newViper prepares a viper instance bound to path, writing defaults first
// when the file is missing.
func newViper(path string) (*viper.Viper, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: ALIAS_LLM_API_KEY, ALIAS_SPEECH_ENABLED
	v.SetEnvPrefix("ALIAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys omitted from the YAML file are unknown to AutomaticEnv until bound.
	for _, key := range optionalKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.Memory.DBPath = expandPath(cfg.Memory.DBPath)
	cfg.Logging.Dir = expandPath(cfg.Logging.Dir)
	cfg.Server.DocumentsDir = expandPath(cfg.Server.DocumentsDir)
	cfg.applyLegacyEnv()

	return &cfg, nil
}

// applyLegacyEnv honours the plain environment variable names used by
// existing .env files when the config leaves the value unset.
func (c *Config) applyLegacyEnv() {
	setIfEmpty(&c.LLM.APIKey, "GEMINI_API_KEY")
	setIfEmpty(&c.News.APIKey, "NEWSAPI_KEY")
	setIfEmpty(&c.Email.Address, "EMAIL_ADDRESS")
	setIfEmpty(&c.Email.Password, "EMAIL_PASSWORD")

	if v := os.Getenv("NEWS_COUNTRY"); v != "" {
		c.News.Country = strings.ToLower(v)
	}
	if v := os.Getenv("IMAP_SERVER"); v != "" {
		c.Email.IMAPServer = v
	}
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		c.Email.SMTPServer = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			c.Email.SMTPPort = port
		}
	}
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// EnsureDirectories creates the data, log and database directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Logging.Dir,
		filepath.Dir(c.Memory.DBPath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

var validate = validator.New()

// Validate checks the configuration struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config field %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
