// Package config loads settings from defaults, an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string         `mapstructure:"port" yaml:"port"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Roster   RosterConfig   `mapstructure:"roster" yaml:"roster"`
	Match    MatchConfig    `mapstructure:"match" yaml:"match"`
	Pair     PairConfig     `mapstructure:"pair" yaml:"pair"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	OCR      OCRConfig      `mapstructure:"ocr" yaml:"ocr"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type TelegramConfig struct {
	Token      string `mapstructure:"token" yaml:"token"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type RosterConfig struct {
	Columns    []string `mapstructure:"columns" yaml:"columns"`
	NameHeader string   `mapstructure:"name_header" yaml:"name_header"`
	// Store is file, postgres or sheets.
	Store           string `mapstructure:"store" yaml:"store"`
	Dir             string `mapstructure:"dir" yaml:"dir"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
	Sheet           string `mapstructure:"sheet" yaml:"sheet"`
	Guild           string `mapstructure:"guild" yaml:"guild"`
}

type MatchConfig struct {
	Threshold   int    `mapstructure:"threshold" yaml:"threshold"`
	Scorer      string `mapstructure:"scorer" yaml:"scorer"`
	Suggestions int    `mapstructure:"suggestions" yaml:"suggestions"`
}

type PairConfig struct {
	RowTolerance float64  `mapstructure:"row_tolerance" yaml:"row_tolerance"`
	MinDigits    int      `mapstructure:"min_digits" yaml:"min_digits"`
	Policy       string   `mapstructure:"policy" yaml:"policy"`
	IgnoreWords  []string `mapstructure:"ignore_words" yaml:"ignore_words"`
}

type ScanConfig struct {
	Workers    int           `mapstructure:"workers" yaml:"workers"`
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

type OCRConfig struct {
	Engine    string          `mapstructure:"engine" yaml:"engine"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	Tesseract TesseractConfig `mapstructure:"tesseract" yaml:"tesseract"`
	Gemini    ModelConfig     `mapstructure:"gemini" yaml:"gemini"`
	OpenAI    ModelConfig     `mapstructure:"openai" yaml:"openai"`
	Yandex    YandexConfig    `mapstructure:"yandex" yaml:"yandex"`
}

type RetryConfig struct {
	Attempts uint          `mapstructure:"attempts" yaml:"attempts"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay"`
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

type TesseractConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
	MergeGap  float64  `mapstructure:"merge_gap" yaml:"merge_gap"`
	MinHeight int      `mapstructure:"min_height" yaml:"min_height"`
}

type ModelConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"-"`
	Model  string `mapstructure:"model" yaml:"model"`
}

type YandexConfig struct {
	OAuthToken string   `mapstructure:"oauth_token" yaml:"-"`
	FolderID   string   `mapstructure:"folder_id" yaml:"folder_id"`
	Languages  []string `mapstructure:"languages" yaml:"languages"`
}

type LogConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Level  string `mapstructure:"level" yaml:"level"`
}

var defaults = map[string]any{
	"port":                     "8000",
	"roster.columns":           []string{"ลูดี้", "ไอลีน", "ราเชล", "เดลโลน", "เจฟ", "สไปร์ค", "คริส"},
	"roster.name_header":       "ชื่อสมาชิก",
	"roster.store":             "file",
	"roster.dir":               "./data",
	"roster.sheet":             "",
	"roster.guild":             "",
	"match.threshold":          70,
	"match.scorer":             "ratio",
	"match.suggestions":        3,
	"pair.row_tolerance":       30.0,
	"pair.min_digits":          4,
	"pair.policy":              "first",
	"pair.ignore_words":        []string{"rank", "score", "damage", "total", "guild", "boss", "level", "lv", "name", "point"},
	"scan.workers":             4,
	"scan.session_ttl":         24 * time.Hour,
	"scan.cache_ttl":           7 * 24 * time.Hour,
	"ocr.engine":               "tesseract",
	"ocr.retry.attempts":       3,
	"ocr.retry.delay":          500 * time.Millisecond,
	"ocr.retry.max_delay":      10 * time.Second,
	"ocr.tesseract.enabled":    true,
	"ocr.tesseract.languages":  []string{"tha", "eng"},
	"ocr.tesseract.merge_gap":  0.8,
	"ocr.tesseract.min_height": 1200,
	"ocr.gemini.model":         "gemini-2.0-flash",
	"ocr.openai.model":         "gpt-4o-mini",
	"ocr.yandex.languages":     []string{"th", "en"},
	"log.format":               "text",
	"log.level":                "info",
	"telegram.token":           "",
	"telegram.webhook_url":     "",
	"database.url":             "",
	"ocr.gemini.api_key":       "",
	"ocr.openai.api_key":       "",
	"ocr.yandex.oauth_token":   "",
	"ocr.yandex.folder_id":     "",
	"roster.spreadsheet_id":    "",
	"roster.credentials_file":  "",
}

// legacyEnv keeps the unprefixed variable names deployments already set.
var legacyEnv = map[string][]string{
	"port":                   {"PORT"},
	"telegram.token":         {"TELEGRAM_BOT_TOKEN"},
	"telegram.webhook_url":   {"WEBHOOK_URL"},
	"database.url":           {"DATABASE_URL"},
	"ocr.gemini.api_key":     {"GEMINI_API_KEY"},
	"ocr.gemini.model":       {"GEMINI_MODEL"},
	"ocr.openai.api_key":     {"OPENAI_API_KEY"},
	"ocr.openai.model":       {"OPENAI_MODEL"},
	"ocr.yandex.oauth_token": {"YC_OAUTH_TOKEN"},
	"ocr.yandex.folder_id":   {"YC_FOLDER_ID"},
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix("GUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := "GUILD_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.guild-roster")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads config from path, or from ./config.yaml when path is empty and
// the file exists.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	if len(c.Roster.Columns) == 0 {
		return fmt.Errorf("config: roster.columns is empty")
	}
	if c.Match.Threshold < 0 || c.Match.Threshold > 100 {
		return fmt.Errorf("config: match.threshold %d out of 0..100", c.Match.Threshold)
	}
	switch c.Roster.Store {
	case "file", "postgres", "sheets":
	default:
		return fmt.Errorf("config: unknown roster.store %q", c.Roster.Store)
	}
	if c.Roster.Store == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("config: roster.store=postgres needs DATABASE_URL")
	}
	if c.Roster.Store == "sheets" && c.Roster.SpreadsheetID == "" {
		return fmt.Errorf("config: roster.store=sheets needs roster.spreadsheet_id")
	}
	return nil
}

// Manager holds the current config and reloads it when the file changes.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	cfg       *Config
	callbacks []func(*Config)
	log       *slog.Logger
}

func NewManager(path string, log *slog.Logger) (*Manager, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{v: v, cfg: cfg, log: log}, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// OnChange registers fn to run after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch reloads on file changes. An invalid edit is logged and the previous
// config stays in effect.
func (m *Manager) Watch() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(m.v)
		if err != nil {
			m.log.Warn("config reload rejected", "file", e.Name, "err", err)
			return
		}
		m.mu.Lock()
		m.cfg = cfg
		callbacks := make([]func(*Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.Unlock()

		m.log.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	m.v.WatchConfig()
}

// NewLogger builds the process logger from log.format and log.level.
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
