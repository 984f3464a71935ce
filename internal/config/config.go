package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/copyleftdev/brokerlogin/internal/auth"
	"github.com/copyleftdev/brokerlogin/internal/authtypes"
)

type Config struct {
	Browser   BrowserConfig       `mapstructure:"browser"`
	Host      HostConfig          `mapstructure:"host"`
	Batch     BatchConfig         `mapstructure:"batch"`
	Timing    TimingConfig        `mapstructure:"timing"`
	Selectors map[string][]string `mapstructure:"selectors"`
	Notify    NotifyConfig        `mapstructure:"notify"`
	Log       LogConfig           `mapstructure:"log"`
	Server    ServerConfig        `mapstructure:"server"`

	Accounts []authtypes.Account `mapstructure:"accounts"`
	// AccountsJSON, when set, replaces Accounts.
	AccountsJSON string `mapstructure:"accountsJson"`
}

type BrowserConfig struct {
	ExecutablePath  string        `mapstructure:"executablePath"`
	Headless        bool          `mapstructure:"headless"`
	UserDataDir     string        `mapstructure:"userDataDir"`
	ActionTimeout   time.Duration `mapstructure:"actionTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	WindowWidth     int           `mapstructure:"windowWidth"`
	WindowHeight    int           `mapstructure:"windowHeight"`
}

type HostConfig struct {
	URL          string   `mapstructure:"url"`
	Phone        string   `mapstructure:"phone"`
	Password     string   `mapstructure:"password"`
	Navigation   []string `mapstructure:"navigation"`
	BrokerMarker string   `mapstructure:"brokerMarker"`
}

// DefaultMaxAccounts matches the broker's per-user session limit.
const DefaultMaxAccounts = 3

type BatchConfig struct {
	// MaxAccounts caps the accounts processed per run. It mirrors the
	// remote system's per-user session limit.
	MaxAccounts       int      `mapstructure:"maxAccounts"`
	TimedOutIsSuccess bool     `mapstructure:"timedOutIsSuccess"`
	CompletionMarkers []string `mapstructure:"completionMarkers"`
	Title             string   `mapstructure:"title"`
}

// Limit is MaxAccounts, or DefaultMaxAccounts when unset.
func (b BatchConfig) Limit() int {
	if b.MaxAccounts <= 0 {
		return DefaultMaxAccounts
	}
	return b.MaxAccounts
}

type TimingConfig struct {
	SettleBeforeFill    time.Duration `mapstructure:"settleBeforeFill"`
	FieldPause          time.Duration `mapstructure:"fieldPause"`
	PollInterval        time.Duration `mapstructure:"pollInterval"`
	PollAttempts        int           `mapstructure:"pollAttempts"`
	NewSurfaceGrace     time.Duration `mapstructure:"newSurfaceGrace"`
	LoadTimeout         time.Duration `mapstructure:"loadTimeout"`
	SurfaceSettle       time.Duration `mapstructure:"surfaceSettle"`
	AccountPacing       time.Duration `mapstructure:"accountPacing"`
	HostSettle          time.Duration `mapstructure:"hostSettle"`
	HostStepTimeout     time.Duration `mapstructure:"hostStepTimeout"`
	BrokerMarkerTimeout time.Duration `mapstructure:"brokerMarkerTimeout"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Timeout  time.Duration  `mapstructure:"timeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"botToken"`
	ChatID   string `mapstructure:"chatId"`
	BaseURL  string `mapstructure:"baseUrl"`
}

type WebhookConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // console, json
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	RunTimeout     time.Duration `mapstructure:"runTimeout"`
	AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	ApiKey         string        `mapstructure:"apiKey"`
}

// legacyEnv maps config keys onto the environment names the job has
// always been deployed with.
var legacyEnv = map[string]string{
	"host.phone":               "ALGOTEST_PHONE",
	"host.password":            "ALGOTEST_PASSWORD",
	"accountsJson":             "ACCOUNT_JSON",
	"browser.headless":         "HEADLESS",
	"notify.telegram.botToken": "TELEGRAM_BOT_TOKEN",
	"notify.telegram.chatId":   "TELEGRAM_CHAT_ID",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("browser.executablePath", "") // Attempt auto-detect if empty
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.userDataDir", "")
	v.SetDefault("browser.actionTimeout", "30s")
	v.SetDefault("browser.shutdownTimeout", "10s")
	v.SetDefault("browser.windowWidth", 1280)
	v.SetDefault("browser.windowHeight", 1024)

	v.SetDefault("host.url", "https://algotest.in")
	v.SetDefault("host.navigation", []string{"Algo Trade", "Broker Login"})
	v.SetDefault("host.brokerMarker", "Flattrade")

	v.SetDefault("batch.maxAccounts", DefaultMaxAccounts)
	v.SetDefault("batch.timedOutIsSuccess", true)
	v.SetDefault("batch.completionMarkers", []string{"algotest", "dashboard"})
	v.SetDefault("batch.title", "Flattrade Auth")

	v.SetDefault("timing.settleBeforeFill", "700ms")
	v.SetDefault("timing.fieldPause", "200ms")
	v.SetDefault("timing.pollInterval", "500ms")
	v.SetDefault("timing.pollAttempts", 40)
	v.SetDefault("timing.newSurfaceGrace", "7s")
	v.SetDefault("timing.loadTimeout", "15s")
	v.SetDefault("timing.surfaceSettle", "1s")
	v.SetDefault("timing.accountPacing", "2s")
	v.SetDefault("timing.hostSettle", "2s")
	v.SetDefault("timing.hostStepTimeout", "15s")
	v.SetDefault("timing.brokerMarkerTimeout", "30s")

	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.telegram.baseUrl", "https://api.telegram.org")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.maxSize", 10)
	v.SetDefault("log.maxBackups", 3)
	v.SetDefault("log.maxAge", 28)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.idleTimeout", "60s")
	v.SetDefault("server.runTimeout", "10m")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.apiKey", "")
}

// LoadConfig reads defaults, an optional YAML file and the environment.
// Accounts are parsed but not validated; call Validate before a run.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.brokerlogin")
		v.AddConfigPath("/etc/brokerlogin")
	}

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("BROKERLOGIN")

	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "BROKERLOGIN_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &authtypes.ConfigError{Field: "config", Err: err}
	}

	if cfg.AccountsJSON != "" {
		accounts, err := authtypes.ParseAccounts(cfg.AccountsJSON)
		if err != nil {
			return nil, err
		}
		cfg.Accounts = accounts
	}

	return &cfg, nil
}

// Validate checks the inputs a run needs before the browser is started.
func (c *Config) Validate() error {
	if err := authtypes.ValidateAccounts(c.Accounts, c.Batch.Limit()); err != nil {
		return err
	}
	if err := auth.CheckSecrets(authtypes.Processable(c.Accounts, c.Batch.Limit())); err != nil {
		return err
	}
	if c.Host.URL == "" {
		return &authtypes.ConfigError{Field: "host.url", Err: errors.New("must not be empty")}
	}
	if c.Batch.MaxAccounts < 0 {
		return &authtypes.ConfigError{Field: "batch.maxAccounts", Err: errors.New("must not be negative")}
	}
	if c.Timing.PollAttempts <= 0 || c.Timing.PollInterval <= 0 {
		return &authtypes.ConfigError{Field: "timing.pollAttempts", Err: errors.New("poll attempts and interval must be positive")}
	}
	return nil
}
