package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "BOTCELIAN_CONFIG"
	mistralAPIKeyEnv  = "MISTRAL_API_KEY"
	wikiUsernameEnv   = "WIKI_USERNAME"
	wikiPasswordEnv   = "WIKI_PASSWORD"
	discordWebhookEnv = "DISCORD_WEBHOOK"
	ntfyTopicEnv      = "NTFY_TOPIC"
	siNtfyTopicEnv    = "SI_NTFY_TOPIC"
	pushoverTokenEnv  = "PUSHOVER_TOKEN"
	pushoverUserEnv   = "PUSHOVER_USER"
	databaseDSNEnv    = "DATABASE_DSN"
	redisURLEnv       = "REDIS_URL"
	logLevelEnv       = "LOG_LEVEL"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds every setting of the bot.
type Config struct {
	Wiki          WikiConfig         `yaml:"wiki"`
	Run           RunConfig          `yaml:"run"`
	Detectors     DetectorsConfig    `yaml:"detectors"`
	Sensitive     SensitiveConfig    `yaml:"sensitive"`
	Averto        AvertoConfig       `yaml:"averto"`
	Maintenance   MaintenanceConfig  `yaml:"maintenance"`
	Typography    TypographyConfig   `yaml:"typography"`
	Model         ModelConfig        `yaml:"model"`
	Notifications NotificationConfig `yaml:"notifications"`
	Storage       StorageConfig      `yaml:"storage"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// WikiConfig describes the moderated wiki and the bot account.
type WikiConfig struct {
	APIURL      string        `yaml:"apiUrl"`
	BaseURL     string        `yaml:"baseUrl"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	BotName     string        `yaml:"botName"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
}

// RunConfig bounds one moderation pass.
type RunConfig struct {
	DryRun           bool          `yaml:"dryRun"`
	AutoDeletion     bool          `yaml:"autoDeletion"`
	MaxEdits         int           `yaml:"maxEdits"`
	Lookback         time.Duration `yaml:"lookback"`
	Limit            int           `yaml:"limit"`
	Namespaces       []int         `yaml:"namespaces"`
	Interval         time.Duration `yaml:"interval"`
	LongRunThreshold time.Duration `yaml:"longRunThreshold"`
	SaveTimeout      time.Duration `yaml:"saveTimeout"`
	MetricsAddr      string        `yaml:"metricsAddr"`
	// WikiReport appends a summary of each pass to ReportPage; {year} is
	// replaced by the current year.
	WikiReport bool   `yaml:"wikiReport"`
	ReportPage string `yaml:"reportPage"`
	// StopPage is watched for emergency stop requests.
	StopPage string `yaml:"stopPage"`
}

// DetectorsConfig orders the detector chain.
type DetectorsConfig struct {
	Order []string `yaml:"order"`
}

// SensitiveConfig tunes the sensitive-term matcher.
type SensitiveConfig struct {
	Threshold int    `yaml:"threshold"`
	TermsFile string `yaml:"termsFile"`
}

// AvertoConfig tunes the copy and promotion detector.
type AvertoConfig struct {
	BaseThreshold float64        `yaml:"baseThreshold"`
	HighThreshold float64        `yaml:"highThreshold"`
	MinTextLength int            `yaml:"minTextLength"`
	MaxRunes      int            `yaml:"maxRunes"`
	Sources       []SourceConfig `yaml:"sources"`
}

// SourceConfig is one reference wiki.
type SourceConfig struct {
	Name      string `yaml:"name"`
	APIURL    string `yaml:"apiUrl"`
	IntroOnly bool   `yaml:"introOnly"`
}

// MaintenanceConfig tunes the stub heuristic.
type MaintenanceConfig struct {
	MinStubWords int `yaml:"minStubWords"`
}

// TypographyConfig bounds the mutation engine.
type TypographyConfig struct {
	Enabled   bool    `yaml:"enabled"`
	MinRatio  float64 `yaml:"minRatio"`
	MaxRatio  float64 `yaml:"maxRatio"`
	MaxPasses int     `yaml:"maxPasses"`
}

// ModelConfig describes the language model and the pacing around it.
type ModelConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"apiKey"`
	Temperature    float64       `yaml:"temperature"`
	MinInterval    time.Duration `yaml:"minInterval"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	BaseBackoff    time.Duration `yaml:"baseBackoff"`
	AttemptTimeout time.Duration `yaml:"attemptTimeout"`
	SampleRunes    int           `yaml:"sampleRunes"`
}

// Enabled reports whether the model can be called.
func (m ModelConfig) Enabled() bool {
	return m.APIKey != ""
}

// NotificationConfig encapsulates outbound channels and cooldowns.
type NotificationConfig struct {
	PageCooldown    time.Duration  `yaml:"pageCooldown"`
	MessageCooldown time.Duration  `yaml:"messageCooldown"`
	ChannelTimeout  time.Duration  `yaml:"channelTimeout"`
	RedisURL        string         `yaml:"redisUrl"`
	FallbackFile    string         `yaml:"fallbackFile"`
	Discord         DiscordConfig  `yaml:"discord"`
	Ntfy            NtfyConfig     `yaml:"ntfy"`
	Pushover        PushoverConfig `yaml:"pushover"`
}

// DiscordConfig wires the webhook channel.
type DiscordConfig struct {
	Webhook  string `yaml:"webhook"`
	Mentions string `yaml:"mentions"`
}

// NtfyConfig wires the general topic and the deletion-only topic.
type NtfyConfig struct {
	Server  string `yaml:"server"`
	Topic   string `yaml:"topic"`
	SITopic string `yaml:"siTopic"`
}

// PushoverConfig wires the high-priority channel.
type PushoverConfig struct {
	Token string `yaml:"token"`
	User  string `yaml:"user"`
}

// StorageConfig selects where state and events live.
type StorageConfig struct {
	Backend        string `yaml:"backend"`
	StateFile      string `yaml:"stateFile"`
	CheckpointFile string `yaml:"checkpointFile"`
	EventDir       string `yaml:"eventDir"`
	DSN            string `yaml:"dsn"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env (if present), the YAML file named by BOTCELIAN_CONFIG
// (if set) over the defaults, then applies environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(raw); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// decode overlays YAML on the receiver; unknown keys are rejected.
func (c *Config) decode(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{mistralAPIKeyEnv, &c.Model.APIKey},
		{wikiUsernameEnv, &c.Wiki.Username},
		{wikiPasswordEnv, &c.Wiki.Password},
		{discordWebhookEnv, &c.Notifications.Discord.Webhook},
		{ntfyTopicEnv, &c.Notifications.Ntfy.Topic},
		{siNtfyTopicEnv, &c.Notifications.Ntfy.SITopic},
		{pushoverTokenEnv, &c.Notifications.Pushover.Token},
		{pushoverUserEnv, &c.Notifications.Pushover.User},
		{databaseDSNEnv, &c.Storage.DSN},
		{redisURLEnv, &c.Notifications.RedisURL},
		{logLevelEnv, &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Validate returns every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Wiki.APIURL != "", "wiki.apiUrl is required")
	check(c.Maintenance.MinStubWords >= 10, "maintenance.minStubWords must be at least 10, got %d", c.Maintenance.MinStubWords)
	check(c.Averto.BaseThreshold >= 0 && c.Averto.BaseThreshold <= 1, "averto.baseThreshold must be in [0,1], got %g", c.Averto.BaseThreshold)
	check(c.Averto.HighThreshold >= 0 && c.Averto.HighThreshold <= 1, "averto.highThreshold must be in [0,1], got %g", c.Averto.HighThreshold)
	check(c.Averto.BaseThreshold <= c.Averto.HighThreshold, "averto.baseThreshold (%g) must not exceed averto.highThreshold (%g)", c.Averto.BaseThreshold, c.Averto.HighThreshold)
	check(c.Sensitive.Threshold >= 1 && c.Sensitive.Threshold <= 6, "sensitive.threshold must be in [1,6], got %d", c.Sensitive.Threshold)
	check(c.Run.MaxEdits >= 0, "run.maxEdits must not be negative, got %d", c.Run.MaxEdits)
	check(c.Typography.MinRatio < 1 && c.Typography.MaxRatio > 1, "typography band must satisfy minRatio < 1 < maxRatio, got [%g, %g]", c.Typography.MinRatio, c.Typography.MaxRatio)
	check(c.Model.MaxAttempts >= 1, "model.maxAttempts must be at least 1, got %d", c.Model.MaxAttempts)
	check(slices.Contains([]string{BackendFile, BackendPostgres}, c.Storage.Backend), "storage.backend must be %q or %q, got %q", BackendFile, BackendPostgres, c.Storage.Backend)
	check(c.Storage.Backend != BackendPostgres || c.Storage.DSN != "", "storage.dsn is required for the postgres backend")
	for i, src := range c.Averto.Sources {
		check(src.Name != "" && src.APIURL != "", "averto.sources[%d] needs a name and an apiUrl", i)
	}
	check(c.Notifications.Pushover.Token == "" || c.Notifications.Pushover.User != "", "notifications.pushover.user is required with a token")

	return errors.Join(errs...)
}

// Default returns the compiled defaults.
func Default() Config {
	return Config{
		Wiki: WikiConfig{
			APIURL:      "https://fr.vikidia.org/w/api.php",
			BaseURL:     "https://fr.vikidia.org",
			BotName:     "BotCélian",
			HTTPTimeout: 20 * time.Second,
		},
		Run: RunConfig{
			AutoDeletion:     true,
			MaxEdits:         50,
			Lookback:         15 * time.Minute,
			Limit:            30,
			Namespaces:       []int{0, 2},
			Interval:         15 * time.Minute,
			LongRunThreshold: 10 * time.Minute,
			SaveTimeout:      30 * time.Second,
			WikiReport:       true,
		},
		Detectors: DetectorsConfig{Order: []string{"sensitive", "averto", "judgment"}},
		Sensitive: SensitiveConfig{Threshold: 4},
		Averto: AvertoConfig{
			BaseThreshold: 0.7,
			HighThreshold: 0.9,
			MinTextLength: 100,
			MaxRunes:      5000,
			Sources: []SourceConfig{
				{Name: "wikipedia", APIURL: "https://fr.wikipedia.org/w/api.php", IntroOnly: true},
				{Name: "wikimini", APIURL: "https://fr.wikimini.org/w/api.php"},
			},
		},
		Maintenance: MaintenanceConfig{MinStubWords: 200},
		Typography:  TypographyConfig{Enabled: true, MinRatio: 0.95, MaxRatio: 1.10, MaxPasses: 5},
		Model: ModelConfig{
			Endpoint:       "https://api.mistral.ai/v1/chat/completions",
			Model:          "mistral-small-latest",
			Temperature:    0.2,
			MinInterval:    2 * time.Second,
			MaxAttempts:    3,
			BaseBackoff:    time.Second,
			AttemptTimeout: 30 * time.Second,
			SampleRunes:    4000,
		},
		Notifications: NotificationConfig{
			PageCooldown:    5 * time.Minute,
			MessageCooldown: time.Minute,
			ChannelTimeout:  10 * time.Second,
			FallbackFile:    "data/alerts.jsonl",
			Ntfy:            NtfyConfig{Server: "https://ntfy.sh"},
		},
		Storage: StorageConfig{
			Backend:        BackendFile,
			StateFile:      "data/processed.json",
			CheckpointFile: "data/checkpoints.json",
			EventDir:       "data/events",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
