package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Report    ReportConfig    `mapstructure:"report"`
	Modules   ModulesConfig   `mapstructure:"modules"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ZerologLevel falls back to info for unknown names.
func (c LogConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// RedisConfig selects the shared backend. An empty URL keeps all state in
// process.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type SignalingConfig struct {
	TicketTTL         time.Duration `mapstructure:"ticket_ttl"`
	ResumptionTTL     time.Duration `mapstructure:"resumption_ttl"`
	RunnerLockTimeout time.Duration `mapstructure:"runner_lock_timeout"`
	RoomLockTimeout   time.Duration `mapstructure:"room_lock_timeout"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	// SlowClientLimit is how many frames in a row a client may miss before
	// it is disconnected.
	SlowClientLimit int     `mapstructure:"slow_client_limit"`
	InboundRate     float64 `mapstructure:"inbound_rate"`
	InboundBurst    int     `mapstructure:"inbound_burst"`

	// StartLimit start requests are allowed per StartInterval and client
	// address.
	StartLimit    int           `mapstructure:"start_limit"`
	StartInterval time.Duration `mapstructure:"start_interval"`
}

type AuthConfig struct {
	RecordingToken string `mapstructure:"recording_token"`
	CallInToken    string `mapstructure:"call_in_token"`
}

// DirectoryConfig seeds the in-process directory.
type DirectoryConfig struct {
	Users         []UserConfig   `mapstructure:"users"`
	Rooms         []RoomConfig   `mapstructure:"rooms"`
	Tariffs       []TariffConfig `mapstructure:"tariffs"`
	DefaultTariff TariffConfig   `mapstructure:"default_tariff"`
	PhoneNumbers  []PhoneConfig  `mapstructure:"phone_numbers"`
}

type UserConfig struct {
	ID          string   `mapstructure:"id"`
	Token       string   `mapstructure:"token"`
	DisplayName string   `mapstructure:"display_name"`
	AvatarURL   string   `mapstructure:"avatar_url"`
	Groups      []string `mapstructure:"groups"`
	Tariff      string   `mapstructure:"tariff"`
}

type RoomConfig struct {
	ID           string `mapstructure:"id"`
	Title        string `mapstructure:"title"`
	CreatedBy    string `mapstructure:"created_by"`
	Password     string `mapstructure:"password"`
	WaitingRoom  bool   `mapstructure:"waiting_room"`
	E2EEncrypted bool   `mapstructure:"e2e_encrypted"`
}

type TariffConfig struct {
	ID      string           `mapstructure:"id"`
	Name    string           `mapstructure:"name"`
	Modules []string         `mapstructure:"modules"`
	Quotas  map[string]int64 `mapstructure:"quotas"`
}

type PhoneConfig struct {
	Number string `mapstructure:"number"`
	Name   string `mapstructure:"name"`
}

// AssetsConfig keeps assets in Dir, or in memory when Dir is empty.
type AssetsConfig struct {
	Dir string `mapstructure:"dir"`
}

type ReportConfig struct {
	Workers int `mapstructure:"workers"`
	Queue   int `mapstructure:"queue"`
}

type ModulesConfig struct {
	// Disabled lists module namespaces that are never built.
	Disabled       []string             `mapstructure:"disabled"`
	Chat           ChatConfig           `mapstructure:"chat"`
	Recording      RecordingConfig      `mapstructure:"recording"`
	LiveKit        LiveKitConfig        `mapstructure:"livekit"`
	Whiteboard     WhiteboardConfig     `mapstructure:"whiteboard"`
	MeetingNotes   MeetingNotesConfig   `mapstructure:"meeting_notes"`
	TrainingReport TrainingReportConfig `mapstructure:"training_report"`
}

type ChatConfig struct {
	HistoryLen       int64 `mapstructure:"history_len"`
	MaxMessageLength int   `mapstructure:"max_message_length"`
}

type RecordingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Queue is the redis list recorder tasks are pushed to.
	Queue       string             `mapstructure:"queue"`
	Livestreams []LivestreamConfig `mapstructure:"livestreams"`
}

type LivestreamConfig struct {
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	PublicURL string `mapstructure:"public_url"`
}

type LiveKitConfig struct {
	PublicURL  string        `mapstructure:"public_url"`
	ServiceURL string        `mapstructure:"service_url"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type WhiteboardConfig struct {
	URL      string `mapstructure:"url"`
	APIToken string `mapstructure:"api_token"`
}

type MeetingNotesConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// TrainingReportConfig holds checkpoint ranges in seconds.
type TrainingReportConfig struct {
	InitialDelayAfter  uint64 `mapstructure:"initial_delay_after"`
	InitialDelayWithin uint64 `mapstructure:"initial_delay_within"`
	IntervalAfter      uint64 `mapstructure:"interval_after"`
	IntervalWithin     uint64 `mapstructure:"interval_within"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.url", "")

	v.SetDefault("signaling.ticket_ttl", "30s")
	v.SetDefault("signaling.resumption_ttl", "120s")
	v.SetDefault("signaling.runner_lock_timeout", "10s")
	v.SetDefault("signaling.room_lock_timeout", "10s")
	v.SetDefault("signaling.read_limit", 32768)
	v.SetDefault("signaling.ping_period", "54s")
	v.SetDefault("signaling.send_buffer", 256)
	v.SetDefault("signaling.slow_client_limit", 64)
	v.SetDefault("signaling.inbound_rate", 50)
	v.SetDefault("signaling.inbound_burst", 100)
	v.SetDefault("signaling.start_limit", 30)
	v.SetDefault("signaling.start_interval", "1m")

	v.SetDefault("auth.recording_token", "")
	v.SetDefault("auth.call_in_token", "")
	v.SetDefault("assets.dir", "")
	v.SetDefault("report.workers", 4)
	v.SetDefault("report.queue", 256)

	v.SetDefault("modules.chat.history_len", 100)
	v.SetDefault("modules.chat.max_message_length", 4096)
	v.SetDefault("modules.recording.enabled", false)
	v.SetDefault("modules.recording.queue", "opentalk-recorder")
	v.SetDefault("modules.livekit.public_url", "")
	v.SetDefault("modules.livekit.service_url", "")
	v.SetDefault("modules.livekit.api_key", "")
	v.SetDefault("modules.livekit.api_secret", "")
	v.SetDefault("modules.livekit.token_ttl", "6h")
	v.SetDefault("modules.whiteboard.url", "")
	v.SetDefault("modules.whiteboard.api_token", "")
	v.SetDefault("modules.meeting_notes.url", "")
	v.SetDefault("modules.meeting_notes.api_key", "")
	v.SetDefault("modules.training_report.initial_delay_after", 300)
	v.SetDefault("modules.training_report.initial_delay_within", 600)
	v.SetDefault("modules.training_report.interval_after", 900)
	v.SetDefault("modules.training_report.interval_within", 900)
}

// Loader reads configuration from a .env file, the environment (OPENTALK_*),
// command line flags and config/config.<CONFIG_ENV>.yaml.
type Loader struct {
	v    *viper.Viper
	file string
	mu   sync.Mutex
}

func NewLoader(args []string) (*Loader, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}

	flags := pflag.NewFlagSet("opentalk", pflag.ContinueOnError)
	file := flags.String("config", fmt.Sprintf("config/config.%s.yaml", env), "path to the config file")
	flags.Int("port", 8080, "listen port")
	flags.String("mode", "release", "gin mode: debug or release")
	flags.String("log-level", "info", "zerolog level")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(*file)
	setDefaults(v)

	for key, flag := range map[string]string{"port": "port", "mode": "mode", "log.level": "log-level"} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("OPENTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, file: *file}, nil
}

func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Str("module", "config").Str("file", l.file).Msg("config file not loaded, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", l.file).Msg("loaded config")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Watch calls fn with the new configuration whenever the file changes.
func (l *Loader) Watch(fn func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload config")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Msg("config changed")
		fn(cfg)
	})
	l.v.WatchConfig()
}
