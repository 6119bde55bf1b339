package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/ingest"
	"codeberg.org/mutker/sensorlog/internal/link"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/store"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix    = "SENSORLOG"
	DefaultLogLevel     = LogLevelInfo
	DefaultDatabase     = "/var/lib/sensorlog/sensor_data.db"
	DefaultPollInterval = time.Second

	configName = "sensorlog"
	configType = "toml"
	flagConfig = "config"
)

type Config struct {
	Endpoint        string           `mapstructure:"endpoint"`
	Port            link.PortOptions `mapstructure:",squash"`
	Database        string           `mapstructure:"database"`
	BackupOnMigrate bool             `mapstructure:"backup_on_migrate"`
	PollInterval    time.Duration    `mapstructure:"poll_interval"`
	QueueSize       int              `mapstructure:"queue_size"`
	Listen          string           `mapstructure:"listen"`
	LogLevel        LogLevel         `mapstructure:"log_level"`
	Debug           bool             `mapstructure:"debug"`
	Verbose         bool             `mapstructure:"verbose"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "")
	v.SetDefault("baud_rate", link.DefaultBaudRate)
	v.SetDefault("data_bits", 8)
	v.SetDefault("stop_bits", 1)
	v.SetDefault("parity", "N")
	v.SetDefault("read_timeout", link.DefaultReadTimeout)
	v.SetDefault("database", DefaultDatabase)
	v.SetDefault("backup_on_migrate", true)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("queue_size", ingest.DefaultQueueSize)
	v.SetDefault("listen", "")
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
}

// RegisterFlags adds every configuration flag to fs. Flag names use hyphens
// and map onto the underscore keys of the config file.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(flagConfig, "", "Path to config file")
	fs.String("endpoint", "", "Device endpoint: serial path, serial://path or tcp://host:port")
	fs.Int("baud-rate", link.DefaultBaudRate, "Serial baud rate")
	fs.Int("data-bits", 8, "Serial data bits")
	fs.Int("stop-bits", 1, "Serial stop bits (1 or 2)")
	fs.String("parity", "N", "Serial parity (N, E or O)")
	fs.Duration("read-timeout", link.DefaultReadTimeout, "Read timeout; bounds how long a stop waits on an idle link")
	fs.String("database", DefaultDatabase, "Path to the telemetry database")
	fs.Bool("backup-on-migrate", true, "Back up the database before upgrading its schema")
	fs.Duration("poll-interval", DefaultPollInterval, "Live tail poll interval")
	fs.Int("queue-size", ingest.DefaultQueueSize, "Readings buffered between link and store")
	fs.String("listen", "", "HTTP listen address, empty to disable")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
}

// Load merges defaults, the config file, SENSORLOG_* environment variables
// and the flags in fs, in increasing order of precedence. fs may be nil.
func Load(fs *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if f := fs.Lookup(flagConfig); f != nil && f.Changed {
			o.configPath = f.Value.String()
		}

		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Name == flagConfig || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
		}
	}

	if err := readConfigFile(v, o); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, o options) error {
	errFactory := errors.New()

	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath("/etc")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", configName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, string(c.LogLevel))
	}
	if c.PollInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.PollInterval.String())
	}
	if c.Port.ReadTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "read_timeout "+c.Port.ReadTimeout.String())
	}
	if c.QueueSize <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "queue_size must be positive")
	}
	if strings.TrimSpace(c.Database) == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "database path is empty")
	}
	if _, err := c.Port.Normalize(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return nil
}

// Level resolves the effective log level. --debug forces debug; --verbose
// raises log_level to info but never lowers a more verbose setting.
func (c *Config) Level() logger.LogLevel {
	if c.Debug {
		return logger.DebugLevel
	}

	level, err := logger.ParseLevel(string(c.LogLevel))
	if err != nil {
		level = logger.InfoLevel
	}
	if c.Verbose && level > logger.InfoLevel {
		level = logger.InfoLevel
	}
	return level
}

// Store returns the store settings.
func (c *Config) Store() store.Config {
	return store.Config{
		DBPath:          c.Database,
		BackupOnMigrate: c.BackupOnMigrate,
	}
}
