package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval        = 60
	DefaultLogLevel        = "info"
	DefaultFritzBoxAddress = "192.168.178.1"
	DefaultFritzBoxPort    = 49000
	DefaultTimeout         = 10
	DefaultInfluxAddress   = "127.0.0.1"
	DefaultInfluxPort      = 8086
	DefaultInfluxUser      = "root"
	DefaultInfluxPassword  = "root"
	DefaultDatabase        = "FritzBox"
	DefaultSQLitePath      = "/var/lib/fritzboxinflux/metrics.db"
	DefaultPostgresTable   = "router_metrics"
	DefaultNATSSubject     = "fritzbox"

	configEnv      = "FRITZBOXINFLUX_CONFIG"
	configName     = "fritzboxinflux"
	configType     = "toml"
	configSearchIn = "/etc"
	pidFileName    = "fritzboxinflux.pid"
	maxPort        = 65535
)

type Config struct {
	Interval int      `mapstructure:"interval"`
	LogLevel string   `mapstructure:"log_level"`
	PIDFile  string   `mapstructure:"pid_file"`
	Sinks    []string `mapstructure:"sinks"`

	FritzBox FritzBoxConfig `mapstructure:"fritzbox"`
	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	NATS     NATSConfig     `mapstructure:"nats"`
}

type FritzBoxConfig struct {
	Address  string `mapstructure:"address"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DSL      bool   `mapstructure:"dsl"`
	Timeout  int    `mapstructure:"timeout"`
}

type InfluxDBConfig struct {
	Address  string `mapstructure:"address"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Timeout  int    `mapstructure:"timeout"`
}

type SQLiteConfig struct {
	Path         string `mapstructure:"path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
	BackupDir    string `mapstructure:"backup_dir"`
}

type PostgresConfig struct {
	URL   string `mapstructure:"url"`
	Table string `mapstructure:"table"`
}

type NATSConfig struct {
	URL      string `mapstructure:"url"`
	Subject  string `mapstructure:"subject"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Timeout  int    `mapstructure:"timeout"`
}

// envBindings keeps the environment variable names of the original deployment.
var envBindings = map[string][]string{
	"interval":             {"SAMPLE_TIME"},
	"log_level":            {"LOG_LEVEL"},
	"pid_file":             {"PID_FILE"},
	"sinks":                {"SINKS"},
	"fritzbox.address":     {"FB_IP"},
	"fritzbox.port":        {"FB_PORT"},
	"fritzbox.user":        {"FB_USER"},
	"fritzbox.password":    {"FB_PASSWD"},
	"fritzbox.dsl":         {"FB_DSL"},
	"fritzbox.timeout":     {"FB_TIMEOUT"},
	"influxdb.address":     {"INFLUX_IP"},
	"influxdb.port":        {"INFLUX_PORT"},
	"influxdb.user":        {"INFLUX_USER"},
	"influxdb.password":    {"INFLUX_PASSWD"},
	"influxdb.database":    {"FB_ID"},
	"influxdb.timeout":     {"INFLUX_TIMEOUT"},
	"sqlite.path":          {"SQLITE_PATH"},
	"sqlite.batch_size":    {"SQLITE_BATCH_SIZE"},
	"sqlite.batch_timeout": {"SQLITE_BATCH_TIMEOUT"},
	"sqlite.backup_dir":    {"SQLITE_BACKUP_DIR"},
	"postgres.url":         {"POSTGRES_URL"},
	"postgres.table":       {"POSTGRES_TABLE"},
	"nats.url":             {"NATS_URL"},
	"nats.subject":         {"NATS_SUBJECT"},
	"nats.user":            {"NATS_USER"},
	"nats.password":        {"NATS_PASSWD"},
	"nats.timeout":         {"NATS_TIMEOUT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", filepath.Join(os.TempDir(), pidFileName))
	v.SetDefault("sinks", []string{string(SinkInfluxDB)})

	v.SetDefault("fritzbox.address", DefaultFritzBoxAddress)
	v.SetDefault("fritzbox.port", DefaultFritzBoxPort)
	v.SetDefault("fritzbox.user", "")
	v.SetDefault("fritzbox.password", "")
	v.SetDefault("fritzbox.dsl", true)
	v.SetDefault("fritzbox.timeout", DefaultTimeout)

	v.SetDefault("influxdb.address", DefaultInfluxAddress)
	v.SetDefault("influxdb.port", DefaultInfluxPort)
	v.SetDefault("influxdb.user", DefaultInfluxUser)
	v.SetDefault("influxdb.password", DefaultInfluxPassword)
	v.SetDefault("influxdb.database", DefaultDatabase)
	v.SetDefault("influxdb.timeout", DefaultTimeout)

	v.SetDefault("sqlite.path", DefaultSQLitePath)
	v.SetDefault("sqlite.batch_size", 1)
	v.SetDefault("sqlite.batch_timeout", 0)
	v.SetDefault("sqlite.backup_dir", "")

	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.table", DefaultPostgresTable)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", DefaultNATSSubject)
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.timeout", DefaultTimeout)
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	flags.String("config", "", "Path to a TOML configuration file")
	flags.Int("interval", DefaultInterval, "Seconds between samples")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("debug", false, "Shorthand for --log-level=debug")
	flags.String("pid-file", "", "Path of the PID file")
	flags.StringSlice("sinks", []string{string(SinkInfluxDB)}, "Metrics sinks (influxdb, sqlite, postgres, nats)")
	flags.String("fritzbox-address", DefaultFritzBoxAddress, "Address of the FRITZ!Box")
	flags.Bool("dsl", true, "The FRITZ!Box is connected via DSL")

	return flags
}

var flagKeys = map[string]string{
	"interval":         "interval",
	"log-level":        "log_level",
	"pid-file":         "pid_file",
	"sinks":            "sinks",
	"fritzbox-address": "fritzbox.address",
	"dsl":              "fritzbox.dsl",
}

// Load builds the configuration from defaults, an optional TOML file,
// environment variables and command line flags, in increasing precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	v := viper.New()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(o.args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := readConfigFile(v, resolveConfigPath(o, flags)); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if debug, _ := flags.GetBool("debug"); debug {
		config.LogLevel = string(LogLevelDebug)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func resolveConfigPath(o *options, flags *pflag.FlagSet) string {
	if path, _ := flags.GetString("config"); path != "" {
		return path
	}
	if o.configPath != "" {
		return o.configPath
	}

	return os.Getenv(configEnv)
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.AddConfigPath(configSearchIn)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	sinks := make([]string, 0, len(c.Sinks))
	for _, s := range c.Sinks {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sinks = append(sinks, s)
		}
	}
	c.Sinks = sinks

	if c.SQLite.BackupDir == "" && c.SQLite.Path != "" {
		c.SQLite.BackupDir = filepath.Join(filepath.Dir(c.SQLite.Path), "backups")
	}
}

// Validate checks the loaded values and returns the first problem found.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.FritzBox.Address == "" {
		return errFactory.WithData(errors.ErrInvalidAddress, "fritzbox.address")
	}

	if c.FritzBox.Port < 1 || c.FritzBox.Port > maxPort {
		return errFactory.WithData(errors.ErrInvalidPort, c.FritzBox.Port)
	}

	if len(c.Sinks) == 0 {
		return errFactory.WithData(errors.ErrMissingConfig, "sinks")
	}

	for _, name := range c.Sinks {
		if err := c.validateSink(SinkKind(name)); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateSink(kind SinkKind) error {
	errFactory := errors.New()

	switch kind {
	case SinkInfluxDB:
		if c.InfluxDB.Address == "" {
			return errFactory.WithData(errors.ErrInvalidAddress, "influxdb.address")
		}
		if c.InfluxDB.Port < 1 || c.InfluxDB.Port > maxPort {
			return errFactory.WithData(errors.ErrInvalidPort, c.InfluxDB.Port)
		}
		if c.InfluxDB.Database == "" {
			return errFactory.WithData(errors.ErrMissingConfig, "influxdb.database")
		}
	case SinkSQLite:
		if c.SQLite.Path == "" {
			return errFactory.WithData(errors.ErrMissingConfig, "sqlite.path")
		}
	case SinkPostgres:
		if c.Postgres.URL == "" {
			return errFactory.WithData(errors.ErrMissingConfig, "postgres.url")
		}
	case SinkNATS:
		if c.NATS.URL == "" {
			return errFactory.WithData(errors.ErrMissingConfig, "nats.url")
		}
	default:
		return errFactory.WithData(errors.ErrUnknownSink, string(kind))
	}

	return nil
}

// IntervalDuration returns the sampling interval.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}
