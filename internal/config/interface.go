package config

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath string
	args       []string
	argsSet    bool
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithArgs specifies the command line arguments to parse instead of os.Args
func WithArgs(args []string) Option {
	return func(o *options) error {
		o.args = args
		o.argsSet = true
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// SinkKind names a metrics sink backend
type SinkKind string

const (
	SinkInfluxDB SinkKind = "influxdb"
	SinkSQLite   SinkKind = "sqlite"
	SinkPostgres SinkKind = "postgres"
	SinkNATS     SinkKind = "nats"
)

// IsValid returns whether the sink kind is known
func (s SinkKind) IsValid() bool {
	switch s {
	case SinkInfluxDB, SinkSQLite, SinkPostgres, SinkNATS:
		return true
	default:
		return false
	}
}
