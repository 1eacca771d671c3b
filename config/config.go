// Package config defines the registry-style configuration the core
// reads: Cassandra connection defaults and one section per processor
// family. Values are loaded from a TOML file via viper and may be
// overridden by environment variables prefixed PSGCASS_.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Duration wraps time.Duration. String renders it in Go duration
// syntax ("1m30s"). Load decodes it from an integer count of
// nanoseconds; a duration string such as "5s" is not decoded into it.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// CassandraConfig holds the connection defaults every schema refresh
// and task FSM uses when it dials or reuses a cluster connection.
type CassandraConfig struct {
	// MetaKeyspace is the keyspace holding sat2keyspace and messages.
	// Empty means "not specified".
	MetaKeyspace string `mapstructure:"meta-keyspace"`
	// Domain scopes rows within the meta-keyspace tables.
	Domain string `mapstructure:"domain"`
	// BootstrapHosts dials the meta-keyspace cluster itself.
	BootstrapHosts []string `mapstructure:"bootstrap-hosts"`
	DefaultPort    int      `mapstructure:"default-port"`

	Consistency    string   `mapstructure:"consistency"`
	ConnectTimeout Duration `mapstructure:"connect-timeout"`
	QueryTimeout   Duration `mapstructure:"query-timeout"`
	// RetryCount is the retry count of the driver's retry policy on
	// every cluster the registry dials. Schema/messages refresh retries
	// are bounded separately, by the schema package's own fixed count.
	RetryCount int `mapstructure:"retry-count"`

	// ResolverRequired makes refresh_schema fail with
	// ResolverKeyspaceUndefined when no Resolver row is present.
	ResolverRequired bool `mapstructure:"resolver-required"`
}

// ProcessorConfig enables or disables one processor family and caps
// its concurrency.
type ProcessorConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxConcurrency int  `mapstructure:"max-concurrency"`
}

// ServerConfig holds the daemon's own knobs.
type ServerConfig struct {
	Bind            string   `mapstructure:"bind"`
	WorkerLoops     int      `mapstructure:"worker-loops"`
	SchemaRefresh   Duration `mapstructure:"schema-refresh-interval"`
	MessagesRefresh Duration `mapstructure:"messages-refresh-interval"`
	RequestTimeout  Duration `mapstructure:"request-timeout"`
	SentryDSN       string   `mapstructure:"sentry-dsn"`
	StatsDHost      string   `mapstructure:"statsd-host"`
}

// Config is the root configuration object.
type Config struct {
	Server     ServerConfig               `mapstructure:"server"`
	Cassandra  CassandraConfig            `mapstructure:"cassandra"`
	Processors map[string]ProcessorConfig `mapstructure:"processors"`
}

// Default returns a Config with sane timeouts, clustering left off
// until hosts are supplied, and every registered processor family
// disabled until explicitly turned on.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:            ":2180",
			WorkerLoops:     4,
			SchemaRefresh:   Duration(2 * time.Minute),
			MessagesRefresh: Duration(2 * time.Minute),
			RequestTimeout:  Duration(30 * time.Second),
		},
		Cassandra: CassandraConfig{
			Domain:         "PSG",
			DefaultPort:    9042,
			Consistency:    "LOCAL_QUORUM",
			ConnectTimeout: Duration(5 * time.Second),
			QueryTimeout:   Duration(10 * time.Second),
			RetryCount:     5,
		},
		Processors: map[string]ProcessorConfig{},
	}
}

// Load reads configuration from path (if non-empty), then applies
// PSGCASS_-prefixed environment overrides on top of the config file.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}
	v.SetEnvPrefix("PSGCASS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
