// Package config provides a layered configuration loader for loginguard.
// It merges, in order, built-in defaults, an optional YAML file, an
// environment-specific override file, and environment variables.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/loginguard/engine/pkg/utils"
)

// TWStoreConfig describes one named time-windowed counter store.
type TWStoreConfig struct {
	Name string `mapstructure:"name" json:"name"`
	WindowSize int `mapstructure:"window_size" json:"window_size"`
	NumWindows int `mapstructure:"num_windows" json:"num_windows"`
	NumShards int `mapstructure:"num_shards" json:"num_shards"`
	FieldSchema map[string]string `mapstructure:"field_schema" json:"field_schema"`
	V4Prefix int `mapstructure:"v4_prefix" json:"v4_prefix"`
	V6Prefix int `mapstructure:"v6_prefix" json:"v6_prefix"`
	SoftMaxEntries int `mapstructure:"soft_max_entries" json:"soft_max_entries"`
	ExpireSleepMS int `mapstructure:"expire_sleep_ms" json:"expire_sleep_ms"`
	Replicated bool `mapstructure:"replicated" json:"replicated"`
}

// HookConfig mirrors the admin-defined webhook descriptor's config map.
type HookConfig struct {
	Name string `mapstructure:"name" json:"name"`
	Events []string `mapstructure:"events" json:"events"`
	Active bool `mapstructure:"active" json:"active"`
	URL string `mapstructure:"url" json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
	BasicAuth string `mapstructure:"basic_auth" json:"basic_auth"`
	APIKey string `mapstructure:"api_key" json:"api_key"`
	ContentType string `mapstructure:"content_type" json:"content_type"`
	AllowFilter string `mapstructure:"allow_filter" json:"allow_filter"`
	Kafka bool `mapstructure:"kafka" json:"kafka"`
}

// WebhookPoolConfig configures the dispatcher's queue and worker pool.
type WebhookPoolConfig struct {
	NumThreads int `mapstructure:"num_threads" json:"num_threads"`
	MaxConns int `mapstructure:"max_conns" json:"max_conns"`
	MaxQueueSize int `mapstructure:"max_queue_size" json:"max_queue_size"`
	TimeoutSecs int `mapstructure:"timeout_secs" json:"timeout_secs"`
	VerifyPeer bool `mapstructure:"verify_peer" json:"verify_peer"`
	VerifyHost bool `mapstructure:"verify_host" json:"verify_host"`
	CACertBundle string `mapstructure:"ca_cert_bundle" json:"ca_cert_bundle"`
}

// RedisConfig configures BL/WL Redis-backed persistence.
type RedisConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int `mapstructure:"port" json:"port"`
	Prefix string `mapstructure:"prefix" json:"prefix"`
	ConnectTimeoutMS int `mapstructure:"connect_timeout_ms" json:"connect_timeout_ms"`
	PersistReplicated bool `mapstructure:"persist_replicated" json:"persist_replicated"`
}

// ReplicationConfig configures the encrypted UDP replication transport.
type ReplicationConfig struct {
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	Peers []string `mapstructure:"peers" json:"peers"`
	PSKHex string `mapstructure:"psk_hex" json:"psk_hex"`
}

// ServerConfig configures the HTTP façade.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	ListenPort int `mapstructure:"listen_port" json:"listen_port"`
	NumWorkerThreads int `mapstructure:"num_worker_threads" json:"num_worker_threads"`
	ACL []string `mapstructure:"acl" json:"acl"`
	Password string `mapstructure:"password" json:"password"`
}

// AdapterConfig configures the default threshold policy applied by
// internal/adapter before any PolicyFunc callout.
type AdapterConfig struct {
	ReportStore string `mapstructure:"report_store" json:"report_store"`
	Field string `mapstructure:"field" json:"field"`
	DenyAt int64 `mapstructure:"deny_at" json:"deny_at"`
	TarpitAt int64 `mapstructure:"tarpit_at" json:"tarpit_at"`
}

// Config is the unified configuration for a loginguard node. It mirrors the
// structure of the YAML files under config/.
type Config struct {
	Server ServerConfig `mapstructure:"server" json:"server"`
	Redis RedisConfig `mapstructure:"redis" json:"redis"`
	Replication ReplicationConfig `mapstructure:"replication" json:"replication"`
	Webhooks WebhookPoolConfig `mapstructure:"webhooks" json:"webhooks"`
	Hooks []HookConfig `mapstructure:"hooks" json:"hooks"`
	TWStores []TWStoreConfig `mapstructure:"tw_stores" json:"tw_stores"`
	Adapter AdapterConfig `mapstructure:"adapter" json:"adapter"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("server.listen_addr", "0.0.0.0")
	viper.SetDefault("server.listen_port", 8084)
	viper.SetDefault("server.num_worker_threads", 4)

	viper.SetDefault("webhooks.num_threads", 5)
	viper.SetDefault("webhooks.max_conns", 10)
	viper.SetDefault("webhooks.max_queue_size", 50000)
	viper.SetDefault("webhooks.timeout_secs", 2)

	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.prefix", "loginguard")
	viper.SetDefault("redis.connect_timeout_ms", 1000)

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("adapter.report_store", "logins")
	viper.SetDefault("adapter.field", "fail")
	viper.SetDefault("adapter.deny_at", 10)
	viper.SetDefault("adapter.tarpit_at", 5)
}

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("LOGINGUARD")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the LOGINGUARD_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LOGINGUARD_ENV", ""))
}
