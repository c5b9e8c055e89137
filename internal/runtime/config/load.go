package config

import (
	"strings"

	"github.com/spf13/viper"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

// EnvPrefix is prepended to every override, e.g. DYNSUB_TARGET_TOPIC.
const EnvPrefix = "DYNSUB"

// Load returns Default() with DYNSUB_* environment overrides applied, and
// validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return LoadFrom(v)
}

// LoadFrom applies the keys present in v on top of Default().
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := Default()
	bindDefaults(v, cfg)

	cfg.DomainID = v.GetUint32("domain_id")
	cfg.TargetTopic = v.GetString("target_topic")
	cfg.DiscoveryWaitTimeout = v.GetDuration("discovery_wait_timeout")
	cfg.ResolveTimeout = v.GetDuration("resolve_timeout")
	cfg.TypeCacheSize = v.GetInt("type_cache_size")

	cfg.ConsumeMode = strings.ToLower(v.GetString("consume_mode"))
	cfg.PollInterval = v.GetDuration("poll_interval")
	cfg.MaxSamplesPerTake = v.GetInt("max_samples_per_take")
	cfg.ReaderHistoryDepth = v.GetInt("reader_history_depth")

	cfg.PubSubSystem = strings.ToLower(v.GetString("pubsub_system"))
	cfg.KafkaBrokers = splitList(v.GetString("kafka_brokers"))
	cfg.RabbitMQURL = v.GetString("rabbitmq_url")
	cfg.NATSURL = v.GetString("nats_url")
	cfg.AWSRegion = v.GetString("aws_region")
	cfg.AWSAccountID = v.GetString("aws_account_id")
	cfg.AWSAccessKeyID = v.GetString("aws_access_key_id")
	cfg.AWSSecretAccessKey = v.GetString("aws_secret_access_key")
	cfg.AWSEndpoint = v.GetString("aws_endpoint")

	cfg.MetricsEnabled = v.GetBool("metrics_enabled")
	cfg.MetricsPort = v.GetInt("metrics_port")
	cfg.StatusEnabled = v.GetBool("status_enabled")
	cfg.LogLevel = strings.ToLower(v.GetString("log_level"))
	cfg.LogBackend = strings.ToLower(v.GetString("log_backend"))

	if err := cfg.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("domain_id", cfg.DomainID)
	v.SetDefault("target_topic", cfg.TargetTopic)
	v.SetDefault("discovery_wait_timeout", cfg.DiscoveryWaitTimeout)
	v.SetDefault("resolve_timeout", cfg.ResolveTimeout)
	v.SetDefault("type_cache_size", cfg.TypeCacheSize)
	v.SetDefault("consume_mode", cfg.ConsumeMode)
	v.SetDefault("poll_interval", cfg.PollInterval)
	v.SetDefault("max_samples_per_take", cfg.MaxSamplesPerTake)
	v.SetDefault("reader_history_depth", cfg.ReaderHistoryDepth)
	v.SetDefault("pubsub_system", cfg.PubSubSystem)
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("aws_region", "")
	v.SetDefault("aws_account_id", "")
	v.SetDefault("aws_access_key_id", "")
	v.SetDefault("aws_secret_access_key", "")
	v.SetDefault("aws_endpoint", "")
	v.SetDefault("metrics_enabled", cfg.MetricsEnabled)
	v.SetDefault("metrics_port", cfg.MetricsPort)
	v.SetDefault("status_enabled", cfg.StatusEnabled)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_backend", cfg.LogBackend)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
