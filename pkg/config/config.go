package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds the webhook configuration. It is populated once at startup
// and read-only thereafter.
type Config struct {
	WebhookPort     int
	WebhookCertPath string
	WebhookCertName string
	WebhookCertKey  string
	LogLevel        string
	LogFormat       string
	MetricsEnable   bool

	// Mutation policy.
	StandaloneCPUMillicores int64
	RandomCPUMinMillicores  int64
	RandomCPUMaxMillicores  int64
	WebhookAppLabel         string

	// Deletion invariants.
	CPUThresholdMillicores    int64
	MinPodsWithNodeSelector   int
	RequiredNodeSelectorKey   string
	RequiredNodeSelectorValue string

	// Cluster queries.
	ClusterQueryTimeout time.Duration
}

// setDefaults configures the default values for configuration parameters.
func setDefaults() {
	viper.SetDefault("webhook-port", 8443)
	viper.SetDefault("webhook-cert-path", "")
	viper.SetDefault("webhook-cert-name", "tls.crt")
	viper.SetDefault("webhook-cert-key", "tls.key")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "json")
	viper.SetDefault("metrics-enable", true)
	viper.SetDefault("standalone-cpu-millicores", 500)
	viper.SetDefault("random-cpu-min-millicores", 100)
	viper.SetDefault("random-cpu-max-millicores", 500)
	viper.SetDefault("webhook-app-label", "pod-cpu-mutator")
	viper.SetDefault("cpu-threshold-millicores", 2000)
	viper.SetDefault("min-pods-with-node-selector", 2)
	viper.SetDefault("required-node-selector-key", "node-type")
	viper.SetDefault("required-node-selector-value", "on_demand")
	viper.SetDefault("cluster-query-timeout", "5s")
}

// InitConfig initializes viper configuration with environment variable
// support. A flag such as cpu-threshold-millicores is overridable via the
// CPU_THRESHOLD_MILLICORES environment variable.
func InitConfig() (*Config, error) {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	setDefaults()

	cfg := &Config{
		WebhookPort:               viper.GetInt("webhook-port"),
		WebhookCertPath:           viper.GetString("webhook-cert-path"),
		WebhookCertName:           viper.GetString("webhook-cert-name"),
		WebhookCertKey:            viper.GetString("webhook-cert-key"),
		LogLevel:                  viper.GetString("log-level"),
		LogFormat:                 viper.GetString("log-format"),
		MetricsEnable:             viper.GetBool("metrics-enable"),
		StandaloneCPUMillicores:   viper.GetInt64("standalone-cpu-millicores"),
		RandomCPUMinMillicores:    viper.GetInt64("random-cpu-min-millicores"),
		RandomCPUMaxMillicores:    viper.GetInt64("random-cpu-max-millicores"),
		WebhookAppLabel:           viper.GetString("webhook-app-label"),
		CPUThresholdMillicores:    viper.GetInt64("cpu-threshold-millicores"),
		MinPodsWithNodeSelector:   viper.GetInt("min-pods-with-node-selector"),
		RequiredNodeSelectorKey:   viper.GetString("required-node-selector-key"),
		RequiredNodeSelectorValue: viper.GetString("required-node-selector-value"),
		ClusterQueryTimeout:       viper.GetDuration("cluster-query-timeout"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RandomCPUMinMillicores > c.RandomCPUMaxMillicores {
		return fmt.Errorf("random-cpu-min-millicores (%d) must not exceed random-cpu-max-millicores (%d)",
			c.RandomCPUMinMillicores, c.RandomCPUMaxMillicores)
	}
	if c.RandomCPUMinMillicores < 0 || c.StandaloneCPUMillicores < 0 {
		return fmt.Errorf("CPU assignment values must be non-negative")
	}
	if c.CPUThresholdMillicores < 0 {
		return fmt.Errorf("cpu-threshold-millicores must be non-negative")
	}
	if c.ClusterQueryTimeout <= 0 {
		return fmt.Errorf("cluster-query-timeout must be positive")
	}
	return nil
}

// SetupFlags binds cobra flags to viper.
func SetupFlags(cmd *cobra.Command) error {
	cmd.Flags().Int("webhook-port", 8443, "The port the webhook server listens on.")
	cmd.Flags().String("webhook-cert-path", "",
		"The directory that contains the webhook serving certificate. Empty disables TLS.")
	cmd.Flags().String("webhook-cert-name", "tls.crt", "The name of the webhook certificate file.")
	cmd.Flags().String("webhook-cert-key", "tls.key", "The name of the webhook key file.")
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "json", "Log format (json or console)")
	cmd.Flags().Bool("metrics-enable", true, "Enable the /metrics endpoint.")
	cmd.Flags().Int64("standalone-cpu-millicores", 500,
		"CPU request assigned to pods without a ReplicaSet or Deployment owner.")
	cmd.Flags().Int64("random-cpu-min-millicores", 100,
		"Lower bound of the random CPU request assigned to controller-owned pods.")
	cmd.Flags().Int64("random-cpu-max-millicores", 500,
		"Upper bound of the random CPU request assigned to controller-owned pods.")
	cmd.Flags().String("webhook-app-label", "pod-cpu-mutator",
		"Pods carrying app=<value>, or whose name contains it, are never mutated.")
	cmd.Flags().Int64("cpu-threshold-millicores", 2000,
		"Minimum aggregate CPU a ReplicaSet must retain after a pod deletion.")
	cmd.Flags().Int("min-pods-with-node-selector", 2,
		"Minimum number of ReplicaSet pods that must keep the required node selector.")
	cmd.Flags().String("required-node-selector-key", "node-type",
		"Node selector key counted by the deletion invariant.")
	cmd.Flags().String("required-node-selector-value", "on_demand",
		"Node selector value counted by the deletion invariant.")
	cmd.Flags().Duration("cluster-query-timeout", 5*time.Second,
		"Timeout for cluster queries issued during deletion validation.")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("unable to bind flags to viper: %w", err)
	}
	return nil
}
