// Package config defines the node's persisted configuration: subnet
// identity, parent/child RPC endpoints, polling/backoff intervals,
// snapshot paths, relayer parallelism, and the keystore path. It is
// loaded from a TOML file with environment-variable overrides via
// spf13/viper, the way the teacher's tooling lineage configures its
// own node binaries.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the node's full, validated configuration.
type Config struct {
	Home string `mapstructure:"home"`

	Subnet SubnetConfig `mapstructure:"subnet"`
	Parent RPCEndpoint  `mapstructure:"parent"`
	Child  RPCEndpoint  `mapstructure:"child"`

	TopDown    TopDownConfig    `mapstructure:"topdown"`
	Relayer    RelayerConfig    `mapstructure:"relayer"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Keystore   KeystoreConfig   `mapstructure:"keystore"`
	EthAPI     EthAPIConfig     `mapstructure:"ethapi"`
}

// SubnetConfig names this node's own subnet and its validator identity.
type SubnetConfig struct {
	ID            string `mapstructure:"id"`
	Validator     bool   `mapstructure:"validator"`
	MaxReorgDepth uint64 `mapstructure:"max_reorg_depth"`
}

// RPCEndpoint is a parent- or child-chain RPC target.
type RPCEndpoint struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TopDownConfig tunes the parent-view syncer (C6).
type TopDownConfig struct {
	ChainHeadDelay        uint64        `mapstructure:"chain_head_delay"`
	PollingInterval       time.Duration `mapstructure:"polling_interval"`
	ExponentialRetryLimit int           `mapstructure:"exponential_retry_limit"`
	ExponentialBackOff    time.Duration `mapstructure:"exponential_backoff"`
	MaxProposalRange      uint64        `mapstructure:"max_proposal_range"`
	ProposalDelay         uint64        `mapstructure:"proposal_delay"`
}

// RelayerConfig tunes the bottom-up relayer (C8).
type RelayerConfig struct {
	MaxParallelism     int64         `mapstructure:"max_parallelism"`
	FinalizationBlocks uint64        `mapstructure:"finalization_blocks"`
	PollingInterval    time.Duration `mapstructure:"polling_interval"`
}

// CheckpointConfig tunes the checkpoint broadcaster (C9).
type CheckpointConfig struct {
	GasOverestimationRate float64       `mapstructure:"gas_overestimation_rate"`
	MaxRetries            int           `mapstructure:"max_retries"`
	RetryDelay            time.Duration `mapstructure:"retry_delay"`
}

// SnapshotConfig tunes the snapshot engine (C4).
type SnapshotConfig struct {
	Dir               string `mapstructure:"dir"`
	TargetPartSize    int64  `mapstructure:"target_part_size"`
	RetainCount       int    `mapstructure:"retain_count"`
	RetainMaxAgeHours int    `mapstructure:"retain_max_age_hours"`
}

// KeystoreConfig locates the wallet backend.
type KeystoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// EthAPIConfig tunes the JSON-RPC/WebSocket facade.
type EthAPIConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Default returns the configuration's baked-in defaults, applied before
// any file or environment override.
func Default() Config {
	return Config{
		Home: "~/.ipc-subnet-node",
		Subnet: SubnetConfig{
			MaxReorgDepth: 100, // §9 open question: operator-configurable halt threshold
		},
		TopDown: TopDownConfig{
			PollingInterval:       2 * time.Second,
			ExponentialRetryLimit: 5,
			ExponentialBackOff:    500 * time.Millisecond,
			MaxProposalRange:      100,
		},
		Relayer: RelayerConfig{
			MaxParallelism:  4,
			PollingInterval: 5 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			GasOverestimationRate: 1.25,
			MaxRetries:            3,
			RetryDelay:            time.Second,
		},
		Snapshot: SnapshotConfig{
			Dir:               "snapshots",
			TargetPartSize:    1 << 20,
			RetainCount:       5,
			RetainMaxAgeHours: 24 * 7,
		},
		Keystore: KeystoreConfig{Dir: "keystore"},
		EthAPI: EthAPIConfig{
			ListenAddr:     "127.0.0.1:8545",
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads configFile (TOML) over the defaults, then applies
// IPC_SUBNET_NODE_-prefixed environment variable overrides (e.g.
// IPC_SUBNET_NODE_RELAYER_MAX_PARALLELISM), matching the teacher's
// flag-and-env-override convention.
func Load(configFile string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("toml")
	v.SetEnvPrefix("ipc_subnet_node")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows, so every Config
	// key is bound explicitly; keys absent from the file can then still
	// be overridden from the environment.
	var bindEnv func(prefix string, t reflect.Type)
	bindEnv = func(prefix string, t reflect.Type) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			key := prefix + f.Tag.Get("mapstructure")
			if f.Type.Kind() == reflect.Struct {
				bindEnv(key+".", f.Type)
				continue
			}
			_ = v.BindEnv(key)
		}
	}
	bindEnv("", reflect.TypeOf(Config{}))

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", configFile, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decoding %s: %w", configFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields every component relies on being non-zero.
func (c Config) Validate() error {
	if c.Subnet.ID == "" {
		return fmt.Errorf("config: subnet.id is required")
	}
	if c.Parent.URL == "" {
		return fmt.Errorf("config: parent.url is required")
	}
	if c.Relayer.MaxParallelism <= 0 {
		return fmt.Errorf("config: relayer.max_parallelism must be positive")
	}
	return nil
}
