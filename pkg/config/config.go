package config

// Package config provides a reusable loader for sovereignd configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"solidus/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a node. It mirrors the
// structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ChainID              uint32   `mapstructure:"chain_id" json:"chain_id"`
		ListenAddr           string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers       []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		DiscoveryTag         string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		EnableLocalDiscovery bool     `mapstructure:"enable_local_discovery" json:"enable_local_discovery"`
		EnableNATTraversal   bool     `mapstructure:"enable_nat_traversal" json:"enable_nat_traversal"`
		MaxInboundPeers      int      `mapstructure:"max_inbound_peers" json:"max_inbound_peers"`
		MaxOutboundPeers     int      `mapstructure:"max_outbound_peers" json:"max_outbound_peers"`
		MaxPeersPerOrigin    int      `mapstructure:"max_peers_per_origin" json:"max_peers_per_origin"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		TargetBlockTimeSeconds int    `mapstructure:"target_block_time_seconds" json:"target_block_time_seconds"`
		RetargetInterval       uint64 `mapstructure:"retarget_interval" json:"retarget_interval"`
		InitialDifficulty      uint32 `mapstructure:"initial_difficulty" json:"initial_difficulty"`
	} `mapstructure:"consensus" json:"consensus"`

	Mining struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Threads int    `mapstructure:"threads" json:"threads"`
		Address string `mapstructure:"address" json:"address"`
	} `mapstructure:"mining" json:"mining"`

	Storage struct {
		DataDir          string `mapstructure:"data_dir" json:"data_dir"`
		GenesisAllocFile string `mapstructure:"genesis_alloc_file" json:"genesis_alloc_file"`
	} `mapstructure:"storage" json:"storage"`

	RPC struct {
		Enabled    bool   `mapstructure:"enabled" json:"enabled"`
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"rpc" json:"rpc"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	// godotenv populates the process environment from a local .env file, if
	// present, before viper's AutomaticEnv reads it; a missing file is not
	// an error, operators are not required to use one.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, utils.Wrap(err, "load .env")
	}

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("sovereignd")
	// Nested keys such as network.chain_id map to SOVEREIGND_NETWORK_CHAIN_ID.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SOVEREIGND_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SOVEREIGND_ENV", ""))
}

func setDefaults() {
	viper.SetDefault("network.chain_id", 963)
	viper.SetDefault("network.listen_addr", "/ip4/0.0.0.0/tcp/30333")
	viper.SetDefault("network.discovery_tag", "sovereignd")
	viper.SetDefault("network.enable_local_discovery", true)
	viper.SetDefault("network.enable_nat_traversal", false)
	viper.SetDefault("network.max_inbound_peers", 50)
	viper.SetDefault("network.max_outbound_peers", 10)
	viper.SetDefault("network.max_peers_per_origin", 5)

	viper.SetDefault("consensus.target_block_time_seconds", 60)
	viper.SetDefault("consensus.retarget_interval", 20)
	viper.SetDefault("consensus.initial_difficulty", 20)

	viper.SetDefault("mining.enabled", false)
	viper.SetDefault("mining.threads", 1)

	viper.SetDefault("storage.data_dir", "./data")

	viper.SetDefault("rpc.enabled", false)
	viper.SetDefault("rpc.listen_addr", "127.0.0.1:8645")

	viper.SetDefault("logging.level", "info")
}
