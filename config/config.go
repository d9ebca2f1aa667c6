package config

import (
	"time"
)

type Config struct {
	// Node configuration
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`

	// Network configuration
	Network NetworkConfig `json:"network"`

	// Discovery configuration
	Discovery DiscoveryConfig `json:"discovery"`

	// Store configuration
	Store StoreConfig `json:"store"`

	// UI bridge configuration
	UI UIConfig `json:"ui"`
}

type NetworkConfig struct {
	ListenAddr     string   `json:"listen_addr"`
	Topic          string   `json:"topic"`
	Rendezvous     string   `json:"rendezvous"`
	BootstrapPeers []string `json:"bootstrap_peers"`
	MaxPeers       int      `json:"max_peers"`
	EnableDHT      bool     `json:"enable_dht"`
}

type DiscoveryConfig struct {
	RecordTTL     time.Duration `json:"record_ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

type StoreConfig struct {
	FileName string `json:"file_name"`
}

type UIConfig struct {
	EventBuffer int `json:"event_buffer"`
}

// Load returns a default configuration
// TODO: Add file-based configuration loading
func Load() (*Config, error) {
	return &Config{
		DataDir:  "",
		LogLevel: "info",
		Network: NetworkConfig{
			// Ephemeral OS-chosen port; the address only reaches other
			// peers through discovery.
			ListenAddr:     "/ip4/0.0.0.0/tcp/0",
			Topic:          "votes",
			Rendezvous:     "votingdapp",
			BootstrapPeers: []string{},
			MaxPeers:       50,
			EnableDHT:      false,
		},
		Discovery: DiscoveryConfig{
			RecordTTL:     20 * time.Second,
			SweepInterval: 5 * time.Second,
		},
		Store: StoreConfig{
			FileName: "votes.json",
		},
		UI: UIConfig{
			EventBuffer: 64,
		},
	}, nil
}
