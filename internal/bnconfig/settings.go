// Package bnconfig assembles the node's Settings bundle (spec §3) from
// three layered sources, mirroring the teacher's own config stack: a
// TOML file with [node] [blockchain] [database] [network] [bitcoin]
// sections, a BN_-prefixed environment overlay, and CLI flags that
// take final precedence.
package bnconfig

// Service bits advertised in the version handshake (spec §3 "services").
const (
	ServiceNetwork uint64 = 1 << 0
	ServiceWitness uint64 = 1 << 3
)

// Settings is the immutable configuration bundle derived once per
// process. Only the subset material to the orchestration core (spec
// §3) is modeled; peripheral CLI/menu/logging-transport options are
// intentionally absent.
type Settings struct {
	Node       NodeSettings       `toml:"node"`
	Blockchain BlockchainSettings `toml:"blockchain"`
	Database   DatabaseSettings   `toml:"database"`
	Network    NetworkSettings    `toml:"network"`
	Bitcoin    BitcoinSettings    `toml:"bitcoin"`
}

type NodeSettings struct {
	DataDir string `toml:"data_dir" envconfig:"DATA_DIR"`
}

type BlockchainSettings struct {
	MinimumConnections  int     `toml:"minimum_connections" envconfig:"MINIMUM_CONNECTIONS"`
	MaximumDeviation    float64 `toml:"maximum_deviation" envconfig:"MAXIMUM_DEVIATION"`
	BlockLatencySeconds int     `toml:"block_latency_seconds" envconfig:"BLOCK_LATENCY_SECONDS"`
}

type DatabaseSettings struct {
	IndexAddresses bool `toml:"index_addresses" envconfig:"INDEX_ADDRESSES"`
}

type NetworkSettings struct {
	ProtocolMaximum    uint32 `toml:"protocol_maximum" envconfig:"PROTOCOL_MAXIMUM"`
	Services           uint64 `toml:"services" envconfig:"SERVICES"`
	InboundConnections int    `toml:"inbound_connections" envconfig:"INBOUND_CONNECTIONS"`
	OutboundConnections int   `toml:"outbound_connections" envconfig:"OUTBOUND_CONNECTIONS"`
	HostPoolCapacity   int    `toml:"host_pool_capacity" envconfig:"HOST_POOL_CAPACITY"`
	RotationSize       int    `toml:"rotation_size" envconfig:"ROTATION_SIZE"`
}

type BitcoinSettings struct {
	Network string `toml:"network" envconfig:"NETWORK"` // mainnet | testnet | regtest
}

// Default returns the node-class defaults from spec §6.
func Default() Settings {
	return Settings{
		Database: DatabaseSettings{IndexAddresses: false},
		Network: NetworkSettings{
			ProtocolMaximum:     70016,
			Services:            ServiceNetwork | ServiceWitness,
			InboundConnections:  100,
			OutboundConnections: 8,
			HostPoolCapacity:    10_000,
			RotationSize:        10_000_000,
		},
		Blockchain: BlockchainSettings{
			MinimumConnections:  4,
			MaximumDeviation:    1.5,
			BlockLatencySeconds: 30,
		},
		Bitcoin: BitcoinSettings{Network: "mainnet"},
	}
}
