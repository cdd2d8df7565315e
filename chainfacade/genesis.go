package chainfacade

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Genesis checkpoints are compiled-in per network (spec §10: "the core
// requires only that a database directory exists and that the genesis
// block matches the selected network"). Validating the rest of the
// genesis block is out of scope; only its hash is needed to seed a
// fresh chain index.
var (
	MainnetGenesis = Checkpoint{Hash: mustHash("000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")}
	TestnetGenesis = Checkpoint{Hash: mustHash("000000000933ea01ad0ee984209779baaec3ced90fa3f408719526f8d77f4943")}
	RegtestGenesis = Checkpoint{Hash: mustHash("0f9188f13cb7b2c71f2a335e3a4fc328bf5beb436012afca590b1a11466e2206")}
)

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

// GenesisFor returns the compiled-in genesis checkpoint for the given
// network name ("mainnet", "testnet", "regtest"). ok is false for any
// other value.
func GenesisFor(network string) (Checkpoint, bool) {
	switch network {
	case "mainnet":
		return MainnetGenesis, true
	case "testnet":
		return TestnetGenesis, true
	case "regtest":
		return RegtestGenesis, true
	default:
		return Checkpoint{}, false
	}
}
