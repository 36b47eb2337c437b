package core

// genesis.go – optional genesis pre-allocation: a network operator can seed
// starting balances (a "faucet" or treasury split) at chain bootstrap by
// pointing LedgerConfig.GenesisAllocPath at a YAML manifest. A chain with no
// manifest configured starts from an all-zero account state, as before.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// genesisAllocEntry is one line of a genesis manifest.
type genesisAllocEntry struct {
	Address string `yaml:"address"`
	Balance uint64 `yaml:"balance"`
}

// genesisManifest is the on-disk YAML shape: a flat list of address/balance
// pairs, credited at height 0 before any block is mined.
type genesisManifest struct {
	Allocations []genesisAllocEntry `yaml:"allocations"`
}

// loadGenesisAlloc parses path into an address -> balance map. An empty path
// yields an empty map (no pre-allocation).
func loadGenesisAlloc(path string) (map[Address]uint64, error) {
	out := make(map[Address]uint64)
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis manifest: %w", err)
	}
	var manifest genesisManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse genesis manifest: %w", err)
	}
	var total uint64
	for _, e := range manifest.Allocations {
		addr, err := ParseAddress(e.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis manifest: %w", err)
		}
		if _, dup := out[addr]; dup {
			return nil, fmt.Errorf("genesis manifest: duplicate address %s", e.Address)
		}
		sum, ok := checkedAdd(total, e.Balance)
		if !ok || sum > MaxSupply {
			return nil, fmt.Errorf("genesis manifest: total allocation exceeds max supply")
		}
		total = sum
		out[addr] = e.Balance
	}
	return out, nil
}
