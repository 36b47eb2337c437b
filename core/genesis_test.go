package core

import (
	"testing"

	"solidus/internal/testutil"
)

func TestLoadGenesisAllocEmptyPath(t *testing.T) {
	alloc, err := loadGenesisAlloc("")
	if err != nil {
		t.Fatalf("loadGenesisAlloc: %v", err)
	}
	if len(alloc) != 0 {
		t.Fatalf("expected no allocations, got %d", len(alloc))
	}
}

func TestLoadGenesisAllocParsesManifest(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	a := Address{0xA}
	b := Address{0xB}
	manifest := "allocations:\n" +
		"  - address: \"" + a.String() + "\"\n    balance: 1000\n" +
		"  - address: \"" + b.String() + "\"\n    balance: 2000\n"
	if err := sb.WriteFile("genesis.yaml", []byte(manifest), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	alloc, err := loadGenesisAlloc(sb.Path("genesis.yaml"))
	if err != nil {
		t.Fatalf("loadGenesisAlloc: %v", err)
	}
	if alloc[a] != 1000 || alloc[b] != 2000 {
		t.Fatalf("unexpected allocations: %+v", alloc)
	}
}

func TestLoadGenesisAllocRejectsDuplicateAddress(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	a := Address{0xA}
	manifest := "allocations:\n" +
		"  - address: \"" + a.String() + "\"\n    balance: 1000\n" +
		"  - address: \"" + a.String() + "\"\n    balance: 500\n"
	if err := sb.WriteFile("genesis.yaml", []byte(manifest), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := loadGenesisAlloc(sb.Path("genesis.yaml")); err == nil {
		t.Fatal("expected rejection: duplicate address in manifest")
	}
}

func TestLoadGenesisAllocRejectsSupplyOverflow(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	a := Address{0xA}
	b := Address{0xB}
	over := MaxSupply/2 + 1
	manifest := "allocations:\n" +
		"  - address: \"" + a.String() + "\"\n    balance: " + uint64ToString(over) + "\n" +
		"  - address: \"" + b.String() + "\"\n    balance: " + uint64ToString(over) + "\n"
	if err := sb.WriteFile("genesis.yaml", []byte(manifest), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := loadGenesisAlloc(sb.Path("genesis.yaml")); err == nil {
		t.Fatal("expected rejection: total allocation exceeds max supply")
	}
}

func TestOpenLedgerWithGenesisAlloc(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	holder := Address{0xC}
	manifest := "allocations:\n  - address: \"" + holder.String() + "\"\n    balance: 500000\n"
	if err := sb.WriteFile("genesis.yaml", []byte(manifest), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l, err := OpenLedger(LedgerConfig{
		DataDir:           sb.Path("data"),
		ChainID:           ChainID,
		InitialDifficulty: 16,
		GenesisTimestamp:  testGenesisTime(),
		GenesisAllocPath:  sb.Path("genesis.yaml"),
	}, nil, nil)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	if got := l.BalanceOf(holder); got != 500000 {
		t.Fatalf("expected pre-allocated balance 500000, got %d", got)
	}
	tip, err := l.Tip()
	if err != nil {
		t.Fatalf("Tip: %v", err)
	}
	if tip.TotalSupply != 500000 {
		t.Fatalf("expected genesis total_supply 500000, got %d", tip.TotalSupply)
	}
}
