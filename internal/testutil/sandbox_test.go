package testutil

import "testing"

func TestSandboxReadWrite(t *testing.T) {
	sb, err := NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	want := []byte("allocations:\n  - address: \"0x01\"\n    balance: 1\n")
	if err := sb.WriteFile("genesis.yaml", want, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := sb.ReadFile("genesis.yaml")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSandboxNestedPath(t *testing.T) {
	sb, err := NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	if err := sb.WriteFile("nested/dir/genesis.yaml", []byte("allocations: []\n"), 0o600); err != nil {
		t.Fatalf("WriteFile nested: %v", err)
	}
	if _, err := sb.ReadFile("nested/dir/genesis.yaml"); err != nil {
		t.Fatalf("ReadFile nested: %v", err)
	}
}

func TestSandboxCleanup(t *testing.T) {
	sb, err := NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	if err := sb.WriteFile("x", []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := sb.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := sb.ReadFile("x"); err == nil {
		t.Fatal("expected read to fail after cleanup")
	}
}
