package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedCatalogRenders(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := c.Render("board.to_move", map[string]any{"Name": "Alice", "Color": "White"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Alice (White) to move." {
		t.Fatalf("unexpected render: %q", out)
	}

	out, err = c.Render("result.white_wins", map[string]any{"White": "Alice", "Black": "Bob"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Alice (W) versus Bob (B) : 1-0") {
		t.Fatalf("unexpected outcome line: %q", out)
	}
}

func TestRenderMissingKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestRenderMissingTemplateData(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("board.to_move", map[string]any{"Name": "Alice"}); err == nil {
		t.Fatal("expected error for missing template data")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	override := "move:\n  checkmate: \"Mate.\"\n"
	if err := os.WriteFile(filepath.Join(dir, "10-custom.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New with overrides: %v", err)
	}
	out, err := c.Render("move.checkmate", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Mate." {
		t.Fatalf("override not applied: %q", out)
	}
	// Untouched keys keep their defaults.
	if out, err = c.Render("move.stalemate", nil); err != nil || out != "Stalemate!" {
		t.Fatalf("default lost: %q err=%v", out, err)
	}
}

func TestDuplicateOverrideKeysRejected(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("move:\n  check: \"X\"\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatal("expected duplicate key error")
	}
}
