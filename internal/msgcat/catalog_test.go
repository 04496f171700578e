package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbedded(t *testing.T) {
	c := Default()
	got, err := c.Render("notice.check", map[string]any{"Side": "White"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "White is in check." {
		t.Fatalf("got %q", got)
	}
}

func TestRenderMissingKeyErrors(t *testing.T) {
	c := Default()
	if _, err := c.Render("notice.nope", nil); err == nil {
		t.Fatalf("expected missing template error")
	}
	if _, err := c.Render("notice.check", map[string]any{}); err == nil {
		t.Fatalf("expected missing field error")
	}
	if got := c.Text("notice.nope", nil); got != "notice.nope" {
		t.Fatalf("Text fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("notice:\n  check: \"Check on {{.Side}}!\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Text("notice.check", map[string]any{"Side": "Black"}); got != "Check on Black!" {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("outcome.draw", map[string]any{"Method": "stalemate"}); !strings.Contains(got, "stalemate") {
		t.Fatalf("default lost after override: %q", got)
	}
}

func TestOverrideDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("notice:\n  check: x\n"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
