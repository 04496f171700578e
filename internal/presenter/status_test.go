package presenter

import (
	"testing"
	"time"

	"github.com/park285/chess-duet/internal/msgcat"
	"github.com/park285/chess-duet/pkg/chessdto"
)

func TestStatusLine(t *testing.T) {
	catalog := msgcat.Default()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := &chessdto.GameSession{
		Turn:        chessdto.SideBlack,
		MoveHistory: []string{"e4", "e5", "Nf3", "Nc6", "Bb5"},
		Status:      chessdto.StatusInProgress,
		CreatedAt:   created,
	}

	got := StatusLine(catalog, doc, created.Add(2*time.Minute+5*time.Second))
	want := "Black to move · 5 plies · 2:05 · last … e5 Nf3 Nc6 Bb5"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	doc.Status, doc.Outcome = chessdto.StatusComplete, "1-0"
	doc.UpdatedAt = created.Add(90 * time.Minute)
	got = StatusLine(catalog, doc, created.Add(48*time.Hour))
	if want := "Game over (1-0) after 5 plies · 1h 30m 0s"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	doc.Status = chessdto.StatusWaiting
	if got := StatusLine(catalog, doc, created); got != "Waiting for an opponent" {
		t.Fatalf("waiting: %q", got)
	}
}

func TestView(t *testing.T) {
	doc := &chessdto.GameSession{Turn: chessdto.SideWhite, MoveHistory: []string{"e4", "e5", "Nf3"}, Status: chessdto.StatusInProgress}
	v := View(msgcat.Default(), doc, time.Now())
	if v.Moves != "1. e4 e5 2. Nf3" || v.Session != doc || v.Status == "" {
		t.Fatalf("unexpected view: %+v", v)
	}
}
