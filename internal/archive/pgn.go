package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/chess-duet/pkg/chessdto"
)

func normalizeResult(outcome string) string {
	switch strings.TrimSpace(outcome) {
	case "1-0", "0-1", "1/2-1/2":
		return strings.TrimSpace(outcome)
	default:
		return "*"
	}
}

// BuildPGN renders the session as a PGN game with SAN movetext.
func BuildPGN(doc *chessdto.GameSession) string {
	if doc == nil {
		return ""
	}
	result := normalizeResult(doc.Outcome)
	var b strings.Builder
	date := doc.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Duet " + string(doc.Mode) + "\"]\n")
	b.WriteString("[Site \"chess-duet\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(orUnknown(doc.Participants.Player1ID))))
	black := doc.Participants.Player2ID
	if doc.Mode == chessdto.ModeAI {
		black = "AI (" + string(chessdto.ParseDifficulty(string(doc.Difficulty))) + ")"
	}
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(orUnknown(black))))
	if start := doc.Start(); start != chessdto.StandardStart {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(start)))
	}
	if m := strings.TrimSpace(doc.Method); m != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(m))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(doc.MoveHistory); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(doc.MoveHistory[i])))
		if i+1 < len(doc.MoveHistory) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(doc.MoveHistory[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "?"
	}
	return s
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
