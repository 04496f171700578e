package presenter

import (
	"fmt"
	"strings"
	"time"
)

// MovePair is one numbered full move.
type MovePair struct {
	Number int    `json:"number"`
	White  string `json:"white"`
	Black  string `json:"black,omitempty"`
}

func MovePairs(history []string) []MovePair {
	pairs := make([]MovePair, 0, (len(history)+1)/2)
	for i := 0; i < len(history); i += 2 {
		p := MovePair{Number: i/2 + 1, White: strings.TrimSpace(history[i])}
		if i+1 < len(history) {
			p.Black = strings.TrimSpace(history[i+1])
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// NumberedMoves renders history as "1. e4 e5 2. Nf3".
func NumberedMoves(history []string) string {
	var sb strings.Builder
	for i, p := range MovePairs(history) {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprintf("%d. %s", p.Number, p.White))
		if p.Black != "" {
			sb.WriteString(" " + p.Black)
		}
	}
	return sb.String()
}

func formatRecentMoves(moves []string) string {
	if len(moves) == 0 {
		return "-"
	}
	const limit = 4
	if len(moves) <= limit {
		return strings.Join(moves, " ")
	}
	return "… " + strings.Join(moves[len(moves)-limit:], " ")
}

// FormatTotalTime renders elapsed play time as "Xd Yh Zm", "Xh Ym Zs" or "M:SS".
func FormatTotalTime(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	days := secs / 86400
	hours := secs % 86400 / 3600
	minutes := secs % 3600 / 60
	s := secs % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, s)
	default:
		return fmt.Sprintf("%d:%02d", minutes, s)
	}
}
