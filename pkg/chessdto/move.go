package chessdto

// MoveSummary describes one committed move.
type MoveSummary struct {
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	Actor     Side   `json:"actor"`
	Position  string `json:"position"`
	Turn      Side   `json:"turn"`
	Check     bool   `json:"check"`
	Fallback  bool   `json:"fallback,omitempty"`
	Finished  bool   `json:"finished"`
	Outcome   string `json:"outcome,omitempty"`
	Method    string `json:"method,omitempty"`
	MoveCount int    `json:"moveCount"`
}

// Analysis is the post-game coaching summary.
type Analysis struct {
	Strengths         string `json:"strengths"`
	Weaknesses        string `json:"weaknesses"`
	OverallAssessment string `json:"overallAssessment"`
}

// MoveFeedback is the learning-mode verdict on an attempted move.
type MoveFeedback struct {
	IsLegalMove bool   `json:"isLegalMove"`
	Feedback    string `json:"feedback"`
}
