package match

import (
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// Verdict is what the detector concluded about one document.
type Verdict struct {
	Over    bool
	Outcome string
	Method  string
	// Terminal is set only on the first observation of a finished game.
	Terminal bool
	// CheckSide is the side that just came under check; empty when no new check.
	CheckSide chessdto.Side
	Err       error
}

// Detector turns oracle status into one-shot terminal and edge-triggered check notices.
type Detector struct {
	oracle    rules.Oracle
	terminal  bool
	checkSide chessdto.Side
}

func NewDetector(oracle rules.Oracle) *Detector { return &Detector{oracle: oracle} }

// Seed records doc as already observed so that no notices fire for it.
func (d *Detector) Seed(doc *chessdto.GameSession) {
	d.Reset()
	if doc.Status == chessdto.StatusComplete {
		d.terminal = true
		return
	}
	if st, err := d.oracle.Status(doc.Position); err == nil {
		if st.GameOver {
			// let the first Observe complete the session
			return
		}
		if st.Check {
			d.checkSide = doc.Turn
		}
	}
}

func (d *Detector) Reset() {
	d.terminal = false
	d.checkSide = ""
}

func (d *Detector) Fired() bool { return d.terminal }

func (d *Detector) Observe(doc *chessdto.GameSession) Verdict {
	st, err := d.oracle.Evaluate(doc.Start(), doc.MoveHistory)
	if err != nil {
		// history the oracle cannot replay; judge the position alone
		st, err = d.oracle.Status(doc.Position)
		if err != nil {
			return Verdict{Err: err}
		}
	}

	var v Verdict
	switch {
	case st.GameOver:
		v.Over, v.Outcome, v.Method = true, st.Outcome, st.Method
	case doc.Status == chessdto.StatusComplete:
		v.Over, v.Outcome, v.Method = true, doc.Outcome, doc.Method
	}
	if v.Over {
		if !d.terminal {
			d.terminal = true
			v.Terminal = true
		}
		d.checkSide = ""
		return v
	}

	if !st.Check {
		d.checkSide = ""
		return v
	}
	if d.checkSide != doc.Turn {
		v.CheckSide = doc.Turn
	}
	d.checkSide = doc.Turn
	return v
}
