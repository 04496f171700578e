package chesspresenter

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/match"
	"github.com/park285/chess-duet/pkg/chessdto"
)

// Presenter delivers formatted session events without coupling to the transport.
type Presenter struct {
	send      func(room string, view chessdto.EventView) error
	formatter *Formatter
	logger    *zap.Logger
}

func NewPresenter(send func(room string, view chessdto.EventView) error, formatter *Formatter, logger *zap.Logger) *Presenter {
	if formatter == nil {
		formatter = NewFormatter(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{send: send, formatter: formatter, logger: logger}
}

func (p *Presenter) Notify(room string, ev match.Event) error {
	if p == nil || p.send == nil {
		return nil
	}
	return p.send(room, ToEventView(ev, p.formatter.Event(ev)))
}

// Run forwards events to room until the channel closes or ctx ends. Delivery
// failures are logged and do not stop the pump.
func (p *Presenter) Run(ctx context.Context, room string, events <-chan match.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.Notify(room, ev); err != nil {
				p.logger.Warn("presenter_send_error", zap.String("room", room), zap.String("kind", string(ev.Kind)), zap.Error(err))
			}
		}
	}
}
