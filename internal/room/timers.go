package room

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// One-shot timers that re-enter the actor loop as messages. Each arm bumps
// the generation, so a fire whose phase was reset in the meantime carries a
// stale generation and gets dropped by the loop.

func (r *Room) armCountdown() {
	r.countdownGen++
	r.fireAfter(countdownDelay, countdownDone{gen: r.countdownGen})
}

func (r *Room) armRoundTimer() {
	r.roundGen++
	d := time.Duration(r.state.TimerDuration) * time.Second
	r.fireAfter(d, roundExpired{gen: r.roundGen})
}

func (r *Room) fireAfter(d time.Duration, msg Msg) {
	t := r.clock.NewTimer(d)
	go func(t clockwork.Timer) {
		select {
		case <-t.Chan():
			select {
			case r.inbox <- msg:
			case <-r.ctx.Done():
			}
		case <-r.ctx.Done():
			t.Stop()
		}
	}(t)
}
