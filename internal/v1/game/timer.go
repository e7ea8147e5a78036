package game

import "time"

// tickInterval is one wall-clock second in production; tests that drive a
// full countdown shorten it.
var tickInterval = time.Second

func newSecondTicker() *time.Ticker {
	return time.NewTicker(tickInterval)
}

// timerArmed reports whether the current time limit calls for a real
// countdown. A nil limit or one at/above the sentinel means untimed
// rounds that end only by all-submitted or end_round_early.
func (r *Room) timerArmed() bool {
	return r.TimeLimitSeconds != nil &&
		*r.TimeLimitSeconds > 0 &&
		*r.TimeLimitSeconds < NoTimerSentinel
}

// startTimerLocked arms the round countdown. Bumping the generation first
// guarantees at most one live countdown per room: any older goroutine or
// grace callback sees a stale generation and exits.
func (r *Room) startTimerLocked() {
	r.timerGen++
	if !r.timerArmed() {
		r.timeRemaining = 0
		return
	}
	r.timeRemaining = *r.TimeLimitSeconds
	r.broadcast(EventTimerUpdate, TimerUpdatePayload{TimeRemaining: r.timeRemaining})
	go r.runCountdown(r.timerGen)
}

// stopTimerLocked cancels the countdown without firing it.
func (r *Room) stopTimerLocked() {
	r.timerGen++
	r.timeRemaining = 0
}

// runCountdown ticks once per second until expiry or invalidation. On
// expiry it broadcasts time_up and schedules the grace-window finalize.
func (r *Room) runCountdown(gen int) {
	ticker := newSecondTicker()
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		if gen != r.timerGen {
			r.mu.Unlock()
			return
		}
		r.timeRemaining--
		if r.timeRemaining > 0 {
			r.broadcast(EventTimerUpdate, TimerUpdatePayload{TimeRemaining: r.timeRemaining})
			r.mu.Unlock()
			continue
		}

		r.timerGen++
		r.timeRemaining = 0
		r.broadcast(EventTimerUpdate, TimerUpdatePayload{TimeRemaining: 0})
		r.broadcast(EventTimeUp, RoomOnlyPayload{Code: string(r.Code)})
		r.beginGraceLocked()
		r.mu.Unlock()
		return
	}
}
