package player

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// timerTick is the resolution of inactivity timers.
var timerTick = 100 * time.Millisecond

// Inactivity configures automatic teardown. A zero duration disables that class.
type Inactivity struct {
	Idle       time.Duration // Stopped or disconnected with nothing to do
	Paused     time.Duration // Paused for too long
	EmptyQueue time.Duration // Queue ran dry and autoplay produced nothing
}

type inactivityClass int

const (
	inactivityIdle inactivityClass = iota
	inactivityPaused
	inactivityEmptyQueue
)

func (c inactivityClass) String() string {
	switch c {
	case inactivityIdle:
		return "idle"
	case inactivityPaused:
		return "paused"
	case inactivityEmptyQueue:
		return "empty_queue"
	default:
		return "unknown"
	}
}

func (i Inactivity) timeout(c inactivityClass) time.Duration {
	switch c {
	case inactivityIdle:
		return i.Idle
	case inactivityPaused:
		return i.Paused
	case inactivityEmptyQueue:
		return i.EmptyQueue
	default:
		return 0
	}
}

// armInactivityLocked replaces any pending inactivity timer with one of class c.
// Must be called with opMu held.
func (p *Player) armInactivityLocked(c inactivityClass) {
	p.cancelInactivityLocked()

	d := p.inactivity.timeout(c)
	if d <= 0 {
		return
	}
	p.inactivityGen++
	gen := p.inactivityGen
	zlog.Debug().Msgf("player: inactivity timer armed: guild=%s class=%s timeout=%v", p.guildID, c, d)
	p.inactivityCancel = startWallClockTimer(d, func() { p.expire(gen, c) })
}

// cancelInactivityLocked disarms the pending inactivity timer, if any.
// Must be called with opMu held.
func (p *Player) cancelInactivityLocked() {
	if p.inactivityCancel != nil {
		p.inactivityCancel()
		p.inactivityCancel = nil
	}
	p.inactivityGen++
}

func (p *Player) expire(gen uint64, c inactivityClass) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if gen != p.inactivityGen || p.State() == StateDestroyed {
		return
	}
	p.inactivityCancel = nil
	zlog.Info().Msgf("player: inactivity timeout: guild=%s class=%s", p.guildID, c)

	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	p.destroyLocked(ctx)
}

// startWallClockTimer calls callback once duration has elapsed on the wall clock.
// Returns a cancel function.
func startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(timerTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
