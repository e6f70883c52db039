// Package playback schedules animated cursor frames using a delta-time
// accumulator. A Player holds the pure scheduling state; a Loop drives a
// Player from a display refresh signal.
package playback

import (
	"time"

	cursorcache "github.com/wolfeidau/cursor-cache"
)

// State is the lifecycle state of a Player.
type State int

const (
	// Idle means there is nothing to animate: no frames or a single frame.
	Idle State = iota
	// Playing means ticks advance the animation.
	Playing
	// Paused means ticks are ignored until Resume.
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Option configures a Player.
type Option func(*Player)

// WithCarryRemainder makes frame advancement subtract the consumed delay
// instead of resetting the accumulator, so time beyond a frame boundary
// counts toward the next frame. The default drops the remainder.
func WithCarryRemainder(carry bool) Option {
	return func(p *Player) {
		p.carry = carry
	}
}

// Player tracks which frame of a FrameSet is showing. It is not safe for
// concurrent use; Loop serialises access.
type Player struct {
	frames *cursorcache.FrameSet
	carry  bool

	index   int
	acc     time.Duration
	last    time.Time
	hasLast bool
	paused  bool
}

// NewPlayer creates an idle Player.
func NewPlayer(opts ...Option) *Player {
	p := &Player{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetFrames switches the Player to fs. A FrameSet that is a different
// object resets playback to the first frame; the same object is a no-op.
// It reports whether playback was reset.
func (p *Player) SetFrames(fs *cursorcache.FrameSet) bool {
	if fs == p.frames {
		return false
	}
	p.frames = fs
	p.index = 0
	p.acc = 0
	p.hasLast = false
	return true
}

// Frames returns the current FrameSet, which may be nil.
func (p *Player) Frames() *cursorcache.FrameSet {
	return p.frames
}

// Tick advances playback to now and returns the current frame index and
// whether it changed. The first tick after a reset or resume only records
// the time.
func (p *Player) Tick(now time.Time) (int, bool) {
	if p.State() != Playing {
		return p.index, false
	}

	if !p.hasLast {
		p.last = now
		p.hasLast = true
		return p.index, false
	}

	elapsed := now.Sub(p.last)
	p.last = now
	if elapsed <= 0 {
		return p.index, false
	}
	p.acc += elapsed

	prev := p.index
	n := p.frames.Len()

	if p.carry {
		// Whole loops are skipped in one step so a long stall cannot spin.
		if loop := p.frames.Duration(); p.acc >= loop {
			p.acc %= loop
		}
		for p.acc >= p.frames.DelayAt(p.index) {
			p.acc -= p.frames.DelayAt(p.index)
			p.index = (p.index + 1) % n
		}
	} else if p.acc >= p.frames.DelayAt(p.index) {
		p.acc = 0
		p.index = (p.index + 1) % n
	}

	return p.index, p.index != prev
}

// Pause stops ticks from advancing playback.
func (p *Player) Pause() {
	p.paused = true
}

// Resume continues playback. The paused interval does not count toward the
// current frame.
func (p *Player) Resume() {
	p.paused = false
	p.hasLast = false
}

// State returns the lifecycle state.
func (p *Player) State() State {
	switch {
	case p.frames.Static():
		return Idle
	case p.paused:
		return Paused
	default:
		return Playing
	}
}

// Snapshot returns a copy of the scheduling state.
func (p *Player) Snapshot() cursorcache.PlaybackState {
	return cursorcache.PlaybackState{
		Index:       p.index,
		Accumulated: p.acc,
		Paused:      p.paused,
	}
}

// Frame returns the frame currently showing.
func (p *Player) Frame() (cursorcache.Frame, bool) {
	if p.frames.Len() == 0 {
		return cursorcache.Frame{}, false
	}
	return p.frames.Frames[p.index], true
}
