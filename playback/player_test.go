package playback

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	cursorcache "github.com/wolfeidau/cursor-cache"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func threeFrames() *cursorcache.FrameSet {
	return cursorcache.NewFrameSet(
		[]cursorcache.DataURL{"data:image/png;base64,AA==", "data:image/png;base64,AQ==", "data:image/png;base64,Ag=="},
		[]time.Duration{100 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond},
	)
}

// referenceIndex is the frame a perfect accumulator shows after elapsed.
func referenceIndex(fs *cursorcache.FrameSet, elapsed time.Duration) int {
	elapsed %= fs.Duration()
	for i := range fs.Len() {
		if elapsed < fs.DelayAt(i) {
			return i
		}
		elapsed -= fs.DelayAt(i)
	}
	return 0
}

func TestPlayer_StateTransitions(t *testing.T) {
	p := NewPlayer()
	require.Equal(t, Idle, p.State())

	single := cursorcache.NewFrameSet([]cursorcache.DataURL{"data:image/png;base64,AA=="}, nil)
	p.SetFrames(single)
	require.Equal(t, Idle, p.State(), "a single frame never plays")

	p.SetFrames(threeFrames())
	require.Equal(t, Playing, p.State())

	p.Pause()
	require.Equal(t, Paused, p.State())
	require.True(t, p.Snapshot().Paused)

	p.Resume()
	require.Equal(t, Playing, p.State())

	require.Equal(t, "paused", Paused.String())
}

func TestPlayer_FirstTickContributesNothing(t *testing.T) {
	p := NewPlayer()
	p.SetFrames(threeFrames())

	idx, changed := p.Tick(epoch.Add(time.Hour))
	require.Equal(t, 0, idx)
	require.False(t, changed)
	require.Zero(t, p.Snapshot().Accumulated)
}

func TestPlayer_TimingMatchesReference(t *testing.T) {
	for _, step := range []time.Duration{time.Millisecond, 10 * time.Millisecond, 25 * time.Millisecond, 50 * time.Millisecond} {
		t.Run(step.String(), func(t *testing.T) {
			fs := threeFrames()
			p := NewPlayer()
			p.SetFrames(fs)
			p.Tick(epoch)

			for elapsed := step; elapsed <= 700*time.Millisecond; elapsed += step {
				idx, _ := p.Tick(epoch.Add(elapsed))
				require.Equal(t, referenceIndex(fs, elapsed), idx, "at %v", elapsed)
			}
		})
	}
}

func TestPlayer_DropsRemainderByDefault(t *testing.T) {
	p := NewPlayer()
	p.SetFrames(threeFrames())
	p.Tick(epoch)

	// 130ms overshoots frame 0 by 30ms; the overshoot is dropped.
	idx, changed := p.Tick(epoch.Add(130 * time.Millisecond))
	require.True(t, changed)
	require.Equal(t, 1, idx)
	require.Zero(t, p.Snapshot().Accumulated)

	// Even a huge gap advances at most one frame per tick.
	idx, _ = p.Tick(epoch.Add(10 * time.Second))
	require.Equal(t, 2, idx)
}

func TestPlayer_CarryRemainder(t *testing.T) {
	fs := threeFrames()
	p := NewPlayer(WithCarryRemainder(true))
	p.SetFrames(fs)
	p.Tick(epoch)

	idx, changed := p.Tick(epoch.Add(130 * time.Millisecond))
	require.True(t, changed)
	require.Equal(t, 1, idx)
	require.Equal(t, 30*time.Millisecond, p.Snapshot().Accumulated)

	idx, _ = p.Tick(epoch.Add(160 * time.Millisecond))
	require.Equal(t, 2, idx, "carried 30ms plus 30ms passes the 50ms frame")
	require.Equal(t, 10*time.Millisecond, p.Snapshot().Accumulated)
}

func TestPlayer_CarryRemainderIrregularTicks(t *testing.T) {
	fs := threeFrames()
	p := NewPlayer(WithCarryRemainder(true))
	p.SetFrames(fs)
	p.Tick(epoch)

	rng := rand.New(rand.NewPCG(1, 2))
	var elapsed time.Duration
	for elapsed < 5*time.Second {
		elapsed += time.Duration(1+rng.IntN(400)) * time.Millisecond
		idx, _ := p.Tick(epoch.Add(elapsed))
		require.Equal(t, referenceIndex(fs, elapsed), idx, "at %v", elapsed)
	}
}

func TestPlayer_SetFramesIdentity(t *testing.T) {
	fs := threeFrames()
	p := NewPlayer()

	require.True(t, p.SetFrames(fs))
	p.Tick(epoch)
	p.Tick(epoch.Add(100 * time.Millisecond))
	require.Equal(t, 1, p.Snapshot().Index)

	require.False(t, p.SetFrames(fs), "same object keeps position")
	require.Equal(t, 1, p.Snapshot().Index)

	// An equal but distinct FrameSet is a new animation.
	require.True(t, p.SetFrames(threeFrames()))
	require.Equal(t, cursorcache.PlaybackState{}, p.Snapshot())

	_, changed := p.Tick(epoch.Add(time.Hour))
	require.False(t, changed, "first tick after reset only records the time")
}

func TestPlayer_PauseExcludesPausedTime(t *testing.T) {
	p := NewPlayer()
	p.SetFrames(threeFrames())
	p.Tick(epoch)
	p.Tick(epoch.Add(60 * time.Millisecond))

	p.Pause()
	idx, changed := p.Tick(epoch.Add(500 * time.Millisecond))
	require.Equal(t, 0, idx)
	require.False(t, changed)

	p.Resume()
	_, changed = p.Tick(epoch.Add(10 * time.Second))
	require.False(t, changed)
	require.Equal(t, 60*time.Millisecond, p.Snapshot().Accumulated)

	idx, changed = p.Tick(epoch.Add(10*time.Second + 40*time.Millisecond))
	require.True(t, changed)
	require.Equal(t, 1, idx)
}

func TestPlayer_DefaultDelayForZero(t *testing.T) {
	fs := cursorcache.NewFrameSet([]cursorcache.DataURL{"data:,a", "data:,b"}, []time.Duration{0})
	p := NewPlayer()
	p.SetFrames(fs)
	p.Tick(epoch)

	idx, _ := p.Tick(epoch.Add(99 * time.Millisecond))
	require.Equal(t, 0, idx)
	idx, _ = p.Tick(epoch.Add(100 * time.Millisecond))
	require.Equal(t, 1, idx)

	frame, ok := p.Frame()
	require.True(t, ok)
	require.Equal(t, cursorcache.DataURL("data:,b"), frame.Image)
}

func TestPlayer_NilFrames(t *testing.T) {
	p := NewPlayer()
	idx, changed := p.Tick(epoch)
	require.Zero(t, idx)
	require.False(t, changed)

	_, ok := p.Frame()
	require.False(t, ok)
}
