package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wolfeidau/cursor-cache/playback"
	"github.com/wolfeidau/cursor-cache/preview"
)

// refreshMsg is the program's display refresh; it drives every playing card.
type refreshMsg time.Time

// cardsUpdatedMsg carries the latest state of each card that changed since
// the previous message, keyed by grid index.
type cardsUpdatedMsg map[int]preview.CardState

// updateSink collects card states published from card goroutines. put never
// blocks, so a card holding its own lock cannot stall the event loop.
type updateSink struct {
	mu      sync.Mutex
	pending map[int]preview.CardState
	signal  chan struct{}
}

func newUpdateSink() *updateSink {
	return &updateSink{
		pending: make(map[int]preview.CardState),
		signal:  make(chan struct{}, 1),
	}
}

func (s *updateSink) put(index int, state preview.CardState) {
	s.mu.Lock()
	s.pending[index] = state
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// drain returns and clears the pending states. Later states for the same
// card replace earlier ones.
func (s *updateSink) drain() map[int]preview.CardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	out := s.pending
	s.pending = make(map[int]preview.CardState)
	return out
}

// listen waits for the next batch of card states.
func (s *updateSink) listen(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case <-done:
				return nil
			case <-s.signal:
				if states := s.drain(); states != nil {
					return cardsUpdatedMsg(states)
				}
			}
		}
	}
}

// refreshHub fans the program's refresh ticks out to card playback loops.
type refreshHub struct {
	mu   sync.Mutex
	subs map[*hubRefresher]struct{}
}

func newRefreshHub() *refreshHub {
	return &refreshHub{subs: make(map[*hubRefresher]struct{})}
}

// Refresher subscribes a new playback loop to the hub.
func (h *refreshHub) Refresher() playback.Refresher {
	r := &hubRefresher{hub: h, ch: make(chan time.Time, 1)}
	h.mu.Lock()
	h.subs[r] = struct{}{}
	h.mu.Unlock()
	return r
}

// broadcast delivers now to every subscriber. A subscriber still busy with
// the previous tick misses this one; playback measures elapsed wall time so
// a dropped tick only delays the frame change.
func (h *refreshHub) broadcast(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for r := range h.subs {
		select {
		case r.ch <- now:
		default:
		}
	}
}

func (h *refreshHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type hubRefresher struct {
	hub *refreshHub
	ch  chan time.Time
}

func (r *hubRefresher) C() <-chan time.Time { return r.ch }

func (r *hubRefresher) Stop() {
	r.hub.mu.Lock()
	delete(r.hub.subs, r)
	r.hub.mu.Unlock()
}
