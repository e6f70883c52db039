package preview

import (
	"context"
	"log/slog"
	"sync"

	cursorcache "github.com/wolfeidau/cursor-cache"
	"github.com/wolfeidau/cursor-cache/playback"
)

// Status is the display status of a Card.
type Status int

const (
	// Loading means the preview is being resolved.
	Loading Status = iota
	// Ready means Image (and Frames for animated cursors) can be shown.
	Ready
	// Placeholder means resolution failed and a generic icon should be shown.
	Placeholder
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Placeholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// CardState is what a Card publishes to its owner.
type CardState struct {
	Key        cursorcache.Key
	Status     Status
	Image      cursorcache.DataURL
	Frames     *cursorcache.FrameSet
	FrameIndex int
	Err        error
}

// CardOption configures a Card.
type CardOption func(*Card)

// WithLoopOptions configures the playback loop of animated cards.
func WithLoopOptions(opts ...playback.LoopOption) CardOption {
	return func(c *Card) {
		c.loopOpts = append(c.loopOpts, opts...)
	}
}

// WithCardLogger sets the logger for the card.
func WithCardLogger(logger *slog.Logger) CardOption {
	return func(c *Card) {
		c.logger = logger
	}
}

// Card is one mounted preview of a descriptor. It resolves through the
// shared Resolver, publishes state changes through onUpdate, and plays
// animated cursors while mounted.
//
// onUpdate is called with the card's lock held, so it must not call back
// into the Card. Once Unmount returns onUpdate is never called again.
type Card struct {
	resolver *Resolver
	desc     cursorcache.Descriptor
	key      cursorcache.Key
	onUpdate func(CardState)
	loopOpts []playback.LoopOption
	logger   *slog.Logger

	mu      sync.Mutex
	mounted bool
	cancel  context.CancelFunc
	loop    *playback.Loop
	state   CardState
}

// NewCard creates an unmounted Card for desc.
func NewCard(resolver *Resolver, desc cursorcache.Descriptor, onUpdate func(CardState), opts ...CardOption) *Card {
	key := cursorcache.KeyFor(desc)
	c := &Card{
		resolver: resolver,
		desc:     desc,
		key:      key,
		onUpdate: onUpdate,
		logger:   slog.Default(),
		state:    CardState{Key: key, Status: Loading},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "card", "key", key)
	return c
}

// Key returns the cache key of the card's descriptor.
func (c *Card) Key() cursorcache.Key {
	return c.key
}

// Descriptor returns the descriptor the card previews.
func (c *Card) Descriptor() cursorcache.Descriptor {
	return c.desc
}

// State returns the last published state.
func (c *Card) State() CardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mount starts showing the preview. A cached preview is published before
// Mount returns; otherwise a Loading state is published and resolution
// continues in the background. Mounting a mounted card does nothing.
func (c *Card) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	key := c.key.String()
	if c.resolver.IsAnimated(c.desc) {
		if fs, ok := c.resolver.Animated().Get(key); ok {
			c.showFrames(fs)
			return
		}
	} else if url, ok := c.resolver.Static().Get(key); ok {
		c.publish(CardState{Key: c.key, Status: Ready, Image: url})
		return
	}

	c.publish(CardState{Key: c.key, Status: Loading})
	go c.resolve(ctx)
}

// Unmount stops playback and detaches the card from any in-flight
// resolution. The resolution itself keeps running and fills the shared cache.
func (c *Card) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	cancel := c.cancel
	loop := c.loop
	c.cancel = nil
	c.loop = nil
	c.mu.Unlock()

	cancel()
	if loop != nil {
		loop.Stop()
	}
}

// Pause freezes an animated card on its current frame.
func (c *Card) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop != nil {
		c.loop.Pause()
	}
}

// Resume continues a paused animated card.
func (c *Card) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop != nil {
		c.loop.Resume()
	}
}

func (c *Card) resolve(ctx context.Context) {
	key := c.key.String()

	if c.resolver.IsAnimated(c.desc) {
		fs, err := c.resolver.ResolveAnimated(ctx, c.desc.FilePath)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.publish(CardState{Key: c.key, Status: Placeholder, Err: err})
			return
		}
		// Prefer the registry's copy so every card shows the same object.
		if cached, ok := c.resolver.Animated().Get(key); ok {
			fs = cached
		}
		c.showFrames(fs)
		return
	}

	url, err := c.resolver.ResolveStatic(ctx, c.desc)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.publish(CardState{Key: c.key, Status: Placeholder, Err: err})
		return
	}
	if cached, ok := c.resolver.Static().Get(key); ok {
		url = cached
	}
	c.publish(CardState{Key: c.key, Status: Ready, Image: url})
}

// showFrames publishes the first frame and, for multi-frame sets, starts
// the playback loop.
func (c *Card) showFrames(fs *cursorcache.FrameSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	if fs.Len() == 0 {
		c.setLocked(CardState{Key: c.key, Status: Placeholder, Err: cursorcache.ErrEmptyAnimation})
		return
	}

	c.setLocked(CardState{
		Key:    c.key,
		Status: Ready,
		Image:  fs.Frames[0].Image,
		Frames: fs,
	})

	if fs.Static() || c.loop != nil {
		return
	}
	loop := playback.NewLoop(append([]playback.LoopOption{playback.WithLoopLogger(c.logger)}, c.loopOpts...)...)
	loop.SetFrames(fs)
	c.loop = loop
	loop.Start(c.onFrame)
}

func (c *Card) onFrame(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || c.state.Frames == nil || index >= c.state.Frames.Len() {
		return
	}

	state := c.state
	state.FrameIndex = index
	state.Image = state.Frames.Frames[index].Image
	c.setLocked(state)
}

func (c *Card) publish(state CardState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	c.setLocked(state)
}

func (c *Card) setLocked(state CardState) {
	c.state = state
	if c.onUpdate != nil {
		c.onUpdate(state)
	}
}
