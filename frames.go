package cursorcache

import "time"

// DefaultFrameDelay is used for frames whose stored delay is zero or missing.
const DefaultFrameDelay = 100 * time.Millisecond

// Frame is one decoded step of an animated cursor.
type Frame struct {
	Image DataURL
	Delay time.Duration
}

// FrameSet is a decoded animated cursor: frames in display order, each with
// its own delay. FrameSets are shared by pointer and must not be mutated once
// published to a cache; a new decode produces a new FrameSet, and playback
// treats a different pointer as a different animation.
type FrameSet struct {
	Frames []Frame
}

// NewFrameSet builds a FrameSet from index-aligned images and delays. Missing
// delays are left zero and resolve to DefaultFrameDelay at playback time.
func NewFrameSet(images []DataURL, delays []time.Duration) *FrameSet {
	fs := &FrameSet{Frames: make([]Frame, len(images))}
	for i, img := range images {
		fs.Frames[i].Image = img
		if i < len(delays) {
			fs.Frames[i].Delay = delays[i]
		}
	}
	return fs
}

// Len returns the number of frames. A nil FrameSet has none.
func (fs *FrameSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Frames)
}

// Static reports whether the set needs no scheduling (zero or one frame).
func (fs *FrameSet) Static() bool {
	return fs.Len() <= 1
}

// DelayAt returns the effective display time of frame i.
func (fs *FrameSet) DelayAt(i int) time.Duration {
	if i < 0 || i >= fs.Len() || fs.Frames[i].Delay <= 0 {
		return DefaultFrameDelay
	}
	return fs.Frames[i].Delay
}

// Duration returns the length of one full loop.
func (fs *FrameSet) Duration() time.Duration {
	var total time.Duration
	for i := range fs.Len() {
		total += fs.DelayAt(i)
	}
	return total
}

// Size returns the summed encoded size of all frame images.
func (fs *FrameSet) Size() int64 {
	var n int64
	for i := range fs.Len() {
		n += fs.Frames[i].Image.Size()
	}
	return n
}

// PlaybackState is the scheduling state of one animated preview.
type PlaybackState struct {
	Index       int
	Accumulated time.Duration
	Paused      bool
}
