package cursorcache

import "errors"

var (
	// ErrNoPreview is returned when every strategy for rendering a static
	// preview failed. The individual causes are joined onto it.
	ErrNoPreview = errors.New("no preview available")

	// ErrEmptyAnimation is returned when an animated cursor decoded to zero
	// frames.
	ErrEmptyAnimation = errors.New("animated cursor has no frames")

	// ErrNotAnimated is returned when an animated resolution is requested for
	// a descriptor that is routed to the static pipeline.
	ErrNotAnimated = errors.New("not an animated cursor")

	// ErrAnimatedCursor is returned when a static resolution is requested for
	// a descriptor that is routed to the animated pipeline.
	ErrAnimatedCursor = errors.New("animated cursor has no static preview")

	// ErrInvalidDescriptor is returned for descriptors that reference nothing.
	ErrInvalidDescriptor = errors.New("descriptor has neither file path nor system name")
)
