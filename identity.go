// Package cursorcache resolves cursor identities into displayable previews.
//
// The root package holds the shared vocabulary: descriptors and the cache
// keys derived from them, inline image data URLs, and decoded animation frame
// sets. Resolution, caching and playback live in the preview, registry and
// playback packages.
package cursorcache

import (
	"path/filepath"
	"strings"
)

// SystemKeyPrefix marks keys that refer to built-in system cursors rather than
// files. Descriptors carrying a file path never produce a key with this prefix.
const SystemKeyPrefix = "system:"

// escapedFilePrefix is prepended to file paths that would otherwise read as
// a system key or as an already escaped path.
const escapedFilePrefix = "file:"

// Key identifies a cursor resource in the preview caches. Keys are
// case-sensitive and stable for the lifetime of the referenced resource.
type Key string

// String returns the key as a plain string.
func (k Key) String() string {
	return string(k)
}

// IsSystem reports whether the key refers to a built-in system cursor.
func (k Key) IsSystem() bool {
	return strings.HasPrefix(string(k), SystemKeyPrefix)
}

// SystemName returns the logical cursor name of a system key, or "" for a
// file key.
func (k Key) SystemName() string {
	name, ok := strings.CutPrefix(string(k), SystemKeyPrefix)
	if !ok {
		return ""
	}
	return name
}

// Descriptor references a cursor either by file path or, for built-in cursors
// without a file, by logical system name. FilePath takes precedence when both
// are set.
type Descriptor struct {
	FilePath   string `json:"path,omitempty" yaml:"path,omitempty"`
	SystemName string `json:"system,omitempty" yaml:"system,omitempty"`
}

// FileCursor returns a descriptor for a cursor file on disk.
func FileCursor(path string) Descriptor {
	return Descriptor{FilePath: path}
}

// SystemCursor returns a descriptor for a built-in system cursor.
func SystemCursor(name string) Descriptor {
	return Descriptor{SystemName: name}
}

// IsZero reports whether the descriptor references nothing.
func (d Descriptor) IsZero() bool {
	return d.FilePath == "" && d.SystemName == ""
}

// IsSystem reports whether the descriptor resolves through the system cursor
// path (no file path present).
func (d Descriptor) IsSystem() bool {
	return d.FilePath == "" && d.SystemName != ""
}

// IsAnimated reports whether the descriptor is routed to the animated
// pipeline. Routing is by file extension only; system cursors are always
// static.
func (d Descriptor) IsAnimated() bool {
	return d.FilePath != "" && IsAnimatedPath(d.FilePath)
}

// KeyFor derives the cache key for a descriptor. It is pure: the same
// descriptor always yields the same key. A file key is the path itself
// unless the path starts with "system:" or "file:", in which case it gains
// a "file:" prefix. No file key can equal a system key.
func KeyFor(d Descriptor) Key {
	if d.FilePath != "" {
		if strings.HasPrefix(d.FilePath, SystemKeyPrefix) || strings.HasPrefix(d.FilePath, escapedFilePrefix) {
			return Key(escapedFilePrefix + d.FilePath)
		}
		return Key(d.FilePath)
	}
	return Key(SystemKeyPrefix + d.SystemName)
}

// IsAnimatedPath reports whether path names an animated cursor (.ani).
func IsAnimatedPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ani")
}
