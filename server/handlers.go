package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	cursorcache "github.com/wolfeidau/cursor-cache"
	"github.com/wolfeidau/cursor-cache/backend"
	"github.com/wolfeidau/cursor-cache/telemetry"
)

const maxPreloadBody = 1 << 20

// previewResponse is returned by GET /preview?format=dataurl.
type previewResponse struct {
	Key     string `json:"key"`
	DataURL string `json:"data_url"`
}

type frameResponse struct {
	Image   string `json:"image"`
	DelayMS int64  `json:"delay_ms"`
}

// animationResponse is returned by GET /animation.
type animationResponse struct {
	Key        string          `json:"key"`
	Frames     []frameResponse `json:"frames"`
	DurationMS int64           `json:"duration_ms"`
}

// preloadRequest is the body of POST /preload.
type preloadRequest struct {
	Paths  []string `json:"paths"`
	System []string `json:"system"`
	Root   string   `json:"root"`
}

type preloadResponse struct {
	Queued int `json:"queued"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleStats returns entry and pending counts for both registries.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "stats")
	writeJSON(w, http.StatusOK, s.resolver.Stats())
}

// handleSystemCursors lists the supported system cursor names.
func (s *Server) handleSystemCursors(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "system_cursors")
	writeJSON(w, http.StatusOK, backend.SystemCursorNames())
}

// handlePreview serves the static preview of a file (?path=) or system
// cursor (?system=) as PNG, or as JSON with ?format=dataurl. Animated
// cursors are served as their first frame.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "preview")

	q := r.URL.Query()
	d := cursorcache.Descriptor{FilePath: q.Get("path"), SystemName: q.Get("system")}
	if d.IsZero() {
		writeError(w, http.StatusBadRequest, "path or system parameter required")
		return
	}
	if d.FilePath != "" && !s.allowedPath(d.FilePath) {
		writeError(w, http.StatusForbidden, "path outside library")
		return
	}

	s.tagLookup(r, d)
	url, err := s.resolver.ResolvePreview(r.Context(), d)
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}

	if q.Get("format") == "dataurl" {
		writeJSON(w, http.StatusOK, previewResponse{Key: cursorcache.KeyFor(d).String(), DataURL: url.String()})
		return
	}

	mime, data, err := url.Decode()
	if err != nil {
		s.logger.Error("cached preview is not a valid data url", "key", cursorcache.KeyFor(d), "error", err)
		writeError(w, http.StatusInternalServerError, "invalid cached preview")
		return
	}

	etag := cursorcache.DigestPreview(data).ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=60")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// handleAnimation serves the frames of an animated cursor as JSON.
func (s *Server) handleAnimation(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "animation")

	path := r.URL.Query().Get("path")
	switch {
	case path == "":
		writeError(w, http.StatusBadRequest, "path parameter required")
		return
	case !cursorcache.IsAnimatedPath(path):
		writeError(w, http.StatusBadRequest, cursorcache.ErrNotAnimated.Error())
		return
	case !s.allowedPath(path):
		writeError(w, http.StatusForbidden, "path outside library")
		return
	}

	d := cursorcache.FileCursor(path)
	s.tagLookup(r, d)
	fs, err := s.resolver.ResolveAnimated(r.Context(), path)
	if err != nil {
		s.writeResolveError(w, r, err)
		return
	}

	resp := animationResponse{
		Key:        cursorcache.KeyFor(d).String(),
		Frames:     make([]frameResponse, fs.Len()),
		DurationMS: fs.Duration().Milliseconds(),
	}
	for i, f := range fs.Frames {
		resp.Frames[i] = frameResponse{Image: f.Image.String(), DelayMS: fs.DelayAt(i).Milliseconds()}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePreload queues a background preload and returns immediately.
func (s *Server) handlePreload(w http.ResponseWriter, r *http.Request) {
	telemetry.SetEndpoint(r, "preload")

	var req preloadRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPreloadBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid preload request: "+err.Error())
		return
	}

	var descs []cursorcache.Descriptor
	if req.Root != "" {
		if !s.allowedPath(req.Root) {
			writeError(w, http.StatusForbidden, "root outside library")
			return
		}
		scanned, err := cursorcache.ScanLibrary(req.Root)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		descs = append(descs, scanned...)
	}
	for _, p := range req.Paths {
		if !s.allowedPath(p) {
			writeError(w, http.StatusForbidden, "path outside library: "+p)
			return
		}
		descs = append(descs, cursorcache.FileCursor(p))
	}
	for _, name := range req.System {
		descs = append(descs, cursorcache.SystemCursor(name))
	}

	// The batch outlives the request.
	s.resolver.PreloadAsync(context.WithoutCancel(r.Context()), descs)
	writeJSON(w, http.StatusAccepted, preloadResponse{Queued: len(descs)})
}

// tagLookup records how the upcoming resolution is expected to be served.
func (s *Server) tagLookup(r *http.Request, d cursorcache.Descriptor) {
	switch {
	case s.resolver.Cached(d):
		telemetry.SetCacheResult(r, telemetry.CacheHit)
	case s.resolver.Pending(d):
		telemetry.SetCacheResult(r, telemetry.CacheShared)
	default:
		telemetry.SetCacheResult(r, telemetry.CacheMiss)
	}
}

// writeResolveError maps resolution errors onto HTTP statuses. A request
// whose client went away gets no body.
func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case r.Context().Err() != nil:
		// Client disconnected; the resolution continues for other callers.
		return
	case errors.Is(err, cursorcache.ErrInvalidDescriptor):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, backend.ErrUnknownSystemCursor):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, cursorcache.ErrNoPreview),
		errors.Is(err, cursorcache.ErrNotAnimated),
		errors.Is(err, cursorcache.ErrAnimatedCursor),
		errors.Is(err, cursorcache.ErrEmptyAnimation),
		errors.Is(err, backend.ErrUnsupportedFormat):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// etagMatches applies the weak comparison If-None-Match uses: any listed
// tag, with or without a W/ prefix, or "*".
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
