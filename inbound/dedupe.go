package inbound

import (
	"context"
	"strings"
	"sync"
	"time"
)

type DedupeMode string

const (
	DedupeModeNone     DedupeMode = "none"
	DedupeModeCoalesce DedupeMode = "coalesce"
)

// DedupeDecision reports whether a request should be processed. Suppressed
// requests are acknowledged but not handled; providers redeliver on an
// at-least-once contract, so dropping a duplicate inside the window is
// safe for idempotent consumers.
type DedupeDecision struct {
	Allow    bool
	Metadata map[string]any
}

type Deduper interface {
	Allow(ctx context.Context, req Request) (DedupeDecision, error)
}

// DedupeKeyExtractor derives the identity of a request for duplicate
// detection. Returning false opts the request out of deduplication.
type DedupeKeyExtractor func(req Request) (string, bool)

// DefaultDedupeKeyExtractor keys on the provider's delivery id header,
// scoped by source so ids from different providers never collide.
func DefaultDedupeKeyExtractor(req Request) (string, bool) {
	id := headerValue(req.Headers, "X-Delivery-Id")
	if id == "" {
		id = headerValue(req.Headers, "Idempotency-Key")
	}
	if id == "" {
		if raw, ok := req.Metadata["delivery_id"].(string); ok {
			id = strings.TrimSpace(raw)
		}
	}
	if id == "" {
		return "", false
	}
	return normalizeSource(req.Source) + "::" + id, true
}

type DedupeOptions struct {
	Mode       DedupeMode
	Window     time.Duration
	MaxEntries int
	ExtractKey DedupeKeyExtractor
	Now        func() time.Time
}

// WindowDeduper suppresses redeliveries of the same webhook seen within a
// sliding window. Entries are evicted lazily; MaxEntries bounds memory
// when providers never repeat ids.
type WindowDeduper struct {
	mode       DedupeMode
	window     time.Duration
	maxEntries int
	extractKey DedupeKeyExtractor
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewWindowDeduper(opts DedupeOptions) *WindowDeduper {
	mode := opts.Mode
	if mode != DedupeModeNone && mode != DedupeModeCoalesce {
		mode = DedupeModeCoalesce
	}
	window := opts.Window
	if window <= 0 {
		window = 2 * time.Second
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	extractKey := opts.ExtractKey
	if extractKey == nil {
		extractKey = DefaultDedupeKeyExtractor
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &WindowDeduper{
		mode:       mode,
		window:     window,
		maxEntries: maxEntries,
		extractKey: extractKey,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

func (d *WindowDeduper) Allow(_ context.Context, req Request) (DedupeDecision, error) {
	if d == nil || d.mode == DedupeModeNone {
		return DedupeDecision{Allow: true}, nil
	}
	key, ok := d.extractKey(req)
	if !ok {
		return DedupeDecision{Allow: true}, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return DedupeDecision{Allow: true}, nil
	}

	now := d.now().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()

	lastSeen, exists := d.entries[key]
	d.entries[key] = now
	d.cleanup(now)
	if !exists || now.Sub(lastSeen) >= d.window {
		return DedupeDecision{Allow: true}, nil
	}

	return DedupeDecision{
		Allow: false,
		Metadata: map[string]any{
			"deduplicated":     true,
			"dedupe_key":       key,
			"dedupe_window_ms": d.window.Milliseconds(),
		},
	}, nil
}

// cleanup assumes d.mu is held.
func (d *WindowDeduper) cleanup(now time.Time) {
	if len(d.entries) <= d.maxEntries {
		for key, seen := range d.entries {
			if now.Sub(seen) >= d.window {
				delete(d.entries, key)
			}
		}
		return
	}
	for key, seen := range d.entries {
		if now.Sub(seen) >= d.window {
			delete(d.entries, key)
		}
		if len(d.entries) <= d.maxEntries {
			break
		}
	}
	for key := range d.entries {
		if len(d.entries) <= d.maxEntries {
			break
		}
		delete(d.entries, key)
	}
}

var _ Deduper = (*WindowDeduper)(nil)
