package koyawebhooks

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cabibbz/koya-caller-sub009/core"
)

// ReprocessorPack groups the inbound reprocessors a downstream module
// contributes, e.g. a telephony integration registering handlers for its
// own webhook sources.
type ReprocessorPack struct {
	Name         string
	Reprocessors []core.InboundReprocessor
}

// CommandQueryBundleFactory builds a module-specific handler bundle
// around the shared service.
type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects contributions from downstream modules before
// the service is constructed. Safe for concurrent registration.
type ExtensionHooks struct {
	mu sync.RWMutex

	reprocessorPacks map[string]ReprocessorPack
	bundles          map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		reprocessorPacks: map[string]ReprocessorPack{},
		bundles:          map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterReprocessorPack(pack ReprocessorPack) error {
	if h == nil {
		return fmt.Errorf("webhooks: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("webhooks: reprocessor pack name is required")
	}
	if len(pack.Reprocessors) == 0 {
		return fmt.Errorf("webhooks: reprocessor pack %q has no reprocessors", name)
	}
	for _, reprocessor := range pack.Reprocessors {
		if reprocessor == nil {
			return fmt.Errorf("webhooks: reprocessor pack %q contains nil reprocessor", name)
		}
		if strings.TrimSpace(reprocessor.Source()) == "" {
			return fmt.Errorf("webhooks: reprocessor pack %q contains reprocessor with empty source", name)
		}
	}

	normalized := ReprocessorPack{
		Name:         name,
		Reprocessors: append([]core.InboundReprocessor(nil), pack.Reprocessors...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.reprocessorPacks[name]; exists {
		return fmt.Errorf("webhooks: reprocessor pack %q already registered", name)
	}
	h.reprocessorPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("webhooks: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("webhooks: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("webhooks: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("webhooks: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ReprocessorOptions flattens the registered packs into service options,
// ordered by pack name so construction is deterministic.
func (h *ExtensionHooks) ReprocessorOptions() []Option {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.reprocessorPacks))
	for name := range h.reprocessorPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	var opts []Option
	for _, name := range names {
		for _, reprocessor := range h.reprocessorPacks[name].Reprocessors {
			opts = append(opts, core.WithInboundReprocessor(reprocessor))
		}
	}
	return opts
}

func (h *ExtensionHooks) ReprocessorPacks() []ReprocessorPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.reprocessorPacks))
	for name := range h.reprocessorPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ReprocessorPack, 0, len(names))
	for _, name := range names {
		pack := h.reprocessorPacks[name]
		out = append(out, ReprocessorPack{
			Name:         pack.Name,
			Reprocessors: append([]core.InboundReprocessor(nil), pack.Reprocessors...),
		})
	}
	return out
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("webhooks: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
