package koyawebhooks

import (
	"context"
	"fmt"
	"testing"

	"github.com/cabibbz/koya-caller-sub009/core"
)

func TestExtensionHooks_RegisterReprocessorPack(t *testing.T) {
	hooks := NewExtensionHooks()

	pack := ReprocessorPack{
		Name:         "telephony",
		Reprocessors: []core.InboundReprocessor{hookReprocessor{source: "vapi"}},
	}
	if err := hooks.RegisterReprocessorPack(pack); err != nil {
		t.Fatalf("register pack: %v", err)
	}
	if err := hooks.RegisterReprocessorPack(pack); err == nil {
		t.Fatalf("expected duplicate pack rejection")
	}

	if err := hooks.RegisterReprocessorPack(ReprocessorPack{Name: "  "}); err == nil {
		t.Fatalf("expected empty name rejection")
	}
	if err := hooks.RegisterReprocessorPack(ReprocessorPack{Name: "empty"}); err == nil {
		t.Fatalf("expected empty reprocessor list rejection")
	}
	if err := hooks.RegisterReprocessorPack(ReprocessorPack{
		Name:         "bad-source",
		Reprocessors: []core.InboundReprocessor{hookReprocessor{source: " "}},
	}); err == nil {
		t.Fatalf("expected empty source rejection")
	}

	packs := hooks.ReprocessorPacks()
	if len(packs) != 1 || packs[0].Name != "telephony" {
		t.Fatalf("unexpected packs: %#v", packs)
	}
}

func TestExtensionHooks_ReprocessorOptionsOrdering(t *testing.T) {
	hooks := NewExtensionHooks()

	for _, name := range []string{"zeta", "alpha"} {
		if err := hooks.RegisterReprocessorPack(ReprocessorPack{
			Name:         name,
			Reprocessors: []core.InboundReprocessor{hookReprocessor{source: name}},
		}); err != nil {
			t.Fatalf("register %q: %v", name, err)
		}
	}

	opts := hooks.ReprocessorOptions()
	if len(opts) != 2 {
		t.Fatalf("expected two options, got %d", len(opts))
	}
	packs := hooks.ReprocessorPacks()
	if packs[0].Name != "alpha" || packs[1].Name != "zeta" {
		t.Fatalf("expected name-sorted packs, got %#v", packs)
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()

	if err := hooks.RegisterCommandQueryBundle("", nil); err == nil {
		t.Fatalf("expected name requirement")
	}
	if err := hooks.RegisterCommandQueryBundle("billing", nil); err == nil {
		t.Fatalf("expected factory requirement")
	}

	if err := hooks.RegisterCommandQueryBundle("billing", func(service CommandQueryService) (any, error) {
		return NewFacade(service)
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("billing", func(CommandQueryService) (any, error) {
		return nil, nil
	}); err == nil {
		t.Fatalf("expected duplicate bundle rejection")
	}

	if got := hooks.BundleNames(); len(got) != 1 || got[0] != "billing" {
		t.Fatalf("unexpected bundle names: %#v", got)
	}

	bundles, err := hooks.BuildCommandQueryBundles(&stubFacadeService{})
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if _, ok := bundles["billing"].(*Facade); !ok {
		t.Fatalf("expected facade bundle, got %T", bundles["billing"])
	}

	if _, err := hooks.BuildCommandQueryBundles(nil); err == nil {
		t.Fatalf("expected service requirement")
	}
}

func TestExtensionHooks_BundleFactoryErrorPropagates(t *testing.T) {
	hooks := NewExtensionHooks()

	if err := hooks.RegisterCommandQueryBundle("broken", func(CommandQueryService) (any, error) {
		return nil, fmt.Errorf("bundle wiring failed")
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}

	if _, err := hooks.BuildCommandQueryBundles(&stubFacadeService{}); err == nil {
		t.Fatalf("expected factory error to propagate")
	}
}

type hookReprocessor struct {
	source string
}

func (r hookReprocessor) Source() string { return r.source }

func (r hookReprocessor) Reprocess(context.Context, core.FailedWebhook) error {
	return nil
}
