package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolve_PrecedenceOrder(t *testing.T) {
	direct := &recordingLogger{id: "direct"}
	viaProvider := &recordingLogger{id: "via-provider"}
	provider := &recordingProvider{logger: viaProvider}

	_, resolved := Resolve("webhooks", provider, direct)
	if resolved.(*recordingLogger).id != "via-provider" {
		t.Fatalf("expected provider logger to win")
	}

	resolvedProvider, resolved := Resolve("webhooks", nil, direct)
	if resolved.(*recordingLogger).id != "direct" {
		t.Fatalf("expected direct logger when provider is nil")
	}
	if resolvedProvider == nil {
		t.Fatalf("expected a provider wrapper derived from the logger")
	}

	_, resolved = Resolve("webhooks", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop fallback")
	}
}

func TestResolveForJob_BridgesCarryRecords(t *testing.T) {
	viaProvider := &recordingLogger{id: "via-provider"}
	provider := &recordingProvider{logger: viaProvider}

	_, _, jobProvider, jobLogger := ResolveForJob("webhooks", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected both go-job bridges")
	}

	jobProvider.GetLogger("webhooks").Info("delivery dispatched", "delivery_id", "d-1")

	if viaProvider.lastMsg != "delivery dispatched" {
		t.Fatalf("expected bridged message, got %q", viaProvider.lastMsg)
	}
	if len(viaProvider.lastArgs) != 2 || viaProvider.lastArgs[0] != "delivery_id" {
		t.Fatalf("expected bridged args, got %#v", viaProvider.lastArgs)
	}
}

var (
	_ glog.Logger         = (*recordingLogger)(nil)
	_ glog.LoggerProvider = (*recordingProvider)(nil)
)

type recordingProvider struct {
	logger *recordingLogger
}

func (p *recordingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type recordingLogger struct {
	id       string
	lastMsg  string
	lastArgs []any
}

func (l *recordingLogger) Trace(string, ...any) {}
func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Fatal(string, ...any) {}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.lastMsg = msg
	l.lastArgs = append([]any(nil), args...)
}

func (l *recordingLogger) WithContext(context.Context) glog.Logger {
	return l
}
