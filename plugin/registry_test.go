package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stayforge/entitle/plugin"
)

type recordingPlugin struct {
	name       string
	activated  atomic.Int64
	confirmed  atomic.Int64
	quotaDenom atomic.Int64
	failErr    error
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) OnSubscriptionActivated(_ context.Context, _ interface{}) error {
	p.activated.Add(1)
	return p.failErr
}

func (p *recordingPlugin) OnPaymentConfirmed(_ context.Context, _ interface{}) error {
	p.confirmed.Add(1)
	return p.failErr
}

func (p *recordingPlugin) OnQuotaExceeded(_ context.Context, _, _ string, _, limit int64) error {
	p.quotaDenom.Store(limit)
	return p.failErr
}

type bareNamePlugin struct{ name string }

func (p bareNamePlugin) Name() string { return p.name }

func TestRegisterAndDispatch(t *testing.T) {
	r := plugin.NewRegistry()
	p := &recordingPlugin{name: "recorder"}

	if err := r.Register(p); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 plugin, got %d", r.Count())
	}

	ctx := context.Background()
	r.EmitSubscriptionActivated(ctx, nil)
	r.EmitPaymentConfirmed(ctx, nil)
	r.EmitQuotaExceeded(ctx, "tenant-1", "ai_generations", 8, 8)

	if p.activated.Load() != 1 {
		t.Errorf("expected 1 activation, got %d", p.activated.Load())
	}
	if p.confirmed.Load() != 1 {
		t.Errorf("expected 1 confirmation, got %d", p.confirmed.Load())
	}
	if p.quotaDenom.Load() != 8 {
		t.Errorf("expected quota limit 8, got %d", p.quotaDenom.Load())
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := plugin.NewRegistry()

	if err := r.Register(bareNamePlugin{name: "dup"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(bareNamePlugin{name: "dup"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestGetAndList(t *testing.T) {
	r := plugin.NewRegistry()
	_ = r.Register(bareNamePlugin{name: "a"})
	_ = r.Register(bareNamePlugin{name: "b"})

	if got := r.Get("a"); got == nil || got.Name() != "a" {
		t.Errorf("Get(a) returned %v", got)
	}
	if got := r.Get("missing"); got != nil {
		t.Errorf("Get(missing) should return nil, got %v", got)
	}
	if len(r.List()) != 2 {
		t.Errorf("expected 2 plugins, got %d", len(r.List()))
	}
}

func TestFailingPluginDoesNotBlockOthers(t *testing.T) {
	r := plugin.NewRegistry()
	bad := &recordingPlugin{name: "bad", failErr: errors.New("boom")}
	good := &recordingPlugin{name: "good"}
	_ = r.Register(bad)
	_ = r.Register(good)

	r.EmitSubscriptionActivated(context.Background(), nil)

	if good.activated.Load() != 1 {
		t.Error("a failing plugin must not stop dispatch to the rest")
	}
}

type slowPlugin struct {
	done chan struct{}
}

func (p *slowPlugin) Name() string { return "slow" }

func (p *slowPlugin) OnShutdown(_ context.Context) error {
	<-p.done
	return nil
}

func TestCancelledContextUnblocksDispatch(t *testing.T) {
	r := plugin.NewRegistry()
	p := &slowPlugin{done: make(chan struct{})}
	defer close(p.done)
	_ = r.Register(p)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	r.EmitShutdown(ctx)
	if time.Since(start) > 2*time.Second {
		t.Error("dispatch should unblock when the context is cancelled")
	}
}
