package modelsession

import (
	"context"
	"errors"
	"sync"
	"testing"

	"localchat/pkg/ai"
)

type fakeBackend struct {
	mu      sync.Mutex
	started chan struct{}
	release chan error
	calls   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		started: make(chan struct{}, 16),
		release: make(chan error, 16),
	}
}

func (b *fakeBackend) Warmup(ctx context.Context, model string) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	return <-b.release
}

type staticLister struct {
	name  string
	names []string
	err   error
}

func (l staticLister) Name() string { return l.name }

func (l staticLister) ListModels(ctx context.Context) ([]string, error) {
	return l.names, l.err
}

func TestRequestLoadTransitionsToReady(t *testing.T) {
	backend := newFakeBackend()
	m := New(backend, nil, Options{})

	done := make(chan error, 1)
	go func() { done <- m.RequestLoad(context.Background(), "m1") }()

	<-backend.started
	if _, ok := m.Current(); ok {
		t.Fatal("model must not report ready while loading")
	}
	backend.release <- nil
	if err := <-done; err != nil {
		t.Fatalf("load: %v", err)
	}

	model, ok := m.Current()
	if !ok || model != "m1" {
		t.Fatalf("expected Ready(m1), got %q ok=%v", model, ok)
	}
}

func TestConcurrentLoadsExactlyOneWins(t *testing.T) {
	backend := newFakeBackend()
	m := New(backend, nil, Options{})

	first := make(chan error, 1)
	go func() { first <- m.RequestLoad(context.Background(), "m1") }()
	<-backend.started

	const contenders = 8
	var wg sync.WaitGroup
	rejected := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rejected <- m.RequestLoad(context.Background(), "m2")
		}()
	}
	wg.Wait()
	close(rejected)
	for err := range rejected {
		if !errors.Is(err, ErrLoadInProgress) {
			t.Fatalf("expected ErrLoadInProgress, got %v", err)
		}
	}

	backend.release <- nil
	if err := <-first; err != nil {
		t.Fatalf("winning load: %v", err)
	}
	model, ok := m.Current()
	if !ok || model != "m1" {
		t.Fatalf("expected exactly Ready(m1), got %q ok=%v", model, ok)
	}
	if backend.calls != 1 {
		t.Fatalf("expected one warm-up call, got %d", backend.calls)
	}
}

func TestFailedLoadRevertsToNoModel(t *testing.T) {
	backend := newFakeBackend()
	m := New(backend, nil, Options{})

	go func() { <-backend.started; backend.release <- nil }()
	if err := m.RequestLoad(context.Background(), "m1"); err != nil {
		t.Fatalf("first load: %v", err)
	}

	go func() { <-backend.started; backend.release <- errors.New("out of memory") }()
	err := m.RequestLoad(context.Background(), "m2")
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if _, ok := m.Current(); ok {
		t.Fatal("expected NoModel after failed load with default policy")
	}
}

func TestFailedLoadKeepsPreviousWhenConfigured(t *testing.T) {
	backend := newFakeBackend()
	m := New(backend, nil, Options{KeepPreviousOnFailure: true})

	go func() { <-backend.started; backend.release <- nil }()
	if err := m.RequestLoad(context.Background(), "m1"); err != nil {
		t.Fatalf("first load: %v", err)
	}

	go func() { <-backend.started; backend.release <- errors.New("no such model") }()
	if err := m.RequestLoad(context.Background(), "m2"); !errors.Is(err, ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	model, ok := m.Current()
	if !ok || model != "m1" {
		t.Fatalf("expected previous model kept, got %q ok=%v", model, ok)
	}
}

func TestListModelsFallsBackToSecondaryStrategy(t *testing.T) {
	m := New(newFakeBackend(), []ai.ModelLister{
		staticLister{name: "api", err: errors.New("connection refused")},
		staticLister{name: "cli", names: []string{"llama3:8b", "phi3:mini"}},
	}, Options{DefaultModel: "llama3:8b"})

	list, err := m.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(list.Models) != 2 || list.Models[0].Name != "llama3:8b" {
		t.Fatalf("unexpected models %+v", list.Models)
	}
	if list.DefaultModel != "llama3:8b" {
		t.Fatalf("unexpected default %q", list.DefaultModel)
	}
}

func TestListModelsEmptyPrimaryFallsThrough(t *testing.T) {
	m := New(newFakeBackend(), []ai.ModelLister{
		staticLister{name: "api"}, // succeeds but empty
		staticLister{name: "cli", names: []string{"phi3:mini"}},
	}, Options{})

	list, err := m.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(list.Models) != 1 || list.Models[0].Name != "phi3:mini" {
		t.Fatalf("unexpected models %+v", list.Models)
	}
}

func TestListModelsAllStrategiesFail(t *testing.T) {
	m := New(newFakeBackend(), []ai.ModelLister{
		staticLister{name: "api", err: errors.New("down")},
		staticLister{name: "cli", err: errors.New("missing binary")},
	}, Options{DefaultModel: "m0"})

	list, err := m.ListModels(context.Background())
	if !errors.Is(err, ErrDiscovery) {
		t.Fatalf("expected ErrDiscovery, got %v", err)
	}
	if len(list.Models) != 0 {
		t.Fatalf("expected empty model list, got %+v", list.Models)
	}
	if list.DefaultModel != "m0" {
		t.Fatalf("default model should survive discovery failure, got %q", list.DefaultModel)
	}
}
