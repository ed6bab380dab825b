package container_test

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/sourcegraph/conc"

	"github.com/km-arc/go-scoped/framework/container"
	"github.com/km-arc/go-scoped/framework/logging"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func buildAsync(t *testing.T, async []container.AsyncEntry, sync ...container.Entry) *container.AsyncRegistry {
	t.Helper()
	return container.NewRegistryBuilder().
		WithLogger(logging.ForTest(t)).
		ProvideAsync(async...).
		Provide(sync...).
		BuildAsync()
}

func enterAsync(t *testing.T, c *container.AsyncContainer) *container.AsyncContainer {
	t.Helper()
	child, err := c.EnterBuild()
	if err != nil {
		t.Fatalf("EnterBuild from %s: %v", c.Scope(), err)
	}
	return child
}

type ctxKey struct{}

// ── Resolution ───────────────────────────────────────────────────────────────

func TestAsync_GetSharesInstanceAndSeesContext(t *testing.T) {
	var calls atomic.Int32
	reg := buildAsync(t, []container.AsyncEntry{
		container.ProvideAsync(container.App, func(ctx context.Context) (*service, error) {
			calls.Add(1)
			id, _ := ctx.Value(ctxKey{}).(int)
			return &service{id}, nil
		}),
	})
	app := container.NewAsync(reg)
	ctx := context.WithValue(context.Background(), ctxKey{}, 9)
	defer app.Close(ctx)
	req := enterAsync(t, app)
	defer req.Close(ctx)

	a, err := container.GetAsync[*service](ctx, req)
	if err != nil {
		t.Fatalf("GetAsync: %v", err)
	}
	b, _ := container.GetAsync[*service](ctx, app)
	if a != b {
		t.Error("GetAsync should share the App instance")
	}
	if a.id != 9 {
		t.Errorf("factory context: got id %d, want 9", a.id)
	}
	if calls.Load() != 1 {
		t.Errorf("factory calls: got %d, want 1", calls.Load())
	}
}

func TestAsync_DependenciesAcrossRuntimes(t *testing.T) {
	type repo struct{ s *service }
	reg := buildAsync(t,
		[]container.AsyncEntry{
			container.ProvideAsyncWith(container.Request,
				[]container.Dependency{container.Inject[*service]()},
				func(_ context.Context, args container.Args) (*repo, error) {
					return &repo{container.Arg[*service](args, 0)}, nil
				}),
		},
		container.Provide(container.App, func() (*service, error) { return &service{3}, nil }),
	)
	ctx := context.Background()
	app := container.NewAsync(reg)
	defer app.Close(ctx)
	req := enterAsync(t, app)
	defer req.Close(ctx)

	r, err := container.GetAsync[*repo](ctx, req)
	if err != nil {
		t.Fatalf("GetAsync: %v", err)
	}
	if r.s == nil || r.s.id != 3 {
		t.Errorf("blocking dependency: got %+v", r.s)
	}
	if sync := container.MustGet[*service](req.Sync()); sync != r.s {
		t.Error("the fallback value should be cached in the paired blocking container")
	}
}

func TestAsync_Errors(t *testing.T) {
	reg := buildAsync(t,
		[]container.AsyncEntry{
			container.ProvideAsync(container.Request, func(context.Context) (*requestOnly, error) { return &requestOnly{}, nil }),
		},
		container.Provide(container.Request, func() (requestID, error) { return "r", nil }),
	)
	ctx := context.Background()
	app := container.NewAsync(reg)
	defer app.Close(ctx)

	if _, err := container.GetAsync[*service](ctx, app); !errors.Is(err, container.ErrNoInstantiator) {
		t.Errorf("unknown: got %v, want ErrNoInstantiator", err)
	}
	if _, err := container.GetAsync[*requestOnly](ctx, app); !errors.Is(err, container.ErrNoAccessible) {
		t.Errorf("async narrower: got %v, want ErrNoAccessible", err)
	}
	if _, err := container.GetAsync[requestID](ctx, app); !errors.Is(err, container.ErrNoAccessible) {
		t.Errorf("blocking narrower: got %v, want ErrNoAccessible", err)
	}
}

func TestAsync_FactoryErrorIsWrapped(t *testing.T) {
	reg := buildAsync(t, []container.AsyncEntry{
		container.ProvideAsync(container.App, func(context.Context) (*service, error) { return nil, errFactory }),
	})
	ctx := context.Background()
	app := container.NewAsync(reg)
	defer app.Close(ctx)

	_, err := container.GetAsync[*service](ctx, app)
	var ierr *container.InstantiatorError
	if !errors.As(err, &ierr) || ierr.Stage != container.StageFactory || !errors.Is(err, errFactory) {
		t.Errorf("got %v, want a factory-stage error wrapping errFactory", err)
	}
}

func TestAsync_CancelledContext(t *testing.T) {
	reg := buildAsync(t, []container.AsyncEntry{
		container.ProvideAsync(container.App, func(context.Context) (*service, error) { return &service{}, nil }),
	})
	app := container.NewAsync(reg)
	defer app.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := container.GetAsync[*service](ctx, app); !errors.Is(err, context.Canceled) {
		t.Errorf("GetAsync: got %v, want context.Canceled", err)
	}
	if err := app.Close(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Close: got %v, want context.Canceled", err)
	}
}

func TestAsync_Transient(t *testing.T) {
	reg := buildAsync(t,
		[]container.AsyncEntry{
			container.ProvideAsync(container.App, func(context.Context) (*service, error) { return &service{}, nil }),
		},
		container.Provide(container.App, func() (*resX, error) { return &resX{}, nil }),
	)
	ctx := context.Background()
	app := container.NewAsync(reg)
	defer app.Close(ctx)
	req := enterAsync(t, app)
	defer req.Close(ctx)

	a, err := container.GetTransientAsync[*service](ctx, req)
	if err != nil {
		t.Fatalf("GetTransientAsync: %v", err)
	}
	b, _ := container.GetTransientAsync[*service](ctx, req)
	if a == b {
		t.Error("transient values should be distinct")
	}
	x1, _ := container.GetTransientAsync[*resX](ctx, req)
	x2, _ := container.GetTransientAsync[*resX](ctx, req)
	if x1 == nil || x1 == x2 {
		t.Error("transient fallback values should be distinct")
	}
}

func TestAsync_ContainerBindings(t *testing.T) {
	ctx := context.Background()
	app := container.NewAsync(buildAsync(t, nil))
	defer app.Close(ctx)
	step, err := app.Enter().WithScope(container.Step).Build()
	if err != nil {
		t.Fatalf("WithScope(Step): %v", err)
	}

	got, err := container.GetAsync[*container.AsyncContainer](ctx, step)
	if err != nil || got != step {
		t.Errorf("*AsyncContainer: got %v, %v", got, err)
	}
	sync, err := container.GetAsync[*container.Container](ctx, step)
	if err != nil || sync != step.Sync() {
		t.Errorf("*Container: got %v, %v", sync, err)
	}
	if step.Sync().Scope() != step.Scope() {
		t.Error("paired containers should share a scope")
	}
}

// ── Hierarchy ────────────────────────────────────────────────────────────────

func TestAsync_Hierarchy(t *testing.T) {
	reg := buildAsync(t, nil)
	ctx := context.Background()

	app := container.NewAsync(reg)
	defer app.Close(ctx)
	if app.Scope().Name != "app" || app.Parent().Scope().Name != "runtime" {
		t.Errorf("NewAsync: got %s under %s", app.Scope(), app.Parent().Scope())
	}
	req := enterAsync(t, app)
	if req.Scope().Name != "request" || req.Parent().Scope().Name != "session" {
		t.Errorf("EnterBuild: got %s under %s", req.Scope(), req.Parent().Scope())
	}
	if req.Sync().Parent().Scope().Name != "session" {
		t.Error("the paired blocking chain should mirror the async chain")
	}

	rt := container.NewAsyncWithStartScope(reg, container.Runtime)
	if rt.Scope().Name != "runtime" || rt.Parent() != nil {
		t.Errorf("NewAsyncWithStartScope: got %s", rt.Scope())
	}
	want := []string{"app", "session", "request", "action", "step"}
	if got := scopeNames(rt.ChildScopes()); !reflect.DeepEqual(got, want) {
		t.Errorf("ChildScopes: got %v, want %v", got, want)
	}
	if rt.ID() == app.Parent().ID() {
		t.Error("separate roots should have distinct IDs")
	}

	_, err := req.Enter().WithScope(container.App).Build()
	if !errors.Is(err, container.ErrNoChildRegistriesWithScope) {
		t.Errorf("WithScope(App): got %v", err)
	}
}

// ── Close ────────────────────────────────────────────────────────────────────

func TestAsync_CloseRunsAsyncThenBlockingFinalizers(t *testing.T) {
	j := &journal{}
	reg := buildAsync(t,
		[]container.AsyncEntry{
			container.ProvideAsync(container.Session, func(context.Context) (*resX, error) { return &resX{}, nil },
				container.WithAsyncFinalizer(func(ctx context.Context, _ *resX) error {
					if ctx.Value(ctxKey{}) != "close" {
						return errors.New("finalizer did not receive the close context")
					}
					j.record("async-session")
					return nil
				})),
			container.ProvideAsync(container.Request, func(context.Context) (*resY, error) { return &resY{}, nil },
				container.WithAsyncFinalizer(func(context.Context, *resY) error { j.record("async-y"); return nil })),
			container.ProvideAsync(container.Request, func(context.Context) (*resZ, error) { return &resZ{}, nil },
				container.WithFinalizer(func(*resZ) error { j.record("async-z"); return nil })),
		},
		container.Provide(container.Request, func() (requestID, error) { return "r", nil },
			container.WithFinalizer(func(requestID) error { j.record("sync"); return nil })),
	)
	ctx := context.Background()
	app := container.NewAsync(reg)
	defer app.Close(ctx)
	req := enterAsync(t, app)

	for _, get := range []func() error{
		func() error { _, err := container.GetAsync[*resX](ctx, req); return err },
		func() error { _, err := container.GetAsync[requestID](ctx, req); return err },
		func() error { _, err := container.GetAsync[*resY](ctx, req); return err },
		func() error { _, err := container.GetAsync[*resZ](ctx, req); return err },
	} {
		if err := get(); err != nil {
			t.Fatalf("GetAsync: %v", err)
		}
	}

	closeCtx := context.WithValue(ctx, ctxKey{}, "close")
	if err := req.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	want := []string{"async-z", "async-y", "sync", "async-session"}
	if got := j.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("finalizers: got %v, want %v", got, want)
	}
	if err := req.Close(closeCtx); err != nil || len(j.take()) != 0 {
		t.Errorf("second Close should finalize nothing: %v", err)
	}
}

// ── Concurrency ──────────────────────────────────────────────────────────────

func TestAsync_ConcurrentCallersObserveOneInstance(t *testing.T) {
	reg := container.BuildAsyncRegistry(container.DefaultScopes(), []container.AsyncEntry{
		container.ProvideAsync(container.Request, func(context.Context) (*service, error) { return &service{}, nil }),
	})
	ctx := context.Background()
	app := container.NewAsync(reg)
	defer app.Close(ctx)
	req := enterAsync(t, app)
	defer req.Close(ctx)

	const n = 32
	got := make([]*service, n)
	var wg conc.WaitGroup
	for i := range n {
		wg.Go(func() {
			s, err := container.GetAsync[*service](ctx, req)
			if err != nil {
				panic(err)
			}
			got[i] = s
		})
	}
	wg.Wait()

	want, _ := container.GetAsync[*service](ctx, req)
	for i, s := range got {
		if s != want {
			t.Fatalf("caller %d saw a different instance", i)
		}
	}
}
