// Package container provides a scoped dependency-injection runtime.
//
// # Overview
//
// Factories are registered per type and bound to a scope. Containers form a
// tree with one node per scope level; each node caches what it resolves and
// finalizes it, newest first, when it closes. A node may read values owned
// by its ancestors but never values bound to a narrower scope.
//
// Two runtimes share the design: Container (blocking) and AsyncContainer
// (factories and finalizers take a context.Context).
//
// # Scopes
//
// DefaultScopes is Runtime, App, Session, Request, Action and Step. Runtime
// and Session are skipped by default: they exist as nodes but New and
// EnterBuild pass over them unless asked for explicitly with WithScope.
//
// # Registering
//
//	reg := container.BuildRegistry(container.DefaultScopes(),
//	    container.Instance(container.Runtime, cfg),
//	    container.Provide1(container.App, OpenDB,
//	        container.WithFinalizer(func(db *sql.DB) error { return db.Close() })),
//	    container.Provide1(container.Request, NewRepo),
//	    container.ProvideWith(container.Request,
//	        []container.Dependency{container.Inject[*Repo](), container.InjectTransient[*Token]()},
//	        func(args container.Args) (*Service, error) {
//	            return NewService(container.Arg[*Repo](args, 0), container.Arg[*Token](args, 1)), nil
//	        }),
//	)
//
// Service providers group registrations, see RegistryBuilder and ServiceProvider.
//
// # Container Lifecycle
//
//  1. Create: app := container.New(reg)   // at App, Runtime is its parent
//  2. Enter:  req, _ := app.EnterBuild()   // at Request, through Session
//  3. Resolve: repo, err := container.Get[*Repo](req)
//  4. Close:  req.Close()                  // finalizes Request and Session values
//  5. Close:  app.Close()                  // finalizes App and Runtime values
//
// A handle that becomes unreachable is closed implicitly. Close explicitly
// when finalization must happen at a known time.
//
// # Resolving
//
//	// Cached: one instance per owning node
//	repo, err := container.Get[*Repo](req)
//
//	// Transient: the factory runs again, never finalized
//	tok, err := container.GetTransient[*Token](req)
//
//	// Async
//	pool, err := container.GetAsync[*Pool](ctx, areq)
//
// # Errors
//
// Resolution errors are *ResolveError and match ErrNoInstantiator,
// ErrNoAccessible, ErrIncorrectType or ErrInstantiator with errors.Is.
// Navigation errors are *ScopeError.
package container
