package internal

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/starford/ojportal/internal/apiclient"
	"github.com/starford/ojportal/internal/avatar"
	"github.com/starford/ojportal/internal/credstore"
	"github.com/starford/ojportal/internal/markdown"
	"github.com/starford/ojportal/internal/metrics"
	"github.com/starford/ojportal/internal/router"
	"github.com/starford/ojportal/internal/session"
)

// Portal bundles the client-side components shared by the server, the
// CLI commands and the MCP server.
type Portal struct {
	Config   *Config
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Session  *session.Session
	Expirer  *session.Expirer
	Client   *apiclient.Client
	Avatars  *avatar.Builder
	Markdown *markdown.Renderer
	Router   *router.Router

	closers []func() error
}

// NewPortal wires the components described by cfg. nav performs the
// full-page reload after a forced logout.
func NewPortal(cfg *Config, logger *slog.Logger, nav session.Navigator, opts ...Option) (*Portal, error) {
	app := &application{config: cfg, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(app)
	}

	p := &Portal{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(app.runtimeMetrics),
	}

	store, closeStore, err := openStore(cfg.Session.StorePath)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		p.closers = append(p.closers, closeStore)
	}
	p.Session = session.New(store)

	p.Expirer = session.NewExpirer(p.Session, nav,
		session.WithClock(app.clock),
		session.WithDelay(cfg.Session.LogoutDelay),
		session.WithLogger(logger.With(slog.String("component", "session"))),
		session.WithOnExpire(p.Metrics.ForcedLogout),
	)

	clientOpts := []apiclient.Option{
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithExpirer(p.Expirer),
		apiclient.WithObserver(p.Metrics.APIResponse),
		apiclient.WithLogger(logger.With(slog.String("component", "apiclient"))),
	}
	if app.transport != nil {
		clientOpts = append(clientOpts, apiclient.WithTransport(app.transport))
	}
	p.Client = apiclient.New(cfg.API.Origin, cfg.API.Root, p.Session, clientOpts...)

	p.Avatars = avatar.NewBuilder(p.Client, avatar.NewRegistry(app.clock))

	p.Markdown = markdown.New(
		markdown.WithLogger(logger.With(slog.String("component", "markdown"))),
		markdown.WithFallbackHook(p.Metrics.RenderFallback),
	)

	guards := []router.Guard{router.AdminGuard(p.Session)}
	if cfg.Router.EnforceAuth {
		guards = append(guards, router.AuthGuard(p.Session))
	}
	p.Router = router.Default(
		router.WithGuards(guards...),
		router.WithRedirectHook(func(from router.Match, to string) {
			p.Metrics.GuardRedirect(from.Route.Name)
			logger.Info("navigation redirected",
				slog.String("from", from.Path),
				slog.String("to", to))
		}),
	)

	return p, nil
}

func openStore(path string) (credstore.Store, func() error, error) {
	if path == "" {
		return credstore.NewMemory(), nil, nil
	}
	db, err := credstore.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open credential store: %w", err)
	}
	return db, db.Close, nil
}

// Close stops a pending logout redirect and releases the credential store.
func (p *Portal) Close() error {
	p.Expirer.Stop()
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
