package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"authflow/internal/activity"
	"authflow/internal/cache"
	"authflow/internal/configuration"
	"authflow/internal/identity"
	"authflow/internal/models"
	"authflow/internal/notifier"
	"authflow/internal/recovery"
	"authflow/internal/session"
	"authflow/internal/transport"
	"authflow/internal/validation"
	"authflow/internal/workers"

	"go.uber.org/zap"
)

// App holds the components selected by the profile.
type App struct {
	config  models.Configuration
	profile models.Profile
	logger  *zap.Logger
	events  *EventsManager
	cache   cache.ICache
	audit   activity.IActivityLogger

	Store    *session.Store
	Sessions *session.Controller
	Recovery *recovery.Controller
	Identity *identity.Server
}

func NewApp(config models.Configuration, profile models.Profile, logger *zap.Logger) (*App, error) {
	rules := validation.New(config.PasswordPolicy)

	app := &App{
		config:  config,
		profile: profile,
		logger:  logger,
		events:  NewEventsManager(configuration.EventsRecovery, configuration.EventsSession),
	}

	if profile.Console {
		client := transport.New(config.Identity, logger)
		app.Store = session.NewStore()
		app.Sessions = session.NewController(client, rules, app.Store, logger,
			session.WithNotifier(app.events.Notifier(configuration.EventsSession, logger)))
		app.Recovery = recovery.New(client, rules,
			recovery.WithLogger(logger),
			recovery.WithSessionWriter(app.Store),
			recovery.WithNotifier(app.events.Notifier(configuration.EventsRecovery, logger)),
			recovery.WithCooldown(config.Recovery.ResendCooldown, config.Recovery.TickInterval()),
		)
	}

	if profile.StubServer {
		if err := app.initIdentity(rules); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

func (a *App) initIdentity(rules *validation.Rules) error {
	stub := a.config.Stub

	c, err := cache.New(stub.Cache)
	if err != nil {
		return err
	}
	a.cache = c

	audit, err := activity.NewIndexClient(stub.ActivityDirectory)
	if err != nil {
		return err
	}
	a.audit = audit

	mailer, err := notifier.New(stub.Mailer)
	if err != nil {
		return err
	}

	opts := []identity.Option{identity.WithCache(c), identity.WithActivityLogger(audit)}
	if mailer != nil {
		opts = append(opts, identity.WithMailer(mailer))
	}
	a.Identity = identity.NewServer(stub, rules, a.logger, opts...)

	if stub.AdminEmail != "" && stub.AdminPassword != "" {
		if _, err = a.Identity.SeedUser("admin", stub.AdminEmail, stub.AdminPassword, models.RoleAdmin); err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}
	}
	return nil
}

// Run blocks until ctx is done or, for the console, until the input ends.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer a.Close()

	if a.profile.StubServer {
		interval := time.Duration(a.config.Stub.CleanupInterval) * time.Second
		go workers.NewJanitor(a.Identity, interval, a.logger).Run(ctx)
	}

	if a.profile.StubServer && !a.profile.Console {
		return StartHTTPServer(ctx, a.config.Stub.Port, NewHTTPHandler(a.config.Stub, a.Identity, a.logger))
	}

	if a.profile.StubServer {
		go func() {
			handler := NewHTTPHandler(a.config.Stub, a.Identity, a.logger)
			if err := StartHTTPServer(ctx, a.config.Stub.Port, handler); err != nil {
				a.logger.Error("Stub server stopped", zap.Error(err))
			}
		}()
	}

	console := NewConsole(a.Recovery, a.Sessions, a.Store, out)
	go console.Watch(ctx, a.events.Subscribe(ctx, configuration.EventsRecovery))
	return console.Run(ctx, in)
}

func (a *App) Close() {
	if a.Recovery != nil {
		a.Recovery.Close()
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("Failed to close activity index", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("Failed to close cache", zap.Error(err))
		}
	}
	a.events.Close()
}
