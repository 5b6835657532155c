// Package app wires storage, session, API client and dashboard together and
// owns their lifecycle. Both the presentation server and the terminal UI
// run on top of one App.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"aiworker/dashboard-go/internal/cards"
	"aiworker/dashboard-go/internal/config"
	"aiworker/dashboard-go/internal/forms"
	"aiworker/dashboard-go/internal/models"
	"aiworker/dashboard-go/internal/poll"
	"aiworker/dashboard-go/internal/services"
	"aiworker/dashboard-go/internal/session"
)

type App struct {
	Cfg       config.Config
	Log       *zap.Logger
	Storage   services.Storage
	Session   *session.Store
	Client    *services.BackendClient
	Dashboard *cards.Dashboard

	ctx       context.Context
	scheduler poll.Scheduler
	bg        sync.WaitGroup
	closeOnce sync.Once

	mu sync.Mutex
	// teardown is closed once the latest logout finished unmounting and
	// resetting the dashboard.
	teardown chan struct{}
}

// New builds the object graph. ctx bounds every card request; cancelling it
// stops polling.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	storage := services.NewStorage(cfg, log)
	return Assemble(ctx, cfg, storage, poll.NewCronScheduler(), log)
}

// Assemble is New with the storage and scheduler supplied by the caller.
func Assemble(ctx context.Context, cfg config.Config, storage services.Storage, sched poll.Scheduler, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	sess := session.New(storage, log)
	client := services.NewBackendClient(cfg, sess, log)

	a := &App{
		Cfg:       cfg,
		Log:       log,
		Storage:   storage,
		Session:   sess,
		Client:    client,
		Dashboard: cards.NewDashboard(client, cfg, sched, log),
		ctx:       ctx,
		scheduler: sched,
	}

	client.OnUnauthorized(func(ctx context.Context) {
		if err := sess.Logout(ctx); err != nil {
			log.Warn("forced logout", zap.Error(err))
		}
	})
	sess.OnLogout(a.tearDown)
	return a
}

// tearDown unmounts and resets the dashboard in the background, since logout
// may run inside a card fetch that Unmount waits for. Teardowns run in order
// and mountDashboard waits for the latest one.
func (a *App) tearDown() {
	done := make(chan struct{})
	a.mu.Lock()
	prev := a.teardown
	a.teardown = done
	a.mu.Unlock()

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		a.Dashboard.Unmount()
		a.Dashboard.Reset()
	}()
}

func (a *App) mountDashboard() {
	a.mu.Lock()
	pending := a.teardown
	a.mu.Unlock()
	if pending != nil {
		<-pending
	}
	if !a.Session.Authenticated() {
		return
	}
	a.Dashboard.Mount(a.ctx)
}

// Resume restores a persisted token and mounts the dashboard when one was
// found.
func (a *App) Resume() bool {
	if !a.Session.Restore(a.ctx) {
		return false
	}
	a.mountDashboard()
	return true
}

// Login submits the form and mounts the dashboard on success.
func (a *App) Login(ctx context.Context, f *forms.LoginForm) (models.User, error) {
	user, err := f.Submit(ctx, a.Client, a.Session, a.Log)
	if err != nil {
		return user, err
	}
	a.mountDashboard()
	return user, nil
}

func (a *App) Register(ctx context.Context, f *forms.RegisterForm) (models.User, error) {
	return f.Submit(ctx, a.Client, a.Log)
}

// Logout clears the session. The dashboard is unmounted and reset in the
// background; a later Login mounts it only after that finished.
func (a *App) Logout(ctx context.Context) error {
	return a.Session.Logout(ctx)
}

// Close unmounts the dashboard, stops the scheduler and closes storage.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.Dashboard.Unmount()
		a.bg.Wait()
		if s, ok := a.scheduler.(interface{ Stop() context.Context }); ok {
			<-s.Stop().Done()
		}
		err = a.Storage.Close()
	})
	return err
}
