package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/akarpov87/mealkeep/internal/backup"
	"github.com/akarpov87/mealkeep/internal/config"
	"github.com/akarpov87/mealkeep/internal/identity"
	"github.com/akarpov87/mealkeep/internal/logging"
	"github.com/akarpov87/mealkeep/internal/remote"
	"github.com/akarpov87/mealkeep/internal/repositories"
	"github.com/akarpov87/mealkeep/internal/services"
	syncpkg "github.com/akarpov87/mealkeep/internal/sync"

	_ "modernc.org/sqlite"
)

// App wires the local store, sync engine and backup pipeline behind an
// interactive prompt.
type App struct {
	config   *config.Config
	repos    *repositories.Repositories
	records  services.RecordService
	engine   *syncpkg.Engine
	pipeline *backup.Pipeline
	session  *identity.Session
	tokens   *identity.TokenProvider
	reader   *bufio.Reader
	log      logging.Logger
}

func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {

	repos := repositories.InitDatabase(ctx, c.DatabasePath, log)
	if repos.Degraded {
		log.Warn(ctx, "running in degraded mode: records will not be persisted")
	}

	tokens := identity.NewTokenProvider([]byte(c.SessionSecret))
	session, err := identity.NewSession(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("error initializing session: %w", err)
	}

	store := remote.NewHTTPStore(c.RemoteEndpoint, tokens)
	engine := syncpkg.New(session, repos.Records, repos.Queue, repos.Settings, store, log)

	session.OnLink(func(id identity.Identity) {
		if err := engine.HandleLink(ctx, id.ID); err != nil {
			log.Warn(ctx, "failed to migrate local data to linked account", "error", err)
		}
	})

	recordService := services.NewRecordService(repos.Records, repos.Queue, session)

	uploader, err := backup.NewUploader(c.ObjectStorage)
	if err != nil {
		return nil, fmt.Errorf("error configuring backup storage: %w", err)
	}
	safety := backup.NewLocalSafety(c.BackupDir, uploader)
	pipeline := backup.New(repos.Records, recordService, repos.Settings, safety, log)

	return &App{
		config:   c,
		repos:    repos,
		records:  recordService,
		engine:   engine,
		pipeline: pipeline,
		session:  session,
		tokens:   tokens,
		reader:   bufio.NewReader(os.Stdin),
		log:      log,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.Close()
	go a.StartSyncWatcher(ctx, a.config.SyncInterval)
	a.Root(ctx)
}

func (a *App) Close() {
	a.engine.StopListening()
	a.session.Close()
	if err := a.repos.Close(); err != nil {
		a.log.Warn(context.Background(), "error closing database", "error", err)
	}
}

func (a *App) isSignedIn() bool {
	return !a.session.Current().IsAnonymous
}

// StartSyncWatcher runs a background reconcile on a fixed interval. A
// reconcile already in flight makes the tick a no-op, so overlapping
// ticks are harmless.
func (a *App) StartSyncWatcher(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !a.isSignedIn() {
				continue
			}
			if err := a.engine.Reconcile(ctx); err != nil {
				a.log.Debug(ctx, "background sync failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
