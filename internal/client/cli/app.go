package cli

import (
	"bufio"
	"context"
	"database/sql"
	"os"

	"github.com/dmitrijs2005/timegrid/internal/client/api"
	"github.com/dmitrijs2005/timegrid/internal/client/config"
	"github.com/dmitrijs2005/timegrid/internal/client/feeds"
	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/merge"
	"github.com/dmitrijs2005/timegrid/internal/client/queue"
	"github.com/dmitrijs2005/timegrid/internal/client/services"
	"github.com/dmitrijs2005/timegrid/internal/client/session"
	"github.com/dmitrijs2005/timegrid/internal/client/status"
	"github.com/dmitrijs2005/timegrid/internal/client/syncer"
	"github.com/dmitrijs2005/timegrid/internal/logging"

	_ "modernc.org/sqlite"
)

// App wires the TimeGrid client together and drives the interactive loop.
type App struct {
	config   *config.Config
	log      logging.Logger
	auth     *services.AuthService
	entities *services.EntityService
	engine   *syncer.Engine
	status   *status.Broadcaster
	calendar *feeds.Refresher
	api      api.Client
	db       *sql.DB
	userName string
	reader   *bufio.Reader
}

func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {

	var store kv.Store
	sqliteStore, db, err := kv.OpenSQLite(ctx, c.DatabasePath)
	if err != nil {
		// a broken local database must not keep the app from starting;
		// queue and cache just do not survive restarts
		log.Warn(ctx, "local database unavailable, running without persistence", "error", err)
		store = kv.NewMemoryStore()
	} else {
		store = sqliteStore
	}

	apiClient := api.NewHTTPClient(c.ServerEndpointAddr)
	sessions := session.NewManager(store, log)
	q := queue.New(store)
	m := merge.NewStore(store)
	b := status.NewBroadcaster()

	auth := services.NewAuthService(apiClient, sessions, log)

	engineCfg := syncer.DefaultConfig()
	if c.MaxSyncAttempts > 0 {
		engineCfg.MaxAttempts = c.MaxSyncAttempts
	}
	if c.DrainDelay > 0 {
		engineCfg.DrainDelay = c.DrainDelay
	}
	if c.RateLimitCooldown > 0 {
		engineCfg.RateLimitCooldown = c.RateLimitCooldown
	}
	engine := syncer.NewEngine(engineCfg, store, apiClient, q, b, log,
		syncer.WithAuthErrorHook(auth.Invalidate))

	entities := services.NewEntityService(apiClient, q, m, engine, log)

	calendar := feeds.NewRefresher(feeds.NewHTTPFetcher(feeds.ParseICS), store, log, c.FeedRefreshInterval)

	return &App{
		config:   c,
		log:      log,
		auth:     auth,
		entities: entities,
		engine:   engine,
		status:   b,
		calendar: calendar,
		api:      apiClient,
		db:       db,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

// Run restores the cached session if possible, starts the reachability
// watcher and enters the command loop. It returns when the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s, err := a.auth.Bootstrap(ctx); err != nil {
		a.log.Warn(ctx, "session restore failed", "error", err)
	} else if s != nil {
		a.userName = s.User.Email
		printlnFn("Welcome back,", s.User.Email)
	}

	go a.engine.StartWatcher(ctx, a.config.OnlineCheckInterval)

	a.Root(ctx)
}

// Close releases the background refreshers and the local database.
func (a *App) Close() {
	a.calendar.Close()
	if err := a.api.Close(); err != nil {
		a.log.Warn(context.Background(), "failed to close api client", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn(context.Background(), "failed to close database", "error", err)
		}
	}
}
