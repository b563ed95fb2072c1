package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/locvowork/task_reconciler/internal/config"
	"github.com/locvowork/task_reconciler/internal/database"
	"github.com/locvowork/task_reconciler/internal/domain"
	"github.com/locvowork/task_reconciler/internal/handler"
	"github.com/locvowork/task_reconciler/internal/logger"
	"github.com/locvowork/task_reconciler/internal/reconcile"
	"github.com/locvowork/task_reconciler/internal/remote"
	"github.com/locvowork/task_reconciler/internal/reportsink"
	"github.com/locvowork/task_reconciler/internal/repository"
	"github.com/locvowork/task_reconciler/internal/service"
	"github.com/locvowork/task_reconciler/pkg/googlecloud"
)

type App struct {
	Echo    *echo.Echo
	DB      *sql.DB
	GCP     *googlecloud.Client
	Sink    *reportsink.ElasticSink
	Policy  config.SyncPolicy
	Service service.SyncService
}

func NewApp() *App {
	return &App{
		Echo: echo.New(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	// Load environment configuration
	if err := config.LoadEnvConfig(); err != nil {
		return fmt.Errorf("failed to load env config: %w", err)
	}
	env := config.DefaultEnvConfig

	// Initialize logging
	logger.InitLogging(env.LOG_FILE_PATH, env.LOG_LEVEL)
	logger.InfoLog(ctx, "Environment variables loaded successfully")

	policy, err := config.LoadSyncPolicy(env.SYNC_POLICY_FILE)
	if err != nil {
		return fmt.Errorf("failed to load sync policy: %w", err)
	}
	a.Policy = policy

	tasks, creds, err := a.openStores(ctx, env.LOCAL_STORE)
	if err != nil {
		return err
	}

	tokens := repository.NewTokenProvider(creds, env.GOOGLE_CLIENT_ID, env.GOOGLE_CLIENT_SECRET)
	dial := remote.NewGoogleDialer(tokens)

	var observers []domain.RunObserver
	var journal service.RunJournal

	// Run journal is optional
	if env.GCP_PROJECT_ID != "" {
		gcpClient, err := googlecloud.NewClient(ctx, env.GCP_PROJECT_ID)
		if err != nil {
			logger.ErrorLog(ctx, "failed to initialize GCP client, run journal disabled: %v", err)
		} else {
			a.GCP = gcpClient
			j := googlecloud.NewJournal(gcpClient)
			observers = append(observers, j)
			journal = j
		}
	}

	// Report sink is optional
	var indexer service.AuditIndexer
	if env.ELASTIC_URL != "" {
		sink, err := reportsink.NewElasticSink(env.ELASTIC_URL, env.ELASTIC_INDEX_PREFIX)
		if err != nil {
			logger.ErrorLog(ctx, "failed to initialize elastic sink, reports disabled: %v", err)
		} else {
			a.Sink = sink
			observers = append(observers, sink)
			indexer = sink
		}
	}

	orch := reconcile.NewOrchestrator(tasks, dial, policy,
		reconcile.WithObservers(observers...),
		reconcile.WithSyncDisabler(tokens),
	)
	auditor := reconcile.NewAuditor(tasks, dial, policy)
	a.Service = service.NewSyncService(orch, auditor, journal, indexer)

	// Register Middlewares
	a.RegisterMiddlewares()

	// Register Routes
	a.RegisterRoutes(handler.NewSyncHandler(a.Service))

	return nil
}

func (a *App) openStores(ctx context.Context, kind string) (domain.TaskStore, domain.CredentialStore, error) {
	if kind == "memory" {
		logger.WarnLog(ctx, "using in-memory task store, data is lost on exit")
		store := repository.NewMemoryStore()
		return store, store, nil
	}

	env := config.DefaultEnvConfig
	dbConfig := database.Config{
		Host:            env.DB_HOST,
		Port:            env.DB_PORT,
		User:            env.DB_USER,
		Password:        env.DB_PASSWORD,
		DBName:          env.DB_NAME,
		SSLMode:         env.DB_SSL_MODE,
		MaxOpenConns:    env.DB_MAX_OPEN_CONNS,
		MaxIdleConns:    env.DB_MAX_IDLE_CONNS,
		ConnMaxLifetime: env.DB_CONN_MAX_LIFETIME,
	}
	db, err := database.NewPostgresDB(ctx, dbConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db

	repo := repository.NewTaskRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, nil, err
	}
	return repo, repository.NewCredentialRepository(db), nil
}

func (a *App) RegisterMiddlewares() {
	a.Echo.Use(middleware.Logger())
	a.Echo.Use(middleware.Recover())
	a.Echo.Use(middleware.CORS())
}

func (a *App) RegisterRoutes(syncHandler *handler.SyncHandler) {
	a.Echo.GET("/healthz", syncHandler.HealthHandler)

	api := a.Echo.Group("/api/v1")
	api.POST("/sync", syncHandler.SyncAllHandler)

	users := api.Group("/users/:user_id")
	users.POST("/sync", syncHandler.SyncUserHandler)
	users.GET("/audit", syncHandler.AuditHandler)
	users.POST("/cleanup", syncHandler.CleanupHandler)
	users.GET("/runs", syncHandler.ListRunsHandler)
}

// Close releases every client opened by Initialize.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	if a.GCP != nil {
		a.GCP.Close()
	}
	if a.Sink != nil {
		a.Sink.Stop()
	}
}

func (a *App) Run() error {
	defer a.Close()
	return a.Echo.Start(":" + config.DefaultEnvConfig.APP_PORT)
}
