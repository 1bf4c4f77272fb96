package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/putto11262002/relay/core"
	"github.com/putto11262002/relay/pkg/router"
)

type App struct {
	config  *Config
	db      *core.SQLiteDB
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  *router.Router

	connManager *core.ConnManager
	eventRouter *core.EventRouter
	registry    *core.PresenceRegistry
	fabric      *core.RoomBroadcaster

	exit chan int

	userStore    core.UserStore
	authStore    core.AuthStore
	messageStore core.MessageStore

	relayHandler *RelayHandler
	authHandler  *AuthHandler
	fileHandler  *FileHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	app.userStore = core.NewSQLiteUserStore(app.db.DB)
	app.authStore = core.NewJWTAuthStore(app.userStore, []byte(app.config.Auth.Secret))
	app.messageStore = core.NewSQLiteMessageStore(app.db.DB)

	app.registry = core.NewPresenceRegistry()
	app.connManager = core.NewConnManager(app.context, &app.wg, app.logger)
	app.fabric = core.NewRoomBroadcaster(app.registry, app.connManager)
	app.eventRouter = core.NewEventRouter(app.context, app.logger, app.connManager)

	app.relayHandler = NewRelayHandler(app.registry, app.messageStore, app.fabric, app.eventRouter, app.logger)
	app.relayHandler.Register(app.eventRouter)
	app.connManager.OnEvent(app.eventRouter.Dispatch)
	app.connManager.OnDisconnect(app.relayHandler.DisconnectHandler)

	app.authHandler = NewAuthHandler(app.userStore, app.authStore)
	app.fileHandler, err = NewFileHandler(app.config.Uploads.Dir)
	if err != nil {
		failed(1, "failed to set up uploads: %v\n", err)
	}
	authMiddleware := core.JWTMiddleware(app.authStore)

	app.router = router.New(router.WithLogger(app.logger))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.Router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := app.connManager.Connect(w, r); err != nil {
			app.logger.Error(fmt.Sprintf("ws connect: %v", err))
		}
	})

	api := router.New(router.WithLogger(app.logger))

	api.Route("/auth", func(r *router.Router) {
		r.Post("/register", app.authHandler.RegisterHandler)
		r.Post("/login", app.authHandler.LoginHandler)
	})

	api.Route("/files", func(r *router.Router) {
		r.With(authMiddleware).Post("/upload", app.fileHandler.UploadHandler)
	})

	app.router.Mount("/api", api)
	app.router.Router.Mount("/uploads", app.fileHandler.ServeUploads())

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router.Router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) Start() {
	app.AddCleanupFunc(func(ctx context.Context) {
		app.connManager.Close()
	})

	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			go func(f func(context.Context)) {
				defer wg.Done()
				f(closeCtx)
			}(f)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.logger.Info(fmt.Sprintf("relay listening on %s:%d",
		app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	os.Exit(code)
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
