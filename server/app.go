package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetd/config"
	"fleetd/internal/activation"
	"fleetd/internal/db"
	"fleetd/internal/fleet"
	"fleetd/internal/health"
	"fleetd/internal/logs"
	"fleetd/internal/middleware"
	"fleetd/internal/models"
	"fleetd/internal/quota"
	"fleetd/internal/repo"
	"fleetd/internal/sweep"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// retention: давно истёкшие активационные коды сносим раз в сутки
const codeRetention = 30 * 24 * time.Hour

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db     *gorm.DB
	sweeps *sweep.Runner

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) БД (опционально; driver="" — режим in-memory)
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		a.db = d

		// 1) One-off rename of reserved columns (MySQL/MariaDB safe)
		if err := db.MigrateReservedColumns(a.db); err != nil {
			logs.Logger.Warnf("reserved columns migration: %v", err)
		}

		// 2) AutoMigrate all domain models
		if err := a.db.AutoMigrate(
			&models.Device{},
			&models.DeviceEvent{},
			&models.ActivationCode{},
			&models.Quota{},
		); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
	}

	// 3) Хранилища: gorm или in-memory
	var (
		devStore   fleet.Store
		codeStore  activation.Store
		quotaStore quota.Store
	)
	if a.db != nil {
		devStore = repo.NewDeviceStore(a.db)
		codeStore = activation.NewRepo(a.db)
		quotaStore = quota.NewRepo(a.db)
	} else {
		devStore = fleet.NewMemStore()
		codeStore = activation.NewMemStore()
		quotaStore = quota.NewMemStore()
	}

	// 4) Сервисы
	codes := activation.NewService(codeStore, a.cfg.Fleet.CodeTTL)
	ledger := quota.NewLedger(quotaStore, fleet.NewActiveCounter(devStore))
	registry := fleet.NewRegistry(devStore, codes, ledger)
	dispatcher := fleet.NewDispatcher(devStore, ledger)
	monitor := fleet.NewMonitor(devStore)

	// 5) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db) // /healthz и /readyz
	} else {
		health.RegisterRoutes(a.Router) // только /healthz
	}

	activation.NewHTTP(codes).RegisterRoutes(a.Router)
	quota.NewHTTP(ledger).RegisterRoutes(a.Router)
	fleet.NewAdminHTTP(registry, dispatcher).RegisterRoutes(a.Router)
	fleet.NewAgentHTTP(registry, dispatcher).RegisterRoutes(a.Router)

	// 6) Периодические задачи: офлайн-свип и очистка зависших команд —
	// независимые таймеры, чтобы отказ одного не блокировал другой
	a.sweeps = sweep.NewRunner(
		sweep.Task{
			Name:  "offline-sweep",
			Every: a.cfg.Fleet.SweepPeriod,
			Run: func() error {
				_, err := monitor.SweepOffline(a.cfg.Fleet.OfflineTimeout)
				return err
			},
		},
		sweep.Task{
			Name:  "stale-commands",
			Every: a.cfg.Fleet.StaleCommandPeriod,
			Run: func() error {
				_, err := dispatcher.ClearStale(a.cfg.Fleet.CommandMaxAge)
				return err
			},
		},
		sweep.Task{
			Name:  "code-retention",
			Every: 24 * time.Hour,
			Run: func() error {
				_, err := codes.PurgeExpired(codeRetention)
				return err
			},
		},
	)

	a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	a.sweeps.Start(a.ctx)

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpServer.Shutdown(ctx)
	return nil
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
