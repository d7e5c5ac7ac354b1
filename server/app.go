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

	"github.com/DanhNguyenCTU/VehicleDiag/config"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/auth"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/db"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/dtc"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/fleet"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/geocode"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/health"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/heartbeat"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/livedata"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/liveness"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/logs"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/metrics"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/middleware"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/models"
	"github.com/DanhNguyenCTU/VehicleDiag/internal/session"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db        *gorm.DB
	heartbeat *heartbeat.Consumer
	ctx       context.Context
	cancel    context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) БД
	d, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if d == nil {
		log.Fatalf("database.driver is required (mysql|postgres|sqlite)")
	}
	a.db = d

	// ---- DB migrations ----
	if err := a.db.AutoMigrate(
		// fleet
		&models.Device{},
		&models.Vehicle{},
		&models.Telemetry{},

		// users
		&models.AppUser{},
		&models.UserVehicle{},

		// diagnostics
		&models.DiagSession{},
		&models.DtcCurrent{},
		&models.DtcResult{},
		&models.InfoResult{},
		&models.DtcDictionary{},
	); err != nil {
		logs.Logger.Errorf("automigrate: %v", err)
	}
	if err := db.MigrateDtcCurrentUniqueIndex(a.db); err != nil {
		logs.Logger.Warnf("dtc_currents unique index migration: %v", err)
	}

	// 3) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	// 4) Health + metrics
	health.RegisterRoutesWithDB(a.Router, a.db) // /healthz и /readyz
	metrics.RegisterRoutes(a.Router)

	// 5) Доменные компоненты
	runtime := liveness.NewRuntime()
	tracker := liveness.NewTracker(a.db, runtime)
	reconciler := dtc.NewReconciler(a.db)
	manager := session.NewManager(a.db, tracker, reconciler, a.cfg.Devices.SessionTimeout)
	relay := livedata.NewRelay()

	jwtSecret := []byte(a.cfg.Auth.JWTSecret)
	deviceKeys := a.cfg.Devices.Keys

	auth.NewHTTP(a.db, a.cfg.Auth).RegisterRoutes(a.Router)
	session.NewHTTP(a.db, manager, tracker, deviceKeys, jwtSecret).RegisterRoutes(a.Router)
	liveness.NewHTTP(tracker, deviceKeys).RegisterRoutes(a.Router)
	livedata.NewHTTP(relay, runtime, deviceKeys, a.cfg.Devices.OnlineWindow, jwtSecret).RegisterRoutes(a.Router)
	fleet.NewHTTP(a.db, a.cfg.Devices.OnlineWindow, jwtSecret).RegisterRoutes(a.Router)
	geocode.NewHTTP(geocode.NewClient(a.cfg.Geocode)).RegisterRoutes(a.Router)

	// 6) MQTT heartbeat (опционально)
	if a.cfg.MQTT.Enabled {
		a.heartbeat = heartbeat.NewConsumer(a.cfg.MQTT, tracker, deviceKeys)
	}

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

	if a.heartbeat != nil {
		if err := a.heartbeat.Start(a.ctx); err != nil {
			logs.Logger.Errorf("mqtt heartbeat consumer: %v", err)
		}
	}

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
	if a.heartbeat != nil {
		a.heartbeat.Stop(ctx)
	}
	_ = a.httpServer.Shutdown(ctx)
	return nil
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
