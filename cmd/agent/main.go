package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendance-agent/internal/api"
	"attendance-agent/internal/backend"
	"attendance-agent/internal/config"
	"attendance-agent/internal/handler"
	"attendance-agent/internal/repository"
	"attendance-agent/internal/service"
	"attendance-agent/pkg/geofence"
	"attendance-agent/pkg/retry"
	"attendance-agent/pkg/tasks"
	"attendance-agent/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const memoryDatabase = ":memory:"

func main() {
	logrus.Info("Initializing config...")
	cfg := config.GetAgentConfig()
	logrus.Info("Config initialized...")

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level")
	}
	logrus.SetLevel(level)

	// Инициализируем SQLite базу данных
	db, err := gorm.Open(sqlite.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logrus.Fatal("Failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.Fatal("Failed to get database instance:", err)
	}
	// одна база в памяти на все соединения
	if cfg.DatabaseURL == memoryDatabase {
		sqlDB.SetMaxOpenConns(1)
	}

	// Хранилище смены
	var kvRepo repository.KeyValueRepository
	if cfg.DatabaseURL == memoryDatabase {
		kvRepo = repository.NewMemoryKeyValueRepository()
	} else {
		kvRepo, err = repository.NewGormKeyValueRepository(db)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create key-value repository")
		}
	}

	pendingRepo, err := repository.NewGormPendingCheckoutRepository(db)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create pending checkout repository")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiClient := backend.NewClient(cfg.APIURL, cfg.HTTPTimeout)
	tracker := geofence.NewTracker(cfg.LocationMaxAge)
	scheduler := tasks.NewScheduler(ctx, tasks.MinInterval)

	// Уведомления идут в Telegram, если бот настроен
	var notifier service.Notifier = service.NewLogNotifier()
	var tgClient *telegram.Client
	if cfg.TelegramEnabled() {
		tgClient, err = telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramDebug)
		if err != nil {
			logrus.Fatal("Failed to create Telegram client:", err)
		}
		logrus.Infof("Authorized on account %s", tgClient.Bot.Self.UserName)
		notifier = tgClient
	}

	checkoutSync, err := service.NewCheckoutSync(pendingRepo, apiClient, scheduler, retry.NetworkErrorPolicy())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create checkout sync")
	}

	attendance := service.NewAttendanceService(
		service.NewSessionStore(kvRepo),
		apiClient,
		tracker,
		tracker,
		scheduler,
		checkoutSync,
		service.Options{
			Timezone:        cfg.Timezone,
			RadiusMeters:    cfg.GeofenceRadiusMeters,
			LocationTimeout: cfg.LocationTimeout,
		},
	)
	checkoutSync.SetSessionGuard(attendance.IsCheckedIn)

	geofenceHandler := service.NewGeofenceHandler(attendance, notifier)
	tracker.SetHandler(geofenceHandler.HandleEvent)

	monitor := service.NewScheduleMonitor(attendance, apiClient, notifier)
	scheduler.Define(service.ScheduleMonitorTask, cfg.MonitorInterval, monitor.Poll)
	scheduler.Define(service.CheckoutSyncTask, cfg.SyncInterval, checkoutSync.Flush)

	if cfg.UserEmail != "" {
		if err := attendance.Login(cfg.UserEmail); err != nil {
			logrus.WithError(err).Warn("Failed to log in configured user")
		}
	}

	// Восстанавливаем смену после перезапуска
	result, err := attendance.Resume(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to resume session")
	} else {
		logrus.WithField("status", result.Status).Info("Session state restored")
	}

	if err := monitor.Poll(ctx); err != nil {
		logrus.WithError(err).Warn("Startup schedule check failed")
	}

	if pending, err := checkoutSync.Pending(); err == nil && pending > 0 {
		if err := scheduler.Register(service.CheckoutSyncTask); err != nil {
			logrus.WithError(err).Warn("Failed to register checkout sync task")
		}
		if err := checkoutSync.Flush(ctx); err != nil {
			logrus.WithError(err).Warn("Startup checkout sync failed")
		}
	}

	var botHandler *handler.Handler
	if tgClient != nil {
		botHandler = handler.NewHandler(
			tgClient,
			attendance,
			service.NewScheduleService(attendance, apiClient),
			service.NewProfileService(attendance, apiClient),
			tracker,
			cfg,
		)
		attendance.AddListener(botHandler)

		updates := tgClient.Bot.GetUpdatesChan(tgClient.UpdateConfig)
		go botHandler.HandleUpdates(ctx, updates)

		go registerNotificationToken(ctx, apiClient, attendance, tgClient.NotificationToken())
	}

	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.NewHandler(attendance, tracker, geofenceHandler.HandleEvent), logrus.StandardLogger())
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP API listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	logrus.Info("Agent started. Press Ctrl+C to stop.")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Infof("Error stopping HTTP server: %v", err)
	}

	if tgClient != nil {
		tgClient.Bot.StopReceivingUpdates()
		botHandler.Wait()
	}

	scheduler.Stop()
	attendance.Shutdown()

	// Закрываем соединение с БД
	if err := sqlDB.Close(); err != nil {
		logrus.Infof("Error closing database: %v", err)
	}

	logrus.Info("Agent stopped gracefully")
}

// registerNotificationToken сообщает серверу, куда слать уведомления; ошибка не критична
func registerNotificationToken(ctx context.Context, client *backend.Client, attendance *service.AttendanceService, token string) {
	email, err := attendance.UserEmail()
	if err != nil || email == "" {
		logrus.Debug("No user yet, notification token not registered")
		return
	}

	if err := client.SaveNotificationToken(ctx, email, token); err != nil {
		logrus.WithError(err).Warn("Failed to save notification token")
		return
	}

	logrus.Info("Notification token registered")
}
