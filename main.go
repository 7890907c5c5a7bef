// Package main provides the main entry point for the Longwave survey assignment and reminder engine
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/opencohort/longwave/app/handlers"
	"github.com/opencohort/longwave/app/router"
	"github.com/opencohort/longwave/app/scheduler"
	"github.com/opencohort/longwave/app/services"
	businessflow "github.com/opencohort/longwave/business_flow"
	"github.com/opencohort/longwave/config"
	"github.com/opencohort/longwave/models"
	"github.com/opencohort/longwave/repository"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Longwave application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the redis client and verifies connectivity.
// A disabled cache is not an error; the scheduler degrades to DB-only dedup.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s", cfg.RedisURL)
	return rc, nil
}

// initializeApplication wires repositories, flows, schedulers, and the HTTP router
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Repositories
	studyRepo := repository.NewStudyRepository(db)
	waveRepo := repository.NewWaveRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	configRepo := repository.NewRandomizationConfigRepository(db)
	armAssignmentRepo := repository.NewArmAssignmentRepository(db)
	waveAssignmentRepo := repository.NewWaveAssignmentRepository(db)
	tokenRepo := repository.NewReminderTokenRepository(db)
	suppressionRepo := repository.NewSuppressionFlagRepository(db)

	// Business flows
	randomizationFlow := businessflow.NewRandomizationFlow(
		studyRepo, participantRepo, configRepo, armAssignmentRepo,
		waveRepo, waveAssignmentRepo, tokenRepo, suppressionRepo, nil, nil)
	progressionFlow := businessflow.NewWaveProgressionFlow(
		studyRepo, participantRepo, waveRepo, waveAssignmentRepo,
		nil, nil, cfg.Engine.DueDateGrace)
	tokenFlow := businessflow.NewReminderTokenFlow(
		tokenRepo, waveRepo, participantRepo, studyRepo,
		nil, nil, cfg.Engine.ReminderTokenTTL)
	suppressionFlow := businessflow.NewSuppressionFlow(
		tokenRepo, waveRepo, participantRepo, suppressionRepo, nil, nil)

	// Notification delivery
	var emailProvider services.EmailProvider
	if cfg.Email.UseMock {
		emailProvider = services.NewMockEmailProvider()
	} else {
		emailProvider = services.NewSMTPEmailProvider(
			cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password, cfg.Email.FromEmail)
	}
	notifier := services.NewNotificationService(emailProvider)

	// One scheduler per reminder cadence
	dailyScheduler := scheduler.NewReminderScheduler(
		studyRepo, waveRepo, waveAssignmentRepo, participantRepo, armAssignmentRepo,
		suppressionRepo, tokenFlow, progressionFlow, notifier, rc, nil,
		models.ReminderFrequencyDaily, cfg.Engine.DailyInterval,
		cfg.Engine.SchedulerRateLimit, cfg.Engine.EligibilityWindow,
		cfg.Server.PublicBaseURL, nil)
	weeklyScheduler := scheduler.NewReminderScheduler(
		studyRepo, waveRepo, waveAssignmentRepo, participantRepo, armAssignmentRepo,
		suppressionRepo, tokenFlow, progressionFlow, notifier, rc, nil,
		models.ReminderFrequencyWeekly, cfg.Engine.WeeklyInterval,
		cfg.Engine.SchedulerRateLimit, cfg.Engine.EligibilityWindow,
		cfg.Server.PublicBaseURL, nil)

	var stopFuncs []func()
	stopFuncs = append(stopFuncs, dailyScheduler.Start(context.Background()))
	stopFuncs = append(stopFuncs, weeklyScheduler.Start(context.Background()))
	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	// Handlers and router
	assignmentHandler := handlers.NewAssignmentHandler(randomizationFlow)
	waveHandler := handlers.NewWaveHandler(progressionFlow)
	reminderHandler := handlers.NewReminderHandler(tokenFlow, suppressionFlow, dailyScheduler)

	r := router.NewFiberRouter(assignmentHandler, waveHandler, reminderHandler, cfg.Server.AllowedOrigins)

	return &Application{
		router:    r,
		config:    cfg,
		server:    r.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
