package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopfloor-bot/internal/bot"
	"shopfloor-bot/internal/config"
	"shopfloor-bot/internal/dialog"
	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/repository"
	"shopfloor-bot/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	catalog := model.DefaultCatalog()
	if cfg.CatalogPath != "" {
		catalog, err = model.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			log.Fatalf("catalog: %v", err)
		}
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	identitySvc := service.NewIdentityService(userRepo)
	planSvc := service.NewPlanService(taskRepo, assignmentRepo, catalog)
	reportSvc := service.NewReportService(reportRepo, userRepo, planSvc)
	summarySvc := service.NewSummaryService(reportSvc)
	retentionSvc := service.NewRetentionService(reportRepo, cfg.RetentionDays)

	if _, err := identitySvc.SeedAdmin(ctx, cfg.AdminID); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	telegramBot, err := bot.New(cfg.TelegramToken, identitySvc, summarySvc, planSvc, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	notifier := service.NewNotifier(telegramBot, 64)
	go notifier.Run(ctx)

	engine := dialog.New(dialog.Deps{
		Identity: identitySvc,
		Plans:    planSvc,
		Reports:  reportSvc,
		Notify:   notifier.Notify,
		Now:      time.Now,
	})
	telegramBot.AttachEngine(engine)

	scheduler := service.NewSchedulerService(time.Local)
	if _, err := scheduler.ScheduleDaily(cfg.SummaryTime, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := telegramBot.SendAdminSummary(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("summary: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule summary: %v", err)
	}
	if _, err := scheduler.ScheduleInterval(24*time.Hour, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := retentionSvc.Sweep(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("retention: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule retention: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Shop floor bot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
