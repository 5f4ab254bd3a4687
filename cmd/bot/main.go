package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/foodnudes/FoodNudesBot/internal/admin"
	"github.com/foodnudes/FoodNudesBot/internal/config"
	"github.com/foodnudes/FoodNudesBot/internal/database"
	"github.com/foodnudes/FoodNudesBot/internal/repository"
	"github.com/foodnudes/FoodNudesBot/internal/service"
	"github.com/foodnudes/FoodNudesBot/internal/storage"
	"github.com/foodnudes/FoodNudesBot/internal/telegram"
	"github.com/foodnudes/FoodNudesBot/internal/vision"
	"github.com/foodnudes/FoodNudesBot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	visionClient := vision.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.VisionModel)

	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	tariffRepo := repository.NewTariffRepository(db)
	mealRepo := repository.NewMealRepository(db)
	promoRepo := repository.NewPromoRepository(db)

	userService := service.NewUserService(userRepo, mealRepo, logr, cfg.DefaultFreeCredits)
	ledgerService := service.NewLedgerService(userRepo, logr, cfg.AllowZeroBalanceDebit)
	tariffService := service.NewTariffService(tariffRepo, logr, cfg.PaymentCurrency)
	paymentService := service.NewPaymentService(cfg, logr, paymentRepo, tariffService)
	promoService := service.NewPromoService(promoRepo, ledgerService, logr, cfg.PromoBonusCredits)
	analysisService := service.NewAnalysisService(visionClient, ledgerService, mealRepo, logr, cfg.VisionTimeout)

	if err := tariffService.EnsureDefaults(ctx); err != nil {
		log.Fatalf("ensure default tariffs: %v", err)
	}

	var uploader telegram.ImageStorage
	if cfg.ArchiveEnabled() {
		up, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		uploader = up
	}

	bot := telegram.NewBot(cfg, botAPI, logr, userService, analysisService, ledgerService, promoService, paymentService, tariffService, uploader)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, userService, tariffService, promoRepo, paymentService, botAPI)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
