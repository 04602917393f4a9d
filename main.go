package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"mfgcore/server/internal/api"
	"mfgcore/server/internal/config"
	"mfgcore/server/internal/database"
	"mfgcore/server/internal/models"
	"mfgcore/server/internal/services"
	"mfgcore/server/internal/utils"
)

func main() {
	// Загружаем переменные окружения из .env файла (если существует)
	envErr := godotenv.Load()

	cfg := config.Load()
	utils.SetupLogger(cfg.Environment, cfg.LogLevel)

	if envErr != nil {
		log.Info().Msg("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Info().Msg("✅ Переменные окружения загружены из .env файла")
	}
	log.Info().Str("database_url", utils.MaskURL(cfg.DatabaseURL)).Msg("📋 DATABASE_URL")

	// Без БД ядро производства работать не может
	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:       cfg.DBMaxOpenConns,
		MaxIdleConns:       cfg.DBMaxIdleConns,
		ConnMaxLifetime:    cfg.DBConnMaxLifetime,
		SlowQueryThreshold: cfg.DBSlowQueryTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ PostgreSQL connection failed")
	}
	defer database.ClosePostgres(db)

	if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("❌ Migration failed")
	}
	log.Info().Msg("✅ Database migrations completed")

	// Redis нужен только для счетчиков номеров лотов, без него номер считается по БД
	redisClient, err := database.ConnectRedis(cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName)
	var redisUtil *utils.RedisClient
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Redis connection failed (continuing without Redis)")
		redisClient = nil
	} else {
		redisUtil = utils.NewRedisClient(redisClient)
	}
	defer database.CloseRedis(redisClient)

	staging := services.NewStagingService(db)
	fefo := services.NewFEFOService(db)
	fefo.SetStagingService(staging)
	batches := services.NewBatchService(db)
	if redisUtil != nil {
		batches.SetLotNumberGenerator(services.NewRedisLotNumbers(redisUtil))
	}
	recall := services.NewRecallService(db)
	recall.SetDefaultWindow(cfg.RecallWindowDays)
	lots := services.NewLotService(db)

	svc := api.Services{
		Requirements: services.NewRequirementService(db),
		FEFO:         fefo,
		Staging:      staging,
		Batches:      batches,
		Recall:       recall,
		Lots:         lots,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket лента цеха
	hub := api.NewHub()
	go hub.Run(ctx.Done())
	feed := api.NewProductionFeed(hub)
	batches.AddPublisher(feed)

	// События о партиях в Kafka
	var producer *api.BatchEventProducer
	if brokers := api.ParseKafkaBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		dialer := api.CreateKafkaDialer(cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		producer = api.NewBatchEventProducer(brokers, cfg.KafkaBatchTopic, dialer)
		batches.AddPublisher(producer)
	} else {
		log.Warn().Msg("⚠️ KAFKA_BROKERS не установлен, события партий только в WebSocket")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewRouter(svc, api.RouterOptions{
		JWTSecret:         cfg.JWTSecret,
		ExpiryWarningDays: cfg.ExpiryWarningDays,
		Feed:              feed,
	})

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(api.UnaryLoggingInterceptor))
	api.RegisterProductionServiceServer(grpcServer, api.NewProductionGRPCServer(svc))
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to listen gRPC")
		}
		log.Info().Str("port", cfg.GRPCPort).Msg("📡 gRPC Server starting")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	go watchExpiringLots(ctx, lots, cfg.ExpiryWarningDays)

	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("🚀 Server starting, API доступен на /api/v1")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Остановка сервера...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	grpcServer.GracefulStop()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Kafka продюсер закрыт с ошибкой")
		}
	}
	log.Info().Msg("server exited")
}

// watchExpiringLots раз в час пишет в лог лоты с остатком, срок которых скоро истекает
func watchExpiringLots(ctx context.Context, lots *services.LotService, days int) {
	report := func() {
		expiring, err := lots.ExpiringLots(ctx, days)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Не удалось получить истекающие лоты")
			return
		}
		for _, lot := range expiring {
			log.Warn().
				Str("lot_number", lot.LotNumber).
				Str("on_hand_oz", lot.OnHandOz.String()).
				Time("expiration_date", lot.ExpirationDate).
				Msg("⏰ Срок годности лота истекает")
		}
	}

	report()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report()
		}
	}
}
