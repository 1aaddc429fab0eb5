package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"time"

	"github.com/Manz2/chat-e2e/internal/certificate"
	"github.com/Manz2/chat-e2e/internal/challenge"
	"github.com/Manz2/chat-e2e/internal/config"
	"github.com/Manz2/chat-e2e/internal/database"
	"github.com/Manz2/chat-e2e/internal/handler"
	"github.com/Manz2/chat-e2e/internal/queue"
	"github.com/Manz2/chat-e2e/internal/redis"
	"github.com/Manz2/chat-e2e/internal/repository"
	"github.com/Manz2/chat-e2e/internal/service"
	"github.com/Manz2/chat-e2e/internal/worker"
)

func Run() error {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// 3. Connect to Redis (optional; without it the relay still works, just
	// without realtime fan-out and with the in-memory challenge store)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		if err := redisClient.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
	}

	// 4. Challenge store
	var challenges challenge.Store
	switch cfg.ChallengeBackend {
	case "redis":
		if redisClient == nil {
			return fmt.Errorf("challenge backend %q requires REDIS_URL", cfg.ChallengeBackend)
		}
		challenges = challenge.NewRedisStore(redisClient.Client)
	case "memory":
		memStore := challenge.NewMemoryStore(challenge.DefaultSweepInterval)
		defer memStore.Stop()
		challenges = memStore
	default:
		return fmt.Errorf("unknown challenge backend %q", cfg.ChallengeBackend)
	}

	// 5. Certificate issuer (optional, keyed by deployment seed)
	var issuer certificate.Issuer
	if cfg.CertSigningSeed != "" {
		issuer, err = certificate.NewEd25519Issuer(cfg.CertSigningSeed, cfg.CertKeyID)
		if err != nil {
			return fmt.Errorf("failed to create certificate issuer: %w", err)
		}
	}

	// 6. Repositories
	userRepo := repository.NewUserRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	prekeyRepo := repository.NewPrekeyRepository(db)
	convRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)

	// 7. Realtime event stream
	var publisher queue.Publisher
	if redisClient != nil {
		publisher = queue.NewPublisher(redisClient.Client)
	}

	// 8. Services
	nonceTTL := time.Duration(cfg.ChallengeTTL) * time.Second
	enrollmentService := service.NewEnrollmentService(userRepo, deviceRepo, challenges, issuer, nonceTTL)
	prekeyService := service.NewPrekeyService(deviceRepo, prekeyRepo)
	messageService := service.NewMessageService(convRepo, deviceRepo, messageRepo, publisher)
	inboxService := service.NewInboxService(deliveryRepo, messageRepo, publisher)
	deviceService := service.NewDeviceService(userRepo, deviceRepo)

	var attachmentHandler *handler.AttachmentHandler
	if cfg.BlobBucketName != "" {
		attachmentService, err := service.NewAttachmentService(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create attachment service: %w", err)
		}
		attachmentHandler = handler.NewAttachmentHandler(attachmentService)
	}

	// 9. Realtime worker pool: drains the event stream into pub/sub channels
	// that socket gateways subscribe to
	if redisClient != nil {
		consumer := queue.NewConsumer(redisClient.Client)
		broadcaster := worker.NewRedisBroadcaster(redisClient.Client)
		manager := worker.NewManager(consumer, worker.NewHandler(broadcaster), worker.DefaultManagerConfig())
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start realtime workers: %w", err)
		}
		defer manager.Stop()
	}

	// 10. Router and HTTP server
	router := NewRouter(RouterConfig{
		EnrollmentHandler: handler.NewEnrollmentHandler(enrollmentService),
		PrekeyHandler:     handler.NewPrekeyHandler(prekeyService),
		MessageHandler:    handler.NewMessageHandler(messageService),
		InboxHandler:      handler.NewInboxHandler(inboxService),
		DeviceHandler:     handler.NewDeviceHandler(deviceService),
		AttachmentHandler: attachmentHandler,
		JWTSecret:         cfg.JWTSecret,
	})

	addr := ":" + cfg.ServerPort
	log.Printf("Starting server on %s", addr)
	return stdhttp.ListenAndServe(addr, router)
}
