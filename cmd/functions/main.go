package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"schadenschat/internal/adapter/api"
	"schadenschat/internal/adapter/api/handler"
	apimiddleware "schadenschat/internal/adapter/api/middleware"
	"schadenschat/internal/adapter/api/router"
	"schadenschat/internal/adapter/repository"
	"schadenschat/internal/adapter/trigger"
	"schadenschat/internal/infrastructure/dedupe"
	"schadenschat/internal/infrastructure/docstore"
	"schadenschat/internal/infrastructure/firebase"
	"schadenschat/internal/infrastructure/ratelimit"
	"schadenschat/internal/infrastructure/storage"
	"schadenschat/internal/usecase"
	"schadenschat/pkg/config"
)

// The functions process watches the remote store, sends push notifications,
// serves the callable operations and runs the scheduled sweeps.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := firebase.ClientOptions(cfg)
	if err != nil {
		log.Fatalf("Failed to configure Firebase credentials: %v", err)
	}

	firebaseApp, err := firebase.NewApp(ctx, cfg, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	messagingClient, err := firebaseApp.Messaging(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Messaging: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	store := docstore.NewFirestoreStore(firestoreClient)
	remoteRepo := repository.NewRemoteRepository(store)
	workshopRepo := repository.NewWorkshopRepository(store)
	pushRepo := repository.NewPushRegistrationRepository(store)
	analyticsRepo := repository.NewAnalyticsRepository(store)

	sender := firebase.NewMessagingClient(messagingClient, cfg.BaseURL)

	var claimer dedupe.Claimer
	if cfg.RedisURL != "" {
		redisClient, err := dedupe.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		claimer = dedupe.NewRedisClaimer(redisClient, cfg.AppName+":events:", cfg.DedupeTTL)
	} else {
		log.Printf("No REDIS_URL set, deduplicating events in memory")
		claimer = dedupe.NewMemoryClaimer(cfg.DedupeTTL)
	}

	notificationUseCase := usecase.NewNotificationUseCase(remoteRepo, workshopRepo, pushRepo, analyticsRepo, sender, cfg.BaseURL, cfg.NearbyWorkshopLimit)
	pushUseCase := usecase.NewPushUseCase(pushRepo, sender)
	workshopUseCase := usecase.NewWorkshopUseCase(workshopRepo)
	var photos usecase.PhotoCleaner
	photoStore, err := storage.FromConfig(ctx, cfg, opts)
	if err != nil {
		log.Printf("Photo storage unavailable, purged requests keep their photos: %v", err)
	} else if photoStore != nil {
		photos = photoStore
	}
	retentionUseCase := usecase.NewRetentionUseCase(remoteRepo, photos, cfg.RetentionAge, cfg.RetentionBatch)

	listener := trigger.NewListener(store, notificationUseCase, claimer)
	listener.Start(ctx)

	retentionUseCase.Start(ctx, cfg.RetentionInterval)
	pushUseCase.StartSweep(ctx, cfg.TokenSweepInterval)

	limits := ratelimit.DefaultLimits()
	if cfg.CallableRatePerMinute > 0 {
		limits[ratelimit.ActionCallable] = ratelimit.Limit{
			Every: time.Minute / time.Duration(cfg.CallableRatePerMinute),
			Burst: int(cfg.CallableRatePerMinute),
		}
	}
	limiter := ratelimit.NewRateLimiter(limits)
	limiter.StartCleanupRoutine(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	router.SetupFunctions(e,
		handler.NewCallableHandler(workshopUseCase, pushUseCase, limiter, cfg.VapidPublicKey),
		handler.NewHealthHandler(remoteRepo, true),
		apimiddleware.NewAuthMiddleware(firebase.NewFirebaseAuthClient(authClient)),
	)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Starting functions on port %s...", cfg.FunctionsPort)
	if err := e.Start(":" + cfg.FunctionsPort); err != nil && ctx.Err() == nil {
		e.Logger.Fatal(err)
	}

	listener.Wait()
}
