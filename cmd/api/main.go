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
	"google.golang.org/api/option"

	"schadenschat/internal/adapter/api"
	"schadenschat/internal/adapter/api/handler"
	apimiddleware "schadenschat/internal/adapter/api/middleware"
	"schadenschat/internal/adapter/api/router"
	"schadenschat/internal/adapter/repository"
	"schadenschat/internal/domain/entity"
	"schadenschat/internal/infrastructure/docstore"
	"schadenschat/internal/infrastructure/firebase"
	"schadenschat/internal/infrastructure/localstore"
	"schadenschat/internal/infrastructure/ratelimit"
	"schadenschat/internal/infrastructure/storage"
	"schadenschat/internal/infrastructure/websocket"
	"schadenschat/internal/usecase"
	"schadenschat/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local, err := localstore.Open(cfg.LocalStorePath)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}
	defer local.Close()

	keys := localstore.Keys{App: cfg.AppName}
	localRepo := repository.NewLocalRepository(local, keys)

	var (
		remoteRepo usecase.RemoteEntityRepository
		verifier   usecase.TokenVerifier
		opts       []option.ClientOption
	)

	if cfg.RemoteStoreDisabled || !cfg.HasCredentials() {
		log.Printf("Remote store disabled, running on the local store only")
	} else {
		opts, err = firebase.ClientOptions(cfg)
		if err != nil {
			log.Fatalf("Failed to configure Firebase credentials: %v", err)
		}

		firebaseApp, err := firebase.NewApp(ctx, cfg, opts)
		if err != nil {
			log.Fatalf("%v", err)
		}

		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Printf("Firebase Auth unavailable, sign-in disabled: %v", err)
		} else {
			verifier = firebase.NewFirebaseAuthClient(authClient)
		}

		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		remoteRepo = repository.NewRemoteRepository(docstore.NewFirestoreStore(firestoreClient))
	}

	photos := newPhotoStore(ctx, cfg, opts)

	strategy := usecase.SelectStrategy(ctx, remoteRepo, localRepo, cfg.RemoteProbeTimeout)

	sessionUseCase := usecase.NewSessionUseCase(local, keys, verifier, localRepo)
	requestUseCase := usecase.NewRequestUseCase(strategy, sessionUseCase, photos, cfg.PhotoUploadConcurrency)
	offerUseCase := usecase.NewOfferUseCase(strategy, sessionUseCase)
	messageUseCase := usecase.NewMessageUseCase(strategy, sessionUseCase)
	realtimeUseCase := usecase.NewRealtimeUseCase(sessionUseCase, requestUseCase, offerUseCase, messageUseCase)

	// Sign-in pushes requests created while anonymous to the remote store.
	sessionUseCase.OnAuthenticated(func(_ context.Context, identity *entity.Identity) {
		if !strategy.Remote() {
			return
		}
		go func() {
			syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			result, err := requestUseCase.SyncLocalToRemote(syncCtx)
			if err != nil {
				log.Printf("Sync after sign-in of %s failed: %v", identity.ID, err)
				return
			}
			log.Printf("Synced %d local requests after sign-in (%d failed)", result.Synced, result.Failed)
		}()
	})

	if err := sessionUseCase.Restore(ctx); err != nil {
		log.Printf("Failed to restore session: %v", err)
	}

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)
	wsMessageHandler := websocket.NewMessageHandler(realtimeUseCase)

	limiter := ratelimit.NewRateLimiter(ratelimit.DefaultLimits())
	limiter.StartCleanupRoutine(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}
	e.Use(middleware.BodyLimit("25M"))

	e.Validator = api.NewValidator()

	router.Setup(e, router.Handlers{
		Request:   handler.NewRequestHandler(requestUseCase),
		Offer:     handler.NewOfferHandler(offerUseCase, messageUseCase),
		Session:   handler.NewSessionHandler(sessionUseCase),
		Health:    handler.NewHealthHandler(strategy.Primary, strategy.Remote()),
		WebSocket: handler.NewWebSocketHandler(wsManager, wsMessageHandler, cfg.AllowedOrigins),
	}, apimiddleware.NewRateLimitMiddleware(limiter))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on port %s (store: %s)...", cfg.ServerPort, strategy.Primary.Name())
	if err := e.Start(":" + cfg.ServerPort); err != nil && ctx.Err() == nil {
		e.Logger.Fatal(err)
	}
}

// newPhotoStore returns nil when no backend is configured; photos then stay inline.
func newPhotoStore(ctx context.Context, cfg *config.Config, opts []option.ClientOption) usecase.PhotoStore {
	store, err := storage.FromConfig(ctx, cfg, opts)
	if err != nil {
		log.Printf("Photo storage unavailable, photos stay inline: %v", err)
		return nil
	}
	if store == nil {
		return nil
	}
	return store
}
