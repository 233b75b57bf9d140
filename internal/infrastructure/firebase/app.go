package firebase

import (
	"context"
	"fmt"
	"log"
	"os"

	fbapp "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"schadenschat/pkg/config"
)

// ClientOptions picks the credentials for Google clients: inline service
// account JSON first, then a service account file. Against the emulator no
// credentials are needed.
func ClientOptions(cfg *config.Config) ([]option.ClientOption, error) {
	if cfg.ServiceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON))}, nil
	}

	if cfg.ServiceAccountPath != "" {
		if _, err := os.Stat(cfg.ServiceAccountPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account file does not exist: %s", cfg.ServiceAccountPath)
		}
		log.Printf("Using Firebase service account from file: %s", cfg.ServiceAccountPath)
		return []option.ClientOption{option.WithCredentialsFile(cfg.ServiceAccountPath)}, nil
	}

	if cfg.FirestoreEmulatorHost != "" {
		log.Printf("Using Firestore emulator at %s", cfg.FirestoreEmulatorHost)
		return []option.ClientOption{option.WithoutAuthentication()}, nil
	}

	return nil, fmt.Errorf("no Firebase credentials configured")
}

// NewApp initializes the Firebase app for the configured project.
func NewApp(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (*fbapp.App, error) {
	app, err := fbapp.NewApp(ctx, &fbapp.Config{
		ProjectID:     cfg.FirebaseProject,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase: %w", err)
	}
	return app, nil
}
