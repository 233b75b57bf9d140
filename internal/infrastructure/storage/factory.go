package storage

import (
	"context"

	"google.golang.org/api/option"

	"schadenschat/pkg/config"
)

// FromConfig builds the configured photo backend. It returns nil without an
// error when no backend is configured.
func FromConfig(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (PhotoStore, error) {
	switch cfg.PhotoBackend {
	case "minio":
		if cfg.MinioEndpoint == "" {
			return nil, nil
		}
		store, err := NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		if cfg.StorageBucket == "" || opts == nil {
			return nil, nil
		}
		client, err := NewCloudStorageClient(ctx, cfg.StorageBucket, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
