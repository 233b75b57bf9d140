package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName       string
	ServerPort    string
	FunctionsPort string
	Environment   string
	BaseURL       string
	AllowedOrigins []string

	FirebaseProject       string
	ServiceAccountJSON    string
	ServiceAccountPath    string
	FirestoreEmulatorHost string
	RemoteStoreDisabled   bool
	RemoteProbeTimeout    time.Duration
	LocalStorePath        string

	PhotoBackend           string
	StorageBucket          string
	MinioEndpoint          string
	MinioAccessKey         string
	MinioSecretKey         string
	MinioUseSSL            bool
	MinioBucket            string
	MinioPublicURL         string
	PhotoUploadConcurrency int

	RedisURL  string
	DedupeTTL time.Duration

	RetentionAge        time.Duration
	RetentionInterval   time.Duration
	RetentionBatch      int
	TokenSweepInterval  time.Duration
	NearbyWorkshopLimit int

	CallableRatePerMinute int64
	VapidPublicKey        string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		AppName:       getEnv("APP_NAME", "schadens-chat"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		FunctionsPort: getEnv("FUNCTIONS_PORT", "8081"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		BaseURL:       getEnv("APP_BASE_URL", "/schadens-chat-app"),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),

		FirebaseProject:       getEnv("FIREBASE_PROJECT_ID", ""),
		ServiceAccountJSON:    getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountPath:    getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		FirestoreEmulatorHost: getEnv("FIRESTORE_EMULATOR_HOST", ""),
		RemoteStoreDisabled:   getEnvAsBool("REMOTE_STORE_DISABLED", false),
		RemoteProbeTimeout:    getEnvAsDuration("REMOTE_PROBE_TIMEOUT", 5*time.Second),
		LocalStorePath:        getEnv("LOCAL_STORE_PATH", "schadens-chat.db"),

		PhotoBackend:           getEnv("PHOTO_BACKEND", "gcs"),
		StorageBucket:          getEnv("STORAGE_BUCKET", ""),
		MinioEndpoint:          getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:         getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:         getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:            getEnvAsBool("MINIO_USE_SSL", false),
		MinioBucket:            getEnv("MINIO_BUCKET", "damage-photos"),
		MinioPublicURL:         getEnv("MINIO_PUBLIC_URL", ""),
		PhotoUploadConcurrency: int(getEnvAsInt64("PHOTO_UPLOAD_CONCURRENCY", 4)),

		RedisURL:  getEnv("REDIS_URL", ""),
		DedupeTTL: getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),

		RetentionAge:        getEnvAsDuration("RETENTION_AGE", 90*24*time.Hour),
		RetentionInterval:   getEnvAsDuration("RETENTION_INTERVAL", 24*time.Hour),
		RetentionBatch:      int(getEnvAsInt64("RETENTION_BATCH", 100)),
		TokenSweepInterval:  getEnvAsDuration("TOKEN_SWEEP_INTERVAL", 7*24*time.Hour),
		NearbyWorkshopLimit: int(getEnvAsInt64("NEARBY_WORKSHOP_LIMIT", 50)),

		CallableRatePerMinute: getEnvAsInt64("CALLABLE_RATE_PER_MINUTE", 30),
		VapidPublicKey:        getEnv("VAPID_PUBLIC_KEY", ""),
	}

	return config, nil
}

// HasCredentials reports whether any way of reaching the Firebase project is configured.
func (c *Config) HasCredentials() bool {
	return c.ServiceAccountJSON != "" || c.ServiceAccountPath != "" || c.FirestoreEmulatorHost != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var list []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
