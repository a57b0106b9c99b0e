package config

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"
)

// Default values.
const (
	defaultMongoURI           = "mongodb://localhost:27017/salesforce_sync"
	defaultMongoHost          = "localhost"
	defaultMongoPort          = "27017"
	defaultMongoDatabase      = "salesforce_sync"
	defaultAPIVersion         = "v59.0"
	defaultRateLimit          = 0.0
	defaultReconcileChunkSize = 200
	defaultMinFileSize        = 6 * 1024 * 1024
	defaultTransferTimeout    = 300 * time.Second
	defaultMinioBucket        = "crm-transfer-staging"
	defaultSyntheticDataDir   = "tmp/synthetic"
	defaultSyntheticDataRows  = 100
	defaultLogLevel           = "info"
	defaultLogFormat          = "text"

	envMongoURI           = "MONGO_URI"
	envMongoHost          = "MONGO_HOST"
	envMongoUser          = "MONGO_USER"
	envMongoPassword      = "MONGO_PASSWORD"
	envMongoDatabase      = "MONGO_DATABASE"
	envSFUsername         = "SF_USERNAME"
	envSFPassword         = "SF_PASSWORD"
	envSFSecurityToken    = "SF_SECURITY_TOKEN"
	envSFDomain           = "SF_DOMAIN"
	envSFClientID         = "SF_CLIENT_ID"
	envSFClientSecret     = "SF_CLIENT_SECRET"
	envSFAccessToken      = "SF_ACCESS_TOKEN"
	envSFInstanceURL      = "SF_INSTANCE_URL"
	envSFAPIVersion       = "SF_API_VERSION"
	envSFRateLimit        = "SF_RATE_LIMIT"
	envDownloadTimeout    = "SF_DOWNLOAD_TIMEOUT"
	envDMSEndpoint        = "DMS_ENDPOINT"
	envDMSAuthHeader      = "DMS_AUTH_HEADER"
	envDMSTimeout         = "DMS_TIMEOUT"
	envReconcileChunkSize = "RECONCILE_CHUNK_SIZE"
	envMinFileSize        = "MIN_FILE_SIZE"
	envStagingDir         = "STAGING_DIR"
	envMinioEndpoint      = "MINIO_ENDPOINT"
	envMinioAccessKey     = "MINIO_ACCESS_KEY"
	envMinioSecretKey     = "MINIO_SECRET_KEY"
	envMinioBucket        = "MINIO_BUCKET"
	envMinioUseSSL        = "MINIO_USE_SSL"
	envEntitiesFile       = "ENTITIES_FILE"
	envSyntheticDataDir   = "SYNTHETIC_DATA_DIR"
	envSyntheticDataRows  = "SYNTHETIC_DATA_ROWS"
	envLogLevel           = "LOG_LEVEL"
	envLogFormat          = "LOG_FORMAT"
)

// LoadLogSettings returns the log level and format. It runs before a logger exists.
func LoadLogSettings() (string, string) {
	level := os.Getenv(envLogLevel)
	if level == "" {
		level = defaultLogLevel
	}
	format := os.Getenv(envLogFormat)
	if format == "" {
		format = defaultLogFormat
	}
	return level, format
}

// LoadConfig loads the application configuration from environment variables or uses default values.
func LoadConfig(ctx context.Context, logger *slog.Logger) *Config {
	mongoURI := os.Getenv(envMongoURI)
	mongoURI = formatMongoURI(ctx, mongoURI, logger)

	return &Config{
		MongoURI:      mongoURI,
		MongoDatabase: envString(ctx, logger, envMongoDatabase, defaultMongoDatabase),
		Salesforce: SalesforceSettings{
			Username:        envString(ctx, logger, envSFUsername, ""),
			Password:        envSecret(envSFPassword),
			SecurityToken:   envSecret(envSFSecurityToken),
			Domain:          envString(ctx, logger, envSFDomain, "login"),
			ClientID:        envString(ctx, logger, envSFClientID, ""),
			ClientSecret:    envSecret(envSFClientSecret),
			AccessToken:     envSecret(envSFAccessToken),
			InstanceURL:     envString(ctx, logger, envSFInstanceURL, ""),
			APIVersion:      envString(ctx, logger, envSFAPIVersion, defaultAPIVersion),
			RateLimit:       envFloat(ctx, logger, envSFRateLimit, defaultRateLimit),
			DownloadTimeout: envDuration(ctx, logger, envDownloadTimeout, defaultTransferTimeout),
		},
		DMS: DMSSettings{
			Endpoint:   envString(ctx, logger, envDMSEndpoint, ""),
			AuthHeader: envSecret(envDMSAuthHeader),
			Timeout:    envDuration(ctx, logger, envDMSTimeout, defaultTransferTimeout),
		},
		Minio: MinioSettings{
			Endpoint:  envString(ctx, logger, envMinioEndpoint, ""),
			AccessKey: envSecret(envMinioAccessKey),
			SecretKey: envSecret(envMinioSecretKey),
			Bucket:    envString(ctx, logger, envMinioBucket, defaultMinioBucket),
			UseSSL:    envBool(ctx, logger, envMinioUseSSL, false),
		},
		ReconcileChunkSize: envInt(ctx, logger, envReconcileChunkSize, defaultReconcileChunkSize),
		MinFileSize:        int64(envInt(ctx, logger, envMinFileSize, defaultMinFileSize)),
		StagingDir:         envString(ctx, logger, envStagingDir, ""),
		EntitiesFile:       envString(ctx, logger, envEntitiesFile, ""),
		SyntheticDataDir:   envString(ctx, logger, envSyntheticDataDir, defaultSyntheticDataDir),
		SyntheticDataRows:  envInt(ctx, logger, envSyntheticDataRows, defaultSyntheticDataRows),
	}
}

func envString(ctx context.Context, logger *slog.Logger, key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		logger.DebugContext(ctx, "Using default value", "key", key, "value", def)
		return def
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key, "value", value)
	return value
}

// envSecret reads a credential. Its value is never logged.
func envSecret(key string) string {
	return os.Getenv(key)
}

func envInt(ctx context.Context, logger *slog.Logger, key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		logger.DebugContext(ctx, "Using default value", "key", key, "value", def)
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		logger.WarnContext(ctx, "Invalid value, using default", "key", key, "value", raw, "default", def, "error", err)
		return def
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key, "value", parsed)
	return parsed
}

func envFloat(ctx context.Context, logger *slog.Logger, key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 {
		logger.WarnContext(ctx, "Invalid value, using default", "key", key, "value", raw, "default", def, "error", err)
		return def
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key, "value", parsed)
	return parsed
}

func envBool(ctx context.Context, logger *slog.Logger, key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		logger.WarnContext(ctx, "Invalid value, using default", "key", key, "value", raw, "default", def, "error", err)
		return def
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key, "value", parsed)
	return parsed
}

// envDuration accepts Go durations ("90s") or a plain number of seconds.
func envDuration(ctx context.Context, logger *slog.Logger, key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		logger.WarnContext(ctx, "Invalid value, using default", "key", key, "value", raw, "default", def, "error", err)
		return def
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key, "value", parsed)
	return parsed
}

// formatMongoURI formats mongo settings to a url and return the result.
func formatMongoURI(
	ctx context.Context,
	mongoURI string,
	logger *slog.Logger,
) string {
	if mongoURI != "" {
		logger.DebugContext(ctx, "Using MongoDB URI from environment variable")
		return mongoURI
	}

	mongoHost := os.Getenv(envMongoHost)
	if mongoHost == "" {
		mongoHost = defaultMongoHost
		logger.DebugContext(ctx, "Using default MongoDB host", "host", mongoHost)
	} else {
		logger.DebugContext(ctx, "Using MongoDB host from environment variable", "host", mongoHost)
	}

	mongoUser := os.Getenv(envMongoUser)
	mongoPassword := os.Getenv(envMongoPassword)

	if mongoUser != "" && mongoPassword != "" {
		hostPort := net.JoinHostPort(mongoHost, defaultMongoPort)
		mongoURI = fmt.Sprintf(
			"mongodb://%s:%s@%s/%s?authSource=admin",
			mongoUser,
			mongoPassword,
			hostPort,
			defaultMongoDatabase,
		)
		logger.DebugContext(ctx, "Created MongoDB URI from user, password, and host", "host", hostPort)
	} else {
		mongoURI = defaultMongoURI
		logger.DebugContext(ctx, "Using default MongoDB URI", "uri", mongoURI)
	}
	return mongoURI
}
