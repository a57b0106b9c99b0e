package config

import (
	"time"
)

// Config holds the application configuration.
type Config struct {
	MongoURI      string
	MongoDatabase string

	Salesforce SalesforceSettings
	DMS        DMSSettings
	Minio      MinioSettings

	ReconcileChunkSize int
	MinFileSize        int64
	StagingDir         string
	EntitiesFile       string

	SyntheticDataDir  string
	SyntheticDataRows int
}

// SalesforceSettings holds the CRM credentials.
type SalesforceSettings struct {
	Username      string
	Password      string
	SecurityToken string
	Domain        string
	ClientID      string
	ClientSecret  string
	AccessToken   string
	InstanceURL   string
	APIVersion    string
	RateLimit     float64
	// DownloadTimeout bounds one attachment download.
	DownloadTimeout time.Duration
}

// DMSSettings holds the upload endpoint.
type DMSSettings struct {
	Endpoint   string
	AuthHeader string
	Timeout    time.Duration
}

// MinioSettings selects object-store staging when Endpoint is set.
type MinioSettings struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}
