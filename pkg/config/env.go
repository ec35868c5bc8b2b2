package config

// EnvPrefix is passed to envconfig; every field carries its fully-qualified name.
const EnvPrefix = "SPOOLHUB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	StorageBackendLocal = "local"
	StorageBackendGCS   = "gcs"

	DispatchModeInline = "inline"
	DispatchModePubSub = "pubsub"
)

const (
	EnvAppEnv   = "SPOOLHUB_APP_ENV"
	EnvPort     = "SPOOLHUB_APP_PORT"
	EnvLogLevel = "SPOOLHUB_LOG_LEVEL"
	EnvLogFmt   = "SPOOLHUB_LOG_FORMAT"

	EnvDBDSN    = "SPOOLHUB_DB_DSN"
	EnvDBDriver = "SPOOLHUB_DB_DRIVER"
	EnvDBHost   = "SPOOLHUB_DB_HOST"
	EnvDBPort   = "SPOOLHUB_DB_PORT"
	EnvDBUser   = "SPOOLHUB_DB_USER"
	EnvDBPass   = "SPOOLHUB_DB_PASSWORD"
	EnvDBName   = "SPOOLHUB_DB_NAME"

	EnvRedisURL = "SPOOLHUB_REDIS_URL"

	EnvJWTSecret  = "SPOOLHUB_JWT_SECRET"
	EnvJWTIssuer  = "SPOOLHUB_JWT_ISSUER"
	EnvJWTExpMins = "SPOOLHUB_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID    = "SPOOLHUB_GCP_PROJECT_ID"
	EnvStorageBackend  = "SPOOLHUB_STORAGE_BACKEND"
	EnvGCSBucket       = "SPOOLHUB_GCS_BUCKET_NAME"
	EnvGeminiAPIKey    = "SPOOLHUB_GEMINI_API_KEY"
	EnvDispatchMode    = "SPOOLHUB_UPLOADS_DISPATCH_MODE"
	EnvSessionTTL      = "SPOOLHUB_UPLOADS_SESSION_TTL"
	EnvBigQueryEnabled = "SPOOLHUB_BIGQUERY_ENABLED"

	EnvPubSubExtractionTopic = "SPOOLHUB_PUBSUB_EXTRACTION_TOPIC"
	EnvPubSubExtractionSub   = "SPOOLHUB_PUBSUB_EXTRACTION_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
