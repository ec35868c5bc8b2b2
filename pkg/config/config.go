package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	Storage      StorageConfig
	GCS          GCSConfig
	Uploads      UploadsConfig
	Vision       VisionConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SPOOLHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"SPOOLHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SPOOLHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SPOOLHUB_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SPOOLHUB_LOG_FORMAT" default:"json"`

	// CORSOrigins is a comma separated allow-list; empty means local dev origins.
	CORSOrigins []string `envconfig:"SPOOLHUB_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"SPOOLHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SPOOLHUB_DB_DSN"`
	Driver string `envconfig:"SPOOLHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SPOOLHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"SPOOLHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SPOOLHUB_DB_USER"`
	LegacyPassword string `envconfig:"SPOOLHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"SPOOLHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"SPOOLHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SPOOLHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SPOOLHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SPOOLHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SPOOLHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements that take longer as warnings; 0 disables.
	SlowQueryThreshold time.Duration `envconfig:"SPOOLHUB_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"SPOOLHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SPOOLHUB_REDIS_ADDR"`
	Password     string        `envconfig:"SPOOLHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPOOLHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPOOLHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SPOOLHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SPOOLHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPOOLHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SPOOLHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes how bearer tokens issued by the identity service are verified.
type JWTConfig struct {
	Secret            string `envconfig:"SPOOLHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SPOOLHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SPOOLHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SPOOLHUB_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SPOOLHUB_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SPOOLHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SPOOLHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

// StorageConfig selects where uploaded image bytes live.
type StorageConfig struct {
	Backend  string `envconfig:"SPOOLHUB_STORAGE_BACKEND" default:"local"`
	LocalDir string `envconfig:"SPOOLHUB_STORAGE_LOCAL_DIR" default:"data/uploads"`
	// PublicPath prefixes locators produced by the local store.
	PublicPath string `envconfig:"SPOOLHUB_STORAGE_PUBLIC_PATH" default:"/uploads"`
}

// IsGCS reports whether images are stored in Google Cloud Storage.
func (s StorageConfig) IsGCS() bool {
	return strings.EqualFold(strings.TrimSpace(s.Backend), StorageBackendGCS)
}

type GCSConfig struct {
	BucketName string `envconfig:"SPOOLHUB_GCS_BUCKET_NAME"`
}

// UploadsConfig tunes the bulk upload pipeline.
type UploadsConfig struct {
	SessionTTL          time.Duration `envconfig:"SPOOLHUB_UPLOADS_SESSION_TTL" default:"1h"`
	BulkSessionTTL      time.Duration `envconfig:"SPOOLHUB_UPLOADS_BULK_SESSION_TTL" default:"24h"`
	MaxImageMB          int           `envconfig:"SPOOLHUB_UPLOADS_MAX_IMAGE_MB" default:"10"`
	MaxImagesPerRequest int           `envconfig:"SPOOLHUB_UPLOADS_MAX_IMAGES_PER_REQUEST" default:"50"`
	MaxImagesPerSession int           `envconfig:"SPOOLHUB_UPLOADS_MAX_IMAGES_PER_SESSION" default:"200"`
	DispatchMode        string        `envconfig:"SPOOLHUB_UPLOADS_DISPATCH_MODE" default:"inline"`
	LeaseTTL            time.Duration `envconfig:"SPOOLHUB_UPLOADS_LEASE_TTL" default:"2m"`
	StallAfter          time.Duration `envconfig:"SPOOLHUB_UPLOADS_STALL_AFTER" default:"10m"`
	RecoveryInterval    time.Duration `envconfig:"SPOOLHUB_UPLOADS_RECOVERY_INTERVAL" default:"5m"`
	PublicRateLimit     int           `envconfig:"SPOOLHUB_UPLOADS_PUBLIC_RATE_LIMIT" default:"30"`
	PublicRateWindow    time.Duration `envconfig:"SPOOLHUB_UPLOADS_PUBLIC_RATE_WINDOW" default:"1m"`
}

// MaxImageBytes converts the configured megabyte cap into bytes.
func (u UploadsConfig) MaxImageBytes() int64 {
	if u.MaxImageMB <= 0 {
		return 0
	}
	return int64(u.MaxImageMB) << 20
}

// UsesPubSub reports whether extraction work is dispatched over Pub/Sub.
func (u UploadsConfig) UsesPubSub() bool {
	return strings.EqualFold(strings.TrimSpace(u.DispatchMode), DispatchModePubSub)
}

type VisionConfig struct {
	GeminiAPIKey string        `envconfig:"SPOOLHUB_GEMINI_API_KEY"`
	Model        string        `envconfig:"SPOOLHUB_VISION_MODEL" default:"gemini-2.5-flash"`
	Temperature  float32       `envconfig:"SPOOLHUB_VISION_TEMPERATURE" default:"0.1"`
	Timeout      time.Duration `envconfig:"SPOOLHUB_VISION_TIMEOUT" default:"0s"`
}

type PubSubConfig struct {
	ExtractionTopic        string `envconfig:"SPOOLHUB_PUBSUB_EXTRACTION_TOPIC" default:"spoolhub-extraction-requests"`
	ExtractionSubscription string `envconfig:"SPOOLHUB_PUBSUB_EXTRACTION_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Enabled       bool   `envconfig:"SPOOLHUB_BIGQUERY_ENABLED" default:"false"`
	Dataset       string `envconfig:"SPOOLHUB_BIGQUERY_DATASET" default:"spoolhub"`
	OutcomesTable string `envconfig:"SPOOLHUB_BIGQUERY_OUTCOMES_TABLE" default:"extraction_outcomes"`
}

func (c *Config) validate() error {
	missing := []string{}
	needsProject := false
	if c.Storage.IsGCS() {
		needsProject = true
		if strings.TrimSpace(c.GCS.BucketName) == "" {
			missing = append(missing, EnvGCSBucket)
		}
	}
	if c.Uploads.UsesPubSub() {
		needsProject = true
		if strings.TrimSpace(c.PubSub.ExtractionTopic) == "" {
			missing = append(missing, EnvPubSubExtractionTopic)
		}
		if strings.TrimSpace(c.PubSub.ExtractionSubscription) == "" {
			missing = append(missing, EnvPubSubExtractionSub)
		}
	}
	if c.BigQuery.Enabled {
		needsProject = true
	}
	if needsProject && strings.TrimSpace(c.GCP.ProjectID) == "" {
		missing = append(missing, EnvGCPProjectID)
	}
	if c.App.IsProd() && strings.TrimSpace(c.Vision.GeminiAPIKey) == "" {
		missing = append(missing, EnvGeminiAPIKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
