// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	Env        string

	// Store: "firestore", "postgres" or "memory"
	StoreBackend string

	// Firebase (Firestore store + push notifications)
	FirebaseProjectID       string
	FirebaseCredentialsJSON string

	// DB
	DBHost    string
	DBPort    string
	DBUser    string
	DBPass    string
	DBName    string
	DBSSLMode string

	// Auth
	ServiceExpectedToken string

	// CORS
	AllowedOrigins string

	// Sources
	SurveyDomain     string
	SurveyBaseURL    string
	CORSProxyURL     string
	HTTPTimeout      time.Duration
	MaxDownloadBytes int64

	// Sync
	BatchLimitGeneric int
	BatchLimitSurvey  int
	BatchLimitExcel   int
	SurveyMaxPerForm  int
	SyncInterval      time.Duration

	// SMTP (report e-mail)
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPHost     string
	SMTPPort     int
	SMTPFromName string

	// R2 Storage (published reports)
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2BucketName      string
	R2PublicURL       string
}

func Load() *Config {
	if os.Getenv("ENV") != "production" {
		_ = godotenv.Load() // optional .env for local
	}

	return &Config{
		ServerPort: getEnv("PORT", "8086"),
		Env:        getEnv("ENV", "development"),

		StoreBackend: getEnv("STORE_BACKEND", "firestore"),

		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentialsJSON: os.Getenv("FIREBASE_CREDENTIALS_JSON"),

		DBHost:    getEnv("DB_HOST", "localhost"),
		DBPort:    getEnv("DB_PORT", "5432"),
		DBUser:    getEnv("DB_USER", "postgres"),
		DBPass:    getEnv("DB_PASS", "postgres"),
		DBName:    getEnv("DB_NAME", "datasync_db"),
		DBSSLMode: getEnv("DB_SSLMODE", "disable"),

		ServiceExpectedToken: getEnv("SERVICE_TOKEN", "your-secret-service-token"),

		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),

		SurveyDomain:     getEnv("SURVEY_DOMAIN", "kobotoolbox.org"),
		SurveyBaseURL:    getEnv("SURVEY_BASE_URL", "https://kf.kobotoolbox.org/api/v2"),
		CORSProxyURL:     getEnvAllowEmpty("CORS_PROXY_URL", "https://api.allorigins.win/get"),
		HTTPTimeout:      getDuration("HTTP_TIMEOUT", 30*time.Second),
		MaxDownloadBytes: int64(getInt("MAX_DOWNLOAD_BYTES", 50<<20)),

		BatchLimitGeneric: getInt("BATCH_LIMIT_GENERIC", 100),
		BatchLimitSurvey:  getInt("BATCH_LIMIT_SURVEY", 100),
		BatchLimitExcel:   getInt("BATCH_LIMIT_EXCEL", 1000),
		SurveyMaxPerForm:  getInt("SURVEY_MAX_PER_FORM", 100),
		SyncInterval:      getDuration("SYNC_INTERVAL", 0),

		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "DataSync Reports"),

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicURL:       os.Getenv("R2_PUBLIC_URL"),
	}
}

// SMTPEnabled reports whether report e-mails can be sent.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// R2Enabled reports whether reports can be published to object storage.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2BucketName != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAllowEmpty lets an explicitly empty variable disable a default.
func getEnvAllowEmpty(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("❌ Invalid %s: %v", key, err)
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("❌ Invalid %s: %v", key, err)
	}
	return v
}
