// Package config loads application configuration from the environment and an
// optional dynamic overrides file that can change at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion         string
	ApplicationsTable string
	ApplicantsTable   string
	CoApplicantsTable string
	GuarantorsTable   string
	ZoneIndexName     string
	OverflowBucket    string
	S3Endpoint        string

	// Size limits
	ItemCeilingBytes int
	ItemBudgetBytes  int
	FieldSpillBytes  int
	MaxEventEntries  int
	MaxFileEntries   int
	MaxStringBytes   int
	MaxOccupants     int

	// Retry configuration
	RetryMaxAttempts int

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics bool
	EnableCORS    bool

	// DynamicConfigPath points at the optional runtime-overrides file.
	DynamicConfigPath string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		ApplicationsTable: getEnv("APPLICATIONS_TABLE", "app_nyc"),
		ApplicantsTable:   getEnv("APPLICANTS_TABLE", "applicant_nyc"),
		CoApplicantsTable: getEnv("COAPPLICANTS_TABLE", "Co-Applicants"),
		GuarantorsTable:   getEnv("GUARANTORS_TABLE", "Guarantors_nyc"),
		ZoneIndexName:     getEnv("ZONE_INDEX_NAME", "ZoneIndex"),
		OverflowBucket:    getEnv("OVERFLOW_BUCKET", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),

		ItemCeilingBytes: getEnvInt("ITEM_CEILING_BYTES", 400*1024),
		ItemBudgetBytes:  getEnvInt("ITEM_BUDGET_BYTES", 350*1024),
		FieldSpillBytes:  getEnvInt("FIELD_SPILL_BYTES", 50*1024),
		MaxEventEntries:  getEnvInt("MAX_EVENT_ENTRIES", 5),
		MaxFileEntries:   getEnvInt("MAX_FILE_ENTRIES", 10),
		MaxStringBytes:   getEnvInt("MAX_STRING_BYTES", 10*1024),
		MaxOccupants:     getEnvInt("MAX_OCCUPANTS", 10),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),

		DynamicConfigPath: getEnv("DYNAMIC_CONFIG_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.ItemBudgetBytes > c.ItemCeilingBytes {
		return fmt.Errorf("ITEM_BUDGET_BYTES (%d) must not exceed ITEM_CEILING_BYTES (%d)", c.ItemBudgetBytes, c.ItemCeilingBytes)
	}
	if c.Environment == "production" {
		if c.OverflowBucket == "" {
			return fmt.Errorf("OVERFLOW_BUCKET is required in production")
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
