package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Salesforce validation
	if c.Salesforce.InstanceURL == "" {
		errs = append(errs, "SF_INSTANCE_URL is required")
	} else if !strings.HasPrefix(c.Salesforce.InstanceURL, "http://") && !strings.HasPrefix(c.Salesforce.InstanceURL, "https://") {
		errs = append(errs, fmt.Sprintf("SF_INSTANCE_URL (%q) must be an http(s) URL", c.Salesforce.InstanceURL))
	}
	if c.Salesforce.SessionID == "" {
		errs = append(errs, "SF_SESSION_ID is required")
	}
	if c.Salesforce.RequestTimeout <= 0 {
		errs = append(errs, "SF_REQUEST_TIMEOUT must be positive")
	}
	if c.Salesforce.RateLimit <= 0 {
		errs = append(errs, "SF_RATE_LIMIT must be positive")
	}

	// Load validation
	if c.Load.Object == "" {
		errs = append(errs, "LOAD_OBJECT is required")
	}
	validOps := map[string]bool{"insert": true, "update": true, "upsert": true, "delete": true}
	if !validOps[strings.ToLower(c.Load.Operation)] {
		errs = append(errs, fmt.Sprintf("LOAD_OPERATION (%q) must be one of: insert, update, upsert, delete", c.Load.Operation))
	}
	if c.Load.MaxBatchBytes <= 0 {
		errs = append(errs, "LOAD_MAX_BATCH_BYTES must be positive")
	}
	if c.Load.MaxBatchRows <= 0 {
		errs = append(errs, "LOAD_MAX_BATCH_ROWS must be positive")
	}
	if c.Load.Workers <= 0 {
		errs = append(errs, "LOAD_WORKERS must be positive")
	}
	if c.Load.PollInterval <= 0 {
		errs = append(errs, "LOAD_POLL_INTERVAL must be positive")
	}
	if c.Load.MaxWait < 0 {
		errs = append(errs, "LOAD_MAX_WAIT must be non-negative (0 waits forever)")
	}

	// Staging validation
	validProviders := map[string]bool{"memory": true, "file": true, "object": true}
	if !validProviders[strings.ToLower(c.Staging.Provider)] {
		errs = append(errs, fmt.Sprintf("STAGING_PROVIDER (%q) must be one of: memory, file, object", c.Staging.Provider))
	}
	if strings.ToLower(c.Staging.Provider) == "object" {
		if c.Staging.MinIOEndpoint == "" {
			errs = append(errs, "STAGING_MINIO_ENDPOINT is required for object staging")
		}
		if c.Staging.MinIOBucket == "" {
			errs = append(errs, "STAGING_MINIO_BUCKET is required for object staging")
		}
	}

	// Database validation
	if c.Database.URL != "" && c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}

	// Server validation
	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, "STATUS_SERVER_ADDR is required when the status server is enabled")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Credentials and connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Salesforce: {InstanceURL: %q, SessionID: [MASKED], APIVersion: %q}, ",
		c.Salesforce.InstanceURL, c.Salesforce.APIVersion))
	b.WriteString(fmt.Sprintf("Load: {Object: %q, Operation: %q, MaxBatchBytes: %d, MaxBatchRows: %d, Workers: %d}, ",
		c.Load.Object, c.Load.Operation, c.Load.MaxBatchBytes, c.Load.MaxBatchRows, c.Load.Workers))
	b.WriteString(fmt.Sprintf("Staging: {Provider: %q}, ", c.Staging.Provider))
	b.WriteString(fmt.Sprintf("Database: {URL: %s, MaxConns: %d}, ", maskedOrUnset(c.Database.URL), c.Database.MaxConns))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func maskedOrUnset(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
