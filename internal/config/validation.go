package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/koltyakov/formexport/internal/logging"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverOracle:
		if c.DBDSN == "" {
			if err := c.validateOracleParts(); err != nil {
				return err
			}
		}
	case DriverSQLite:
		if c.DBDSN == "" {
			return fmt.Errorf("db_dsn is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("db_driver must be %q or %q, got %q", DriverOracle, DriverSQLite, c.DBDriver)
	}

	if c.StateFile == "" {
		return fmt.Errorf("state_file is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Format == "" {
		return fmt.Errorf("format is required")
	}
	if c.FlushEvery <= 0 {
		return fmt.Errorf("flush_every must be positive")
	}

	// Storage links are rewritten only when both parts are known
	if (c.StorageHost == "") != (c.StorageContainer == "") {
		return fmt.Errorf("storage_host and storage_container must be set together")
	}
	if strings.Contains(c.StorageContainer, "/") {
		return fmt.Errorf("storage_container must not contain '/'")
	}
	if c.FileAccessBase != "" && !strings.HasPrefix(c.FileAccessBase, "/") {
		if _, err := url.ParseRequestURI(c.FileAccessBase); err != nil {
			return fmt.Errorf("file_access_base must be an absolute path or URL: %w", err)
		}
	}

	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}

	// Validate timeouts
	if c.ConnectTimeout < time.Second || c.ConnectTimeout > time.Hour {
		return fmt.Errorf("connect_timeout must be between 1s and 1h")
	}
	if c.QueryTimeout < time.Second || c.QueryTimeout > 24*time.Hour {
		return fmt.Errorf("query_timeout must be between 1s and 24h")
	}

	// Validate S3 configuration
	if err := c.S3.Validate(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateOracleParts() error {
	if c.DBUser == "" {
		return fmt.Errorf("db_user is required")
	}
	if c.DBPassword == "" {
		return fmt.Errorf("db_password is required (set %s env var)", EnvDBPassword)
	}
	if c.DBHost == "" {
		return fmt.Errorf("db_host is required")
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("db_port must be between 1 and 65535")
	}
	if c.DBService == "" {
		return fmt.Errorf("db_service is required")
	}
	return nil
}

// ValidatePaths checks if paths are accessible
func (c *Config) ValidatePaths() error {
	// Check the column layout file exists and is readable
	if c.ColumnsFile != "" {
		if err := validateFileReadable(c.ColumnsFile); err != nil {
			return fmt.Errorf("columns_file validation failed: %w", err)
		}
	}

	// Check output directory can be created/written
	if err := validateDirWritable(c.OutputDir); err != nil {
		return fmt.Errorf("output_dir validation failed: %w", err)
	}

	// Check state file parent directory is writable
	stateDir := filepath.Dir(c.StateFile)
	if stateDir != "." {
		if err := validateDirWritable(stateDir); err != nil {
			return fmt.Errorf("state file directory validation failed: %w", err)
		}
	}

	return nil
}

// validateFileReadable checks if a regular file exists and can be opened
func validateFileReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("failed to access file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("is a directory: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file not readable: %w", err)
	}
	f.Close()

	return nil
}

// validateDirWritable checks if a directory can be written to
func validateDirWritable(path string) error {
	// If directory doesn't exist, try to create it
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("cannot create directory: %w", err)
		}
		return nil
	}

	// Directory exists, check if writable
	f, err := os.CreateTemp(path, ".write_test_*")
	if err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return nil
}
