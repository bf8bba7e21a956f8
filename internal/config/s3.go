package config

import (
	"fmt"
	"path"
	"strings"
)

// S3Config holds S3 destination configuration
type S3Config struct {
	Bucket       string `mapstructure:"s3_bucket"`
	Prefix       string `mapstructure:"s3_prefix"`
	Region       string `mapstructure:"s3_region"`
	AccessKey    string `mapstructure:"s3_access_key"`
	SecretKey    string `mapstructure:"s3_secret_key"`
	SessionToken string `mapstructure:"s3_session_token"`
	Endpoint     string `mapstructure:"s3_endpoint"` // For MinIO, Wasabi, etc.
}

// Enabled reports whether an S3 destination is configured
func (c *S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Validate checks if S3 configuration is valid
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return nil
	}
	if strings.ContainsAny(c.Bucket, "/ ") {
		return fmt.Errorf("s3_bucket must be a bare bucket name, got %q", c.Bucket)
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("s3_access_key and s3_secret_key must be set together")
	}

	// Clean up prefix - ensure it doesn't start/end with slash
	c.Prefix = strings.Trim(c.Prefix, "/")
	if c.Prefix != "" {
		c.Prefix += "/"
	}

	return nil
}

// Key returns the S3 key joining the prefix and parts with slashes
func (c *S3Config) Key(parts ...string) string {
	rel := path.Join(parts...)
	if c.Prefix == "" {
		return rel
	}
	return path.Join(c.Prefix, rel)
}

// ExportKey returns the object key of an export file, grouped by form and run.
// Layout: {prefix}exports/{formId}/{runId}/{fileName}
func (c *S3Config) ExportKey(formID, runID, fileName string) string {
	if formID == "" {
		formID = "unknown"
	}
	return c.Key("exports", formID, runID, fileName)
}

// IsMinIO returns true if the configuration appears to be for MinIO or similar S3-compatible service
func (c *S3Config) IsMinIO() bool {
	return c.Endpoint != "" && !strings.Contains(c.Endpoint, "amazonaws.com")
}
