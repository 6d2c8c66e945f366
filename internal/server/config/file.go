package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/chefbook/internal/flagx"
	"github.com/dmitrijs2005/chefbook/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for JSON and YAML files. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Pointer fields distinguish "absent" from a zero value.
type FileConfig struct {
	HTTPAddr        *string         `json:"http_addr" yaml:"http_addr"`
	ShutdownTimeout *timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabaseDSN       *string         `json:"database_dsn" yaml:"database_dsn"`
	DBMaxOpenConns    *int            `json:"db_max_open_conns" yaml:"db_max_open_conns"`
	DBMaxIdleConns    *int            `json:"db_max_idle_conns" yaml:"db_max_idle_conns"`
	DBConnMaxLifetime *timex.Duration `json:"db_conn_max_lifetime" yaml:"db_conn_max_lifetime"`

	SecretKey                    *string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	BcryptCost                   *int            `json:"bcrypt_cost" yaml:"bcrypt_cost"`

	S3RootUser     *string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword *string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket       *string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       *string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint *string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3PublicURL    *string         `json:"s3_public_url" yaml:"s3_public_url"`
	PresignExpiry  *timex.Duration `json:"presign_expiry" yaml:"presign_expiry"`

	LogFormat *string `json:"log_format" yaml:"log_format"`
	LogLevel  *string `json:"log_level" yaml:"log_level"`

	RateLimit          *float64 `json:"rate_limit" yaml:"rate_limit"`
	RateBurst          *int     `json:"rate_burst" yaml:"rate_burst"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	SecureCookies      *bool    `json:"secure_cookies" yaml:"secure_cookies"`
}

// parseFile overlays values from the file named by -c/-config in args.
// Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
// Without the flag nothing is loaded.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("error decoding config file %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setDuration(&c.ShutdownTimeout, fc.ShutdownTimeout)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setInt(&c.DBMaxOpenConns, fc.DBMaxOpenConns)
	setInt(&c.DBMaxIdleConns, fc.DBMaxIdleConns)
	setDuration(&c.DBConnMaxLifetime, fc.DBConnMaxLifetime)
	setString(&c.SecretKey, fc.SecretKey)
	setDuration(&c.AccessTokenValidityDuration, fc.AccessTokenValidityDuration)
	setDuration(&c.RefreshTokenValidityDuration, fc.RefreshTokenValidityDuration)
	setInt(&c.BcryptCost, fc.BcryptCost)
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&c.S3PublicURL, fc.S3PublicURL)
	setDuration(&c.PresignExpiry, fc.PresignExpiry)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.RateLimit != nil {
		c.RateLimit = *fc.RateLimit
	}
	setInt(&c.RateBurst, fc.RateBurst)
	if fc.CORSAllowedOrigins != nil {
		c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
	if fc.SecureCookies != nil {
		c.SecureCookies = *fc.SecureCookies
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
