// Package config loads and validates service configuration from the
// environment. All keys use the SDS_ prefix (SDS_JWT_SECRET_KEY, ...).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	ListenAddress string `mapstructure:"listen_address"`
	Environment   string `mapstructure:"environment"` // "development" or "production"
	LogLevel      string `mapstructure:"log_level"`

	DatabaseURL     string `mapstructure:"database_url"`
	DatabaseMaxConn int32  `mapstructure:"database_max_connections"`
	DatabaseMinConn int32  `mapstructure:"database_min_connections"`

	JWTSecretKey             string `mapstructure:"jwt_secret_key"`
	JWTRefreshSecretKey      string `mapstructure:"jwt_refresh_secret_key"`
	JWTAlgorithm             string `mapstructure:"jwt_algorithm"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
	RefreshTokenExpireDays   int    `mapstructure:"refresh_token_expire_days"`

	Directory DirectoryConfig `mapstructure:",squash"`
	Cloud     CloudConfig     `mapstructure:",squash"`

	PasswordHistoryCount          int  `mapstructure:"password_history_count"`
	EnforcePasswordHistory        bool `mapstructure:"enforce_password_history"`
	PasswordExpirationDays        int  `mapstructure:"password_expiration_days"`
	EnforcePasswordExpiration     bool `mapstructure:"enforce_password_expiration"`
	PasswordResetTokenExpireHours int  `mapstructure:"password_reset_token_expire_hours"`

	MaxLoginAttempts      int `mapstructure:"max_login_attempts"`
	AccountLockoutMinutes int `mapstructure:"account_lockout_minutes"`

	MaxActiveSessionsPerUser        int `mapstructure:"max_active_sessions_per_user"`
	SessionInactivityTimeoutMinutes int `mapstructure:"session_inactivity_timeout_minutes"`
	SessionRetentionDays            int `mapstructure:"session_retention_days"`

	MaxUsersLimit    int  `mapstructure:"max_users_limit"`
	EnforceUserLimit bool `mapstructure:"enforce_user_limit"`

	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	RateLimitPerMinute   int      `mapstructure:"rate_limit_per_minute"`
	ResetRequestsPerHour int      `mapstructure:"reset_requests_per_hour"`
	HTTPSRedirect        bool     `mapstructure:"https_redirect"`
	SecurityHeaders      bool     `mapstructure:"security_headers"`

	Email EmailConfig `mapstructure:",squash"`
	MQTT  MQTTConfig  `mapstructure:",squash"`
}

// DirectoryConfig configures the LDAP directory provider.
type DirectoryConfig struct {
	Enabled        bool          `mapstructure:"directory_enabled"`
	Host           string        `mapstructure:"directory_host"`
	Port           int           `mapstructure:"directory_port"`
	UseTLS         bool          `mapstructure:"directory_use_tls"`
	BaseDN         string        `mapstructure:"directory_base_dn"`
	UserDNTemplate string        `mapstructure:"directory_user_dn_template"`
	BindDN         string        `mapstructure:"directory_bind_dn"`
	BindPassword   string        `mapstructure:"directory_bind_password"`
	SearchFilter   string        `mapstructure:"directory_search_filter"`
	Timeout        time.Duration `mapstructure:"directory_timeout"`
}

// CloudConfig configures the cloud-identity provider.
type CloudConfig struct {
	Enabled      bool   `mapstructure:"cloud_enabled"`
	TenantID     string `mapstructure:"cloud_tenant_id"`
	ClientID     string `mapstructure:"cloud_client_id"`
	ClientSecret string `mapstructure:"cloud_client_secret"`
	RedirectURI  string `mapstructure:"cloud_redirect_uri"`
	TokenURL     string `mapstructure:"cloud_token_url"`
	UserInfoURL  string `mapstructure:"cloud_userinfo_url"`
}

// EmailConfig configures the notification dispatcher back-end.
type EmailConfig struct {
	Backend         string `mapstructure:"email_backend"` // smtp, api_service, api_user
	From            string `mapstructure:"email_from"`
	CoordinatorAddr string `mapstructure:"email_coordinator_address"`
	SMTPHost        string `mapstructure:"smtp_host"`
	SMTPPort        int    `mapstructure:"smtp_port"`
	SMTPUsername    string `mapstructure:"smtp_username"`
	SMTPPassword    string `mapstructure:"smtp_password"`
	APIEndpoint     string `mapstructure:"email_api_endpoint"`
	APITokenURL     string `mapstructure:"email_api_token_url"`
	APIClientID     string `mapstructure:"email_api_client_id"`
	APIClientSecret string `mapstructure:"email_api_client_secret"`
	DelegatedUser   string `mapstructure:"email_delegated_user"`
	UserAccessToken string `mapstructure:"email_user_access_token"`
}

// MQTTConfig configures the event-bus publisher.
type MQTTConfig struct {
	Enabled    bool   `mapstructure:"mqtt_enabled"`
	BrokerURL  string `mapstructure:"mqtt_broker_url"`
	ClientID   string `mapstructure:"mqtt_client_id"`
	Username   string `mapstructure:"mqtt_username"`
	Password   string `mapstructure:"mqtt_password"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SDS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindKeys(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_address", ":8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_max_connections", 20)
	v.SetDefault("database_min_connections", 5)
	v.SetDefault("jwt_algorithm", "HS256")
	v.SetDefault("access_token_expire_minutes", 30)
	v.SetDefault("refresh_token_expire_days", 7)
	v.SetDefault("password_history_count", 5)
	v.SetDefault("enforce_password_history", true)
	v.SetDefault("password_expiration_days", 90)
	v.SetDefault("enforce_password_expiration", false)
	v.SetDefault("password_reset_token_expire_hours", 1)
	v.SetDefault("max_login_attempts", 5)
	v.SetDefault("account_lockout_minutes", 30)
	v.SetDefault("max_active_sessions_per_user", 5)
	v.SetDefault("session_inactivity_timeout_minutes", 60)
	v.SetDefault("session_retention_days", 30)
	v.SetDefault("max_users_limit", 0)
	v.SetDefault("enforce_user_limit", false)
	v.SetDefault("cors_allowed_origins", []string{})
	v.SetDefault("rate_limit_per_minute", 120)
	v.SetDefault("reset_requests_per_hour", 3)
	v.SetDefault("https_redirect", false)
	v.SetDefault("security_headers", true)
	v.SetDefault("directory_port", 389)
	v.SetDefault("directory_timeout", 10*time.Second)
	v.SetDefault("email_backend", "smtp")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("mqtt_client_id", "sds-core")
}

// bindKeys makes AutomaticEnv see keys that have no default.
func bindKeys(v *viper.Viper) {
	for _, key := range []string{
		"database_url", "jwt_secret_key", "jwt_refresh_secret_key",
		"directory_enabled", "directory_host", "directory_use_tls",
		"directory_base_dn", "directory_user_dn_template", "directory_bind_dn",
		"directory_bind_password", "directory_search_filter",
		"cloud_enabled", "cloud_tenant_id", "cloud_client_id",
		"cloud_client_secret", "cloud_redirect_uri", "cloud_token_url",
		"cloud_userinfo_url",
		"email_from", "email_coordinator_address", "smtp_host",
		"smtp_username", "smtp_password", "email_api_endpoint",
		"email_api_token_url", "email_api_client_id", "email_api_client_secret",
		"email_delegated_user", "email_user_access_token",
		"mqtt_enabled", "mqtt_broker_url", "mqtt_username", "mqtt_password",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate enforces the startup configuration contract.
func (c *Config) Validate() error {
	if c.JWTSecretKey == "" || c.JWTRefreshSecretKey == "" {
		return fmt.Errorf("configuration: jwt_secret_key and jwt_refresh_secret_key are required")
	}
	if c.JWTSecretKey == c.JWTRefreshSecretKey {
		return fmt.Errorf("configuration: access and refresh secrets must differ")
	}
	if c.JWTAlgorithm != "HS256" {
		return fmt.Errorf("configuration: unsupported jwt_algorithm %q", c.JWTAlgorithm)
	}
	if c.AccessTokenExpireMinutes <= 0 || c.RefreshTokenExpireDays <= 0 {
		return fmt.Errorf("configuration: token lifetimes must be positive")
	}
	if time.Duration(c.AccessTokenExpireMinutes)*time.Minute >
		time.Duration(c.RefreshTokenExpireDays)*24*time.Hour {
		return fmt.Errorf("configuration: access lifetime exceeds refresh lifetime")
	}
	if c.MaxLoginAttempts <= 0 {
		return fmt.Errorf("configuration: max_login_attempts must be positive")
	}
	if c.MaxActiveSessionsPerUser <= 0 {
		return fmt.Errorf("configuration: max_active_sessions_per_user must be positive")
	}
	if c.Directory.Enabled && c.Directory.Host == "" {
		return fmt.Errorf("configuration: directory_host required when directory provider enabled")
	}
	if c.Cloud.Enabled && (c.Cloud.ClientID == "" || c.Cloud.TokenURL == "") {
		return fmt.Errorf("configuration: cloud_client_id and cloud_token_url required when cloud provider enabled")
	}
	return nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTTL returns the configured refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

// LockoutWindow returns the account lockout duration.
func (c *Config) LockoutWindow() time.Duration {
	return time.Duration(c.AccountLockoutMinutes) * time.Minute
}

// ResetTokenTTL returns the reset token lifetime.
func (c *Config) ResetTokenTTL() time.Duration {
	return time.Duration(c.PasswordResetTokenExpireHours) * time.Hour
}

// PasswordMaxAge returns the configured password lifetime.
func (c *Config) PasswordMaxAge() time.Duration {
	return time.Duration(c.PasswordExpirationDays) * 24 * time.Hour
}

// SessionRetention returns how long invalid sessions are kept before the
// sweeper hard-deletes them.
func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionDays) * 24 * time.Hour
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
