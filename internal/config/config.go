package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DB     DBConfig     `envPrefix:"DB_"`
	JWT    JWTConfig    `envPrefix:"JWT_"`
	Server ServerConfig `envPrefix:"SERVER_"`
	LDAP   LDAPConfig   `envPrefix:"LDAP_"`
	Google GoogleConfig `envPrefix:"GOOGLE_"`
	MinIO  MinIOConfig  `envPrefix:"MINIO_"`
	Audit  AuditConfig  `envPrefix:"AUDIT_"`
	Log    LogConfig    `envPrefix:"LOG_"`
}

type DBConfig struct {
	Driver     string `env:"DRIVER" envDefault:"postgres"`
	Host       string `env:"HOST" envDefault:"localhost"`
	Port       string `env:"PORT" envDefault:"5432"`
	User       string `env:"USER" envDefault:"circles"`
	Password   string `env:"PASSWORD" envDefault:"circles_secret"`
	Name       string `env:"NAME" envDefault:"circles"`
	SSLMode    string `env:"SSLMODE" envDefault:"disable"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"circles.db"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type JWTConfig struct {
	Secret          string `env:"SECRET" envDefault:"change-me-in-production"`
	ExpirationHours int    `env:"EXPIRATION_HOURS" envDefault:"24"`
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	FrontendURL    string        `env:"FRONTEND_URL" envDefault:"http://localhost:3001"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3001,http://127.0.0.1:3001" envSeparator:","`
}

type LDAPConfig struct {
	Enabled      bool   `env:"ENABLED" envDefault:"false"`
	URL          string `env:"URL" envDefault:"ldap://localhost:389"`
	BindDN       string `env:"BIND_DN"`
	BindPassword string `env:"BIND_PASSWORD"`
	SearchBase   string `env:"SEARCH_BASE" envDefault:"dc=example,dc=org"`
	UserFilter   string `env:"USER_FILTER" envDefault:"(uid=%s)"`
	EmailField   string `env:"EMAIL_FIELD" envDefault:"mail"`
	NameField    string `env:"NAME_FIELD" envDefault:"cn"`
}

type GoogleConfig struct {
	Enabled      bool     `env:"ENABLED" envDefault:"false"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL" envDefault:"http://localhost:8080/api/auth/google/callback"`
	Scopes       []string `env:"SCOPES" envDefault:"openid,email,profile" envSeparator:","`
}

type MinIOConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"false"`
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"circles"`
	SecretKey string `env:"SECRET_KEY" envDefault:"circles_secret"`
	Bucket    string `env:"BUCKET" envDefault:"circles-audit"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type AuditConfig struct {
	QueueSize      int           `env:"QUEUE_SIZE" envDefault:"1000"`
	ExportInterval time.Duration `env:"EXPORT_INTERVAL" envDefault:"1h"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.JWT.ExpirationHours <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS must be positive, got %d", cfg.JWT.ExpirationHours)
	}
	switch cfg.DB.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	return &cfg, nil
}
