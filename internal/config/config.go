// Package config предоставляет структуры и функции для загрузки конфигурации
// из YAML-файла с переопределением через переменные окружения.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Провайдеры почты.
const (
	MailSMTP     = "smtp"
	MailPostmark = "postmark"
)

// ErrInvalidConfig возвращается, если конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string          `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string          `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	HTTPServer              HTTPServer      `yaml:"http_server"`
	GRPCServer              GRPCServer      `yaml:"grpc_server"`
	Storage                 Storage         `yaml:"storage"`
	Mongo                   Mongo           `yaml:"mongo"`
	RedisConnection         RedisConnection `yaml:"redis_connection"`
	JWTToken                JWTToken        `yaml:"jwttoken"`
	Payment                 Payment         `yaml:"payment"`
	Plans                   []Plan          `yaml:"plans"`
	RabbitMQ                RabbitMQ        `yaml:"rabbitmq"`
	Mail                    Mail            `yaml:"mail"`
	RateLimit               RateLimit       `yaml:"rate_limit"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// GRPCServer адрес сервиса проверки здоровья.
type GRPCServer struct {
	Address string `yaml:"address" env:"GRPC_ADDRESS" env-default:":50051"`
}

// Storage выбор драйвера хранилища.
type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
}

// Mongo параметры подключения к MongoDB.
type Mongo struct {
	URI            string        `yaml:"uri" env:"MONGO_URI"`
	Database       string        `yaml:"database" env:"MONGO_DATABASE" env-default:"policy_summarizer"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env-default:"10s"`
	RetryAttempts  int           `yaml:"retry_attempts" env-default:"3"`
	RetryInterval  time.Duration `yaml:"retry_interval" env-default:"5s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Payment параметры платёжного шлюза.
type Payment struct {
	KeyID              string        `yaml:"key_id" env:"PAYMENT_KEY_ID"`
	KeySecret          string        `yaml:"key_secret" env:"PAYMENT_KEY_SECRET"`
	APIURL             string        `yaml:"api_url" env:"PAYMENT_API_URL" env-default:"https://api.razorpay.com/v1"`
	Timeout            time.Duration `yaml:"timeout" env-default:"10s"`
	Currency           string        `yaml:"currency" env-default:"INR"`
	SubscriptionWindow time.Duration `yaml:"subscription_window" env-default:"720h"`
}

// Plan строка прайс-листа.
type Plan struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Price    int64  `yaml:"price"`
	Currency string `yaml:"currency"`
	Interval string `yaml:"interval"`
}

// RabbitMQ параметры шины событий.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	Enabled    bool          `yaml:"enabled" env:"RABBITMQ_ENABLED"`
}

// Mail параметры отправки уведомлений.
type Mail struct {
	Provider             string `yaml:"provider" env:"MAIL_PROVIDER" env-default:"smtp"`
	From                 string `yaml:"from" env:"MAIL_FROM"`
	SMTPHost             string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort             string `yaml:"smtp_port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser             string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPass             string `yaml:"smtp_pass" env:"SMTP_PASS"`
	PostmarkServerToken  string `yaml:"postmark_server_token" env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `yaml:"postmark_account_token" env:"POSTMARK_ACCOUNT_TOKEN"`
}

// RateLimit параметры ограничителя запросов.
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"5"`
	Burst int     `yaml:"burst" env-default:"10"`
}

// DefaultPlans тарифы, используемые при пустом разделе plans.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "basic", Name: "Basic", Price: 49, Currency: "INR", Interval: "monthly"},
		{ID: "premium", Name: "Premium", Price: 499, Currency: "INR", Interval: "yearly"},
	}
}

// Load читает конфиг из файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultPlans()
	}
	for i := range cfg.Plans {
		if cfg.Plans[i].Currency == "" {
			cfg.Plans[i].Currency = cfg.Payment.Currency
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
// Переменные из .env в рабочей директории подхватываются, если файл есть.
func MustLoad() *Config {
	_ = godotenv.Load()
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.StorageConnectionString == "" {
			return fmt.Errorf("%w: storage_connection_string is required for postgres", ErrInvalidConfig)
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("%w: mongo.uri is required for mongo", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Payment.SubscriptionWindow <= 0 {
		return fmt.Errorf("%w: payment.subscription_window must be positive", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Plans))
	for _, p := range c.Plans {
		if p.ID == "" || p.Price <= 0 {
			return fmt.Errorf("%w: plan %q must have id and positive price", ErrInvalidConfig, p.ID)
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("%w: duplicate plan %q", ErrInvalidConfig, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	switch c.Mail.Provider {
	case MailSMTP, MailPostmark:
	default:
		return fmt.Errorf("%w: unknown mail provider %q", ErrInvalidConfig, c.Mail.Provider)
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "****" + dsn[at:]
}

func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Env: %s\n", c.Env)
	fmt.Fprintf(&b, "HTTPServer: %s timeout=%s idle=%s\n", c.HTTPServer.AddressHTTP, c.HTTPServer.TimeoutHTTP, c.HTTPServer.IdleTimeout)
	fmt.Fprintf(&b, "GRPCServer: %s\n", c.GRPCServer.Address)
	fmt.Fprintf(&b, "Storage: %s\n", c.Storage.Driver)
	fmt.Fprintf(&b, "StorageConnectionString: %s\n", maskDSN(c.StorageConnectionString))
	fmt.Fprintf(&b, "Mongo: %s db=%s\n", maskDSN(c.Mongo.URI), c.Mongo.Database)
	fmt.Fprintf(&b, "Redis: %s user=%s password=%s db=%d\n", c.RedisConnection.AddressRedis, c.RedisConnection.User, mask(c.RedisConnection.Password), c.RedisConnection.DB)
	fmt.Fprintf(&b, "JWTToken: secret=%s ttl=%s\n", mask(c.JWTToken.JWTSecretKey), c.JWTToken.TokenTTL)
	fmt.Fprintf(&b, "Payment: key_id=%s key_secret=%s api=%s currency=%s window=%s\n",
		c.Payment.KeyID, mask(c.Payment.KeySecret), c.Payment.APIURL, c.Payment.Currency, c.Payment.SubscriptionWindow)
	for _, p := range c.Plans {
		fmt.Fprintf(&b, "Plan: %s %d %s %s\n", p.ID, p.Price, p.Currency, p.Interval)
	}
	fmt.Fprintf(&b, "RabbitMQ: %s enabled=%t\n", maskDSN(c.RabbitMQ.URL), c.RabbitMQ.Enabled)
	fmt.Fprintf(&b, "Mail: %s from=%s smtp=%s:%s smtp_pass=%s postmark=%s\n",
		c.Mail.Provider, c.Mail.From, c.Mail.SMTPHost, c.Mail.SMTPPort, mask(c.Mail.SMTPPass), mask(c.Mail.PostmarkServerToken))
	fmt.Fprintf(&b, "RateLimit: rps=%g burst=%d\n", c.RateLimit.RPS, c.RateLimit.Burst)
	return b.String()
}
