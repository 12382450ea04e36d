package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config определяет структуру конфигурации всего приложения целиком
type Config struct {
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
	Kafka      `yaml:"kafka"`
	Logger     `yaml:"logger"`
	Cache      `yaml:"cache"`
	RateLimit  `yaml:"rate_limit"`
	Search     `yaml:"search"`
	Auth       `yaml:"auth"`
	Storage    `yaml:"storage"`
	Metrics    `yaml:"metrics"`
}

// HTTPServer содержит конфигурацию для HTTP-сервера
type HTTPServer struct {
	Port    string        `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// Postgres содержит конфигурацию для подключения к базе данных
type Postgres struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

// Kafka содержит конфигурацию для подключения к кафке
type Kafka struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	GroupID     string   `yaml:"group_id"`
	EventsTopic string   `yaml:"events_topic"`
}

// Logger содержит конфигурацию для логгера
type Logger struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// QueryTimes — время устаревания и время жизни неиспользуемой записи кэша
type QueryTimes struct {
	StaleTime time.Duration `yaml:"stale_time"`
	GCTime    time.Duration `yaml:"gc_time"`
}

// Cache содержит времена кэширования по видам запросов
type Cache struct {
	Stats         QueryTimes    `yaml:"stats"`
	Orders        QueryTimes    `yaml:"orders"`
	Search        QueryTimes    `yaml:"search"`
	Categories    QueryTimes    `yaml:"categories"`
	Products      QueryTimes    `yaml:"products"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Limit — бюджет запросов в фиксированном окне
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// RateLimit содержит лимиты публичных эндпоинтов
type RateLimit struct {
	PhoneSearch Limit `yaml:"phone_search"`
	OrderNumber Limit `yaml:"order_number"`
	// SweepThreshold — размер таблицы, после которого чистятся протухшие записи
	SweepThreshold int `yaml:"sweep_threshold"`
}

// Search содержит параметры списка заказов
type Search struct {
	Debounce   time.Duration `yaml:"debounce"`
	PageSize   int           `yaml:"page_size"`
	MaxResults uint64        `yaml:"max_results"`
}

// Auth содержит параметры проверки админских токенов
type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// Storage содержит конфигурацию хранилища картинок
type Storage struct {
	Driver        string `yaml:"driver"`
	LocalDir      string `yaml:"local_dir"`
	LocalURL      string `yaml:"local_url"`
	S3Region      string `yaml:"s3_region"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// Metrics содержит конфигурацию эндпоинта метрик
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MustLoad загружает конфигурацию из файла по указанному пути
// в случае ошибки программа завершается с фатальной ошибкой
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// Load читает yaml, подтягивает .env (если он есть) и заполняет значения по умолчанию
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// .env необязателен, секреты в проде приходят обычными переменными окружения
	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// Path возвращает путь к конфигу из CONFIG_PATH или путь по умолчанию
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"POSTGRES_PASSWORD":  &c.Postgres.Password,
		"AUTH_JWT_SECRET":    &c.Auth.JWTSecret,
		"S3_BUCKET":          &c.Storage.S3Bucket,
		"S3_REGION":          &c.Storage.S3Region,
		"S3_PUBLIC_BASE_URL": &c.Storage.PublicBaseURL,
		"STORAGE_DRIVER":     &c.Storage.Driver,
	}
	for env, dst := range overrides {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	setTimes := func(t *QueryTimes, stale, gc time.Duration) {
		if t.StaleTime <= 0 {
			t.StaleTime = stale
		}
		if t.GCTime <= 0 {
			t.GCTime = gc
		}
	}
	setTimes(&c.Cache.Stats, 5*time.Minute, 10*time.Minute)
	setTimes(&c.Cache.Orders, 2*time.Minute, 5*time.Minute)
	setTimes(&c.Cache.Search, time.Minute, 3*time.Minute)
	setTimes(&c.Cache.Categories, 5*time.Minute, 10*time.Minute)
	setTimes(&c.Cache.Products, 5*time.Minute, 10*time.Minute)
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = time.Minute
	}

	setLimit := func(l *Limit, max int) {
		if l.MaxRequests <= 0 {
			l.MaxRequests = max
		}
		if l.Window <= 0 {
			l.Window = time.Minute
		}
	}
	setLimit(&c.RateLimit.PhoneSearch, 10)
	setLimit(&c.RateLimit.OrderNumber, 20)
	if c.RateLimit.SweepThreshold <= 0 {
		c.RateLimit.SweepThreshold = 10000
	}

	if c.Search.Debounce <= 0 {
		c.Search.Debounce = 300 * time.Millisecond
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 50
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 1000
	}

	if c.HTTPServer.Port == "" {
		c.HTTPServer.Port = ":8080"
	}
	if c.HTTPServer.Timeout <= 0 {
		c.HTTPServer.Timeout = 10 * time.Second
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "order-events"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./storage/uploads"
	}
	if c.Storage.LocalURL == "" {
		c.Storage.LocalURL = "/uploads"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}
