package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"narrative-server/internal/utils"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config содержит конфигурацию сервера историй
type Config struct {
	Env        string `envconfig:"ENV" default:"development"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`

	// Логирование
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"narrative_db"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Секрет, без envconfig тега
	DBPassword string `ignored:"true"`

	// Redis
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// RabbitMQ. Пустой URL отключает публикацию событий.
	RabbitMQURL      string `envconfig:"RABBITMQ_URL" default:""`
	StoryEventsQueue string `envconfig:"STORY_EVENTS_QUEUE" default:"story_events"`

	AI AIConfig

	// Сессии
	CommentInterval time.Duration `envconfig:"COMMENT_INTERVAL" default:"45s"`
	SessionIdleTTL  time.Duration `envconfig:"SESSION_IDLE_TTL" default:"2h"`
	NarrationTTL    time.Duration `envconfig:"NARRATION_TTL" default:"1h"`
	StoryCacheTTL   time.Duration `envconfig:"STORY_CACHE_TTL" default:"10m"`

	// HTTP
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimitPerMinute uint   `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
	TaskMaxActive      int    `envconfig:"TASK_MAX_ACTIVE" default:"10"`
}

// AIConfig - настройки внешних генераторов.
type AIConfig struct {
	ClientType  string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	BaseURL     string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	Model       string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	Timeout     time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	MaxAttempts int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	RetryDelay  time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"1s"`
	TTSModel    string        `envconfig:"AI_TTS_MODEL" default:"tts-1"`
	TTSVoice    string        `envconfig:"AI_TTS_VOICE" default:"onyx"`
	ImageModel  string        `envconfig:"AI_IMAGE_MODEL" default:"dall-e-3"`
	ImageSize   string        `envconfig:"AI_IMAGE_SIZE" default:"1024x1024"`
	// Секрет, без envconfig тега. Пустой ключ означает, что генераторы не настроены.
	APIKey string `ignored:"true"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// GetAllowedOrigins разбирает CORS_ALLOWED_ORIGINS.
func (c *Config) GetAllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	var err error
	cfg.DBPassword, err = utils.ReadSecret("db_password")
	if err != nil {
		return nil, err
	}

	// Ключ AI необязателен: без него сервер работает, но генерация недоступна.
	cfg.AI.APIKey, err = utils.ReadSecret("ai_api_key")
	if err != nil {
		cfg.AI.APIKey = strings.TrimSpace(os.Getenv("AI_API_KEY"))
	}

	return &cfg, nil
}

// LogSummary пишет в лог загруженную конфигурацию без секретов.
func (c *Config) LogSummary(logger *zap.Logger) {
	logger.Info("Конфигурация загружена",
		zap.String("env", c.Env),
		zap.String("port", c.ServerPort),
		zap.String("dbDSN", c.getMaskedDSN()),
		zap.String("redisAddr", c.RedisAddr),
		zap.Bool("eventsEnabled", c.RabbitMQURL != ""),
		zap.String("aiClientType", c.AI.ClientType),
		zap.String("aiBaseURL", c.AI.BaseURL),
		zap.String("aiModel", c.AI.Model),
		zap.Bool("aiKeyLoaded", c.AI.APIKey != ""),
		zap.Duration("commentInterval", c.CommentInterval),
	)
}

// getMaskedDSN возвращает DSN с замаскированным паролем для логирования
func (c *Config) getMaskedDSN() string {
	dsn := c.GetDSN()
	parts := strings.Split(dsn, "@")
	if len(parts) != 2 {
		return "[invalid dsn format]"
	}
	userInfo := strings.Split(parts[0], ":")
	if len(userInfo) >= 2 {
		userInfo[len(userInfo)-1] = "********"
	}
	return strings.Join(userInfo, ":") + "@" + parts[1]
}
