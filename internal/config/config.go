package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config содержит конфигурацию приложения
type Config struct {
	Env     string `envconfig:"APP_ENV" default:"production"`
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Video   VideoConfig
	Tencent TencentConfig
	Session SessionConfig
	Story   StoryConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port               string        `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout        time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"` // История с картинкой может генерироваться долго
	IdleTimeout        time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout    time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	CORSAllowedOrigins string        `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	VideoRateLimit     uint          `envconfig:"VIDEO_RATE_LIMIT" default:"3"`
	VideoRateWindow    time.Duration `envconfig:"VIDEO_RATE_WINDOW" default:"1m"`
	MaxBodyBytes       int64         `envconfig:"SERVER_MAX_BODY_BYTES" default:"16777216"`
}

// LogConfig содержит настройки логгера
type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding   string `envconfig:"LOG_ENCODING" default:"json"`
	OutputPath string `envconfig:"LOG_OUTPUT_PATH"`
}

// AIConfig содержит настройки языковой модели (Ark совместим с OpenAI API)
type AIConfig struct {
	ClientType         string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	BaseURL            string        `envconfig:"ARK_BASE_URL" default:"https://ark.cn-beijing.volces.com/api/v3"`
	Model              string        `envconfig:"ARK_MODEL"`
	APIKey             string        `envconfig:"ARK_API_KEY"`
	Timeout            time.Duration `envconfig:"AI_TIMEOUT" default:"90s"`
	Temperature        float32       `envconfig:"AI_TEMPERATURE" default:"0.7"`
	HistoryTokenBudget int           `envconfig:"AI_HISTORY_TOKEN_BUDGET" default:"3000"`
}

// VideoConfig содержит настройки генерации видео
type VideoConfig struct {
	BaseURL        string        `envconfig:"ARK_VIDEO_BASE_URL" default:"https://ark.cn-beijing.volces.com/api/v3"`
	Model          string        `envconfig:"ARK_VIDEO_MODEL" default:"doubao-seedance-1-0-pro-250528"`
	APIKey         string        `envconfig:"ARK_VIDEO_API_KEY"`
	RequestTimeout time.Duration `envconfig:"VIDEO_REQUEST_TIMEOUT" default:"30s"`
	PollInterval   time.Duration `envconfig:"VIDEO_POLL_INTERVAL" default:"5s"`
	MaxAttempts    int           `envconfig:"VIDEO_POLL_MAX_ATTEMPTS" default:"120"`
	PromptMaxRunes int           `envconfig:"VIDEO_PROMPT_MAX_RUNES" default:"500"`
	Resolution     string        `envconfig:"VIDEO_RESOLUTION" default:"720p"`
	Duration       int           `envconfig:"VIDEO_DURATION" default:"12"`
	CameraFixed    bool          `envconfig:"VIDEO_CAMERA_FIXED" default:"false"`
	Watermark      bool          `envconfig:"VIDEO_WATERMARK" default:"true"`
}

// TencentConfig содержит настройки Tencent Cloud TTS/ASR
type TencentConfig struct {
	SecretID       string        `envconfig:"TENCENT_SECRET_ID"`
	SecretKey      string        `envconfig:"TENCENT_SECRET_KEY"`
	Region         string        `envconfig:"TENCENT_REGION" default:"ap-beijing"`
	Endpoint       string        `envconfig:"TENCENT_ENDPOINT"` // Пусто - https://<service>.tencentcloudapi.com
	Timeout        time.Duration `envconfig:"TENCENT_TIMEOUT" default:"30s"`
	VoiceType      int           `envconfig:"TTS_VOICE_TYPE" default:"1001"`
	MaxTextRunes   int           `envconfig:"TTS_MAX_TEXT_RUNES" default:"500"`
	SpeechFallback bool          `envconfig:"TTS_SPEECH_FALLBACK" default:"true"`
	ASREngine      string        `envconfig:"ASR_ENGINE" default:"16k_zh"`
}

// SessionConfig содержит настройки сессий
type SessionConfig struct {
	JWTSecret     string        `envconfig:"SESSION_JWT_SECRET"`
	TokenTTL      time.Duration `envconfig:"SESSION_TOKEN_TTL" default:"24h"`
	IdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"2h"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
	MaxTasks      int           `envconfig:"SESSION_MAX_TASKS" default:"4"`
	ClipTTL       time.Duration `envconfig:"AUDIO_CLIP_TTL" default:"30m"`
}

// StoryConfig содержит настройки сценария разговора
type StoryConfig struct {
	GuidingQuestions bool `envconfig:"STORY_GUIDING_QUESTIONS" default:"true"`
}

// GetAllowedOrigins разбивает CORSAllowedOrigins на список.
func (c *Config) GetAllowedOrigins() []string {
	if c.Server.CORSAllowedOrigins == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(c.Server.CORSAllowedOrigins, " ", ""), ",")
}

// IsDevelopment сообщает, что сервис запущен в режиме разработки.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LoadConfig загружает конфигурацию из .env файла (если есть), переменных окружения и секретов
func LoadConfig(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("ошибка чтения %s: %w", envPath, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Ключи из переменных окружения приоритетнее docker secrets
	cfg.AI.APIKey = secretOrEnv(cfg.AI.APIKey, "ark_api_key")
	cfg.Video.APIKey = secretOrEnv(cfg.Video.APIKey, "ark_video_api_key")
	cfg.Tencent.SecretID = secretOrEnv(cfg.Tencent.SecretID, "tencent_secret_id")
	cfg.Tencent.SecretKey = secretOrEnv(cfg.Tencent.SecretKey, "tencent_secret_key")
	cfg.Session.JWTSecret = secretOrEnv(cfg.Session.JWTSecret, "session_jwt_secret")

	if cfg.Session.JWTSecret == "" {
		return nil, fmt.Errorf("SESSION_JWT_SECRET не задан")
	}
	if cfg.Video.PollInterval <= 0 || cfg.Video.MaxAttempts <= 0 {
		return nil, fmt.Errorf("VIDEO_POLL_INTERVAL и VIDEO_POLL_MAX_ATTEMPTS должны быть положительными")
	}

	return &cfg, nil
}

func secretOrEnv(value, secretName string) string {
	if value != "" {
		return value
	}
	secret, err := ReadSecret(secretName)
	if err != nil {
		return ""
	}
	return secret
}

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// LogSummary пишет в лог загруженную конфигурацию без секретов.
func (c *Config) LogSummary(logger *zap.Logger) {
	logger.Info("Configuration loaded",
		zap.String("env", c.Env),
		zap.String("port", c.Server.Port),
		zap.String("aiClientType", c.AI.ClientType),
		zap.String("aiBaseURL", c.AI.BaseURL),
		zap.String("aiModel", c.AI.Model),
		zap.Bool("aiKeySet", c.AI.APIKey != ""),
		zap.String("videoBaseURL", c.Video.BaseURL),
		zap.String("videoModel", c.Video.Model),
		zap.Bool("videoKeySet", c.Video.APIKey != ""),
		zap.Duration("videoPollInterval", c.Video.PollInterval),
		zap.Int("videoPollMaxAttempts", c.Video.MaxAttempts),
		zap.String("tencentRegion", c.Tencent.Region),
		zap.Bool("tencentCredentialsSet", c.Tencent.SecretID != "" && c.Tencent.SecretKey != ""),
		zap.Bool("guidingQuestions", c.Story.GuidingQuestions),
	)
}
