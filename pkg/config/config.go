package config

import (
	"log"
	"os"
	"time"

	"Haven/pkg/cache"
	"Haven/pkg/logger"
	"Haven/pkg/notification"
	"Haven/pkg/util"
)

// config/config.go
type Config struct {
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`
	DBDriver  string `env:"DB_DRIVER"`
	DSN       string `env:"DSN"`
	Log       logger.LogConfig
	SMS       notification.SMSConfig
	Cache     cache.Config
	// 确认链接的外部域名，嵌入短信正文
	AckBaseURL string `env:"ACK_BASE_URL"`
	// 升级检查延迟（默认 60s）
	EscalationDelay time.Duration `env:"ESCALATION_DELAY"`
	// 位置轨迹保留天数（默认 7 天）
	PingRetentionDays int `env:"PING_RETENTION_DAYS"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	err := util.LoadEnv(env)
	if err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		Addr:      util.GetEnvDefault("ADDR", ":8080"),
		Mode:      util.GetEnv("MODE"),
		APIPrefix: util.GetEnvDefault("API_PREFIX", "/api"),
		DBDriver:  util.GetEnv("DB_DRIVER"),
		DSN:       util.GetEnv("DSN"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		SMS: notification.SMSConfig{
			APIKey:      util.GetEnv("SMS_API_KEY"),
			SenderID:    util.GetEnv("SMS_SENDER_ID"),
			CountryCode: util.GetEnvDefault("SMS_COUNTRY_CODE", "254"),
			Endpoint:    util.GetEnv("SMS_ENDPOINT"),
			Timeout:     util.GetDurationEnv("SMS_TIMEOUT", 8*time.Second),
			MaxBodyLen:  int(util.GetIntEnv("SMS_MAX_BODY_LEN")),
		},
		Cache: cache.Config{
			Type: util.GetEnv("CACHE_TYPE"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnv("CACHE_REDIS_ADDR"),
				Password: util.GetEnv("CACHE_REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("CACHE_REDIS_DB")),
			},
		},
		AckBaseURL:        util.GetEnvDefault("ACK_BASE_URL", "https://haven.example.org"),
		EscalationDelay:   util.GetDurationEnv("ESCALATION_DELAY", 60*time.Second),
		PingRetentionDays: int(util.GetIntEnv("PING_RETENTION_DAYS")),
	}
	if GlobalConfig.PingRetentionDays <= 0 {
		GlobalConfig.PingRetentionDays = 7
	}
	return nil
}
