package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// mongoSchemePattern matches the connection-string schemes the driver accepts.
var mongoSchemePattern = regexp.MustCompile(`(?i)^mongodb(\+srv)?://`)

// DefaultAllowedOrigins are the browser origins the game is served from.
var DefaultAllowedOrigins = []string{
	"https://www.bometgame.fun",
	"https://bometgame.fun",
	"http://localhost:3000",
	"http://localhost:5500",
	"http://127.0.0.1:5500",
}

// AppConfig holds the complete configuration for the application
type AppConfig struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	ServiceName string         `mapstructure:"service_name"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Admin       AdminConfig    `mapstructure:"admin"`
	Leaderboard BoardConfig    `mapstructure:"leaderboard"`
	MongoDB     MongoConfig    `mapstructure:"mongodb"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Feed        FeedConfig     `mapstructure:"feed"`
	Archive     ArchiveConfig  `mapstructure:"archive"`
}

type HTTPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	StaticDir      string        `mapstructure:"static_dir"`
	WelcomePage    string        `mapstructure:"welcome_page"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// Addr joins host and port for net/http.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// AdminConfig holds the shared secret for destructive operations. An empty
// key disables them.
type AdminConfig struct {
	Key string `mapstructure:"key"`
}

type BoardConfig struct {
	MaxLimit int `mapstructure:"max_limit"`
}

type MongoConfig struct {
	URI              string        `mapstructure:"uri"`
	Database         string        `mapstructure:"database"`
	Collection       string        `mapstructure:"collection"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type PostgresConfig struct {
	URI             string        `mapstructure:"uri"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type FeedConfig struct {
	ResumeTokenPath string `mapstructure:"resume_token_path"`
	ResumeTokenKey  string `mapstructure:"resume_token_key"`
	MetricsAddr     string `mapstructure:"metrics_addr"`
}

type ArchiveConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	WorkerCount   int           `mapstructure:"worker_count"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "leaderboard")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.welcome_page", "/pages/welcome.html")
	v.SetDefault("http.max_body_bytes", 64<<10)
	v.SetDefault("http.shutdown_grace", 5*time.Second)
	v.SetDefault("admin.key", "")
	v.SetDefault("leaderboard.max_limit", 1000)
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017/bomet")
	v.SetDefault("mongodb.database", "bomet")
	v.SetDefault("mongodb.collection", "scores")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)
	v.SetDefault("mongodb.operation_timeout", 5*time.Second)
	v.SetDefault("kafka.topic", "bomet.scores")
	v.SetDefault("kafka.group_id", "bomet-archiver")
	v.SetDefault("postgres.max_conns", 20)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("feed.resume_token_path", "scores_resume_token.bin")
	v.SetDefault("feed.resume_token_key", "bomet:feed:resume_token")
	v.SetDefault("feed.metrics_addr", ":8080")
	v.SetDefault("archive.batch_size", 500)
	v.SetDefault("archive.flush_interval", 500*time.Millisecond)
	v.SetDefault("archive.worker_count", 4)
	v.SetDefault("archive.metrics_addr", ":8081")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// The short names are what the hosting platform sets.
	v.BindEnv("service_name", "SERVICE_NAME")
	v.BindEnv("environment", "ENVIRONMENT")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("http.host", "HOST")
	v.BindEnv("http.port", "PORT")
	v.BindEnv("http.allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("http.static_dir", "STATIC_DIR")
	v.BindEnv("admin.key", "ADMIN_KEY")
	v.BindEnv("leaderboard.max_limit", "LEADERBOARD_MAX_LIMIT")
	v.BindEnv("mongodb.uri", "MONGODB_URI")
	v.BindEnv("mongodb.database", "MONGODB_DATABASE")
	v.BindEnv("mongodb.collection", "MONGODB_COLLECTION")
	v.BindEnv("mongodb.operation_timeout", "MONGODB_OPERATION_TIMEOUT")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	v.BindEnv("postgres.uri", "POSTGRES_URI")
	v.BindEnv("postgres.max_conns", "POSTGRES_MAX_CONNS")
	v.BindEnv("postgres.min_conns", "POSTGRES_MIN_CONNS")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("feed.resume_token_path", "FEED_RESUME_TOKEN_PATH")
	v.BindEnv("archive.batch_size", "ARCHIVE_BATCH_SIZE")
	v.BindEnv("archive.flush_interval", "ARCHIVE_FLUSH_INTERVAL")
	v.BindEnv("archive.worker_count", "ARCHIVE_WORKER_COUNT")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Lists arrive from the environment as comma separated strings.
	config.Kafka.Brokers = splitList(config.Kafka.Brokers, v.GetString("kafka.brokers"))
	config.HTTP.AllowedOrigins = splitList(config.HTTP.AllowedOrigins, v.GetString("http.allowed_origins"))
	if len(config.HTTP.AllowedOrigins) == 0 {
		config.HTTP.AllowedOrigins = append([]string(nil), DefaultAllowedOrigins...)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func splitList(parsed []string, raw string) []string {
	if len(parsed) == 0 && raw != "" {
		parsed = []string{raw}
	}
	var out []string
	for _, item := range parsed {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Validate checks the settings every service depends on
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if err := ValidateMongoURI(c.MongoDB.URI); err != nil {
		return err
	}
	if c.MongoDB.Database == "" {
		return errors.New("mongodb.database is required")
	}
	if c.MongoDB.Collection == "" {
		return errors.New("mongodb.collection is required")
	}
	if c.MongoDB.OperationTimeout <= 0 {
		return errors.New("mongodb.operation_timeout must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range", c.HTTP.Port)
	}
	return nil
}

// ValidateFeed checks the settings the change feed needs on top of Validate.
func (c *AppConfig) ValidateFeed() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required")
	}
	if c.Redis.Addr == "" && c.Feed.ResumeTokenPath == "" {
		return errors.New("feed.resume_token_path or redis.addr is required")
	}
	return nil
}

// ValidateArchive checks the settings the archiver needs on top of Validate.
func (c *AppConfig) ValidateArchive() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required")
	}
	if c.Kafka.GroupID == "" {
		return errors.New("kafka.group_id is required")
	}
	if c.Postgres.URI == "" {
		return errors.New("postgres.uri is required")
	}
	if c.Archive.WorkerCount < 1 || c.Archive.BatchSize < 1 {
		return errors.New("archive.worker_count and archive.batch_size must be positive")
	}
	return nil
}

// ValidateMongoURI rejects connection strings the driver would not recognise.
// The offending value is reported masked.
func ValidateMongoURI(uri string) error {
	if !mongoSchemePattern.MatchString(uri) {
		return fmt.Errorf("mongodb.uri must start with mongodb:// or mongodb+srv:// (got %q)", MaskURI(uri))
	}
	return nil
}

// MaskURI hides the credentials of a connection string and shortens it for
// logs.
func MaskURI(uri string) string {
	masked := uri
	if i := strings.Index(uri, "://"); i >= 0 {
		rest := uri[i+3:]
		hostEnd := strings.IndexAny(rest, "/?")
		if hostEnd < 0 {
			hostEnd = len(rest)
		}
		if at := strings.LastIndex(rest[:hostEnd], "@"); at >= 0 {
			masked = uri[:i+3] + "***@" + rest[at+1:]
		}
	}
	if len(masked) > 40 {
		return masked[:40] + "..."
	}
	return masked
}
