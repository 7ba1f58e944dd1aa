package config

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type ForumConfig struct {
	Env      Environment
	Addr     string
	BaseUrl  string
	LogLevel zerolog.Level

	Auth        AuthConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Meilisearch MeilisearchConfig
	Assets      AssetsConfig
	Posting     PostingConfig
	Dev         DevConfig
}

type PostgresConfig struct {
	User     string
	Password string
	Hostname string
	Port     int
	DbName   string
	LogLevel tracelog.LogLevel
	MinConn  int32
	MaxConn  int32
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

type AuthConfig struct {
	CookieDomain string
	CookieSecure bool
}

type RedisConfig struct {
	// Empty means the in-process fallbacks are used for rate limits and
	// duplicate detection. Fine for a single dev server, wrong for anything else.
	Url string
}

type MeilisearchConfig struct {
	Url    string
	ApiKey string
	Index  string
}

type AssetsBackend string

const (
	AssetsBackendS3    AssetsBackend = "s3"
	AssetsBackendMinio AssetsBackend = "minio"
)

type AssetsConfig struct {
	Backend      AssetsBackend
	Endpoint     string
	Region       string
	Bucket       string
	AccessKeyId  string
	SecretKey    string
	PublicUrl    string
	MaxImageSize int64
}

type PostingConfig struct {
	// Rates are written like "10/m": count, slash, unit (s, m, h).
	PublishRate string
	UploadRate  string

	DuplicateWindow time.Duration
	MaxCommentLen   int
	MaxTitleLen     int
}

type DevConfig struct {
	// Read templates from disk on every request instead of the embedded copy.
	LiveTemplates bool
}

func (c ForumConfig) IsDev() bool {
	return c.Env == Dev
}
