package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

var Config = ForumConfig{
	Env:      Dev,
	Addr:     ":9001",
	BaseUrl:  "http://localhost:9001",
	LogLevel: zerolog.TraceLevel,
	Auth: AuthConfig{
		CookieDomain: "localhost",
	},
	Postgres: PostgresConfig{
		User:     "forum",
		Password: "password",
		Hostname: "localhost",
		Port:     5432,
		DbName:   "forum",
		LogLevel: tracelog.LogLevelWarn,
		MinConn:  2,
		MaxConn:  10,
	},
	Meilisearch: MeilisearchConfig{
		Index: "forum_topics",
	},
	Assets: AssetsConfig{
		Backend:      AssetsBackendS3,
		Endpoint:     "http://localhost:9003",
		Region:       "dev",
		Bucket:       "forum-dev",
		AccessKeyId:  "dev",
		SecretKey:    "dev",
		PublicUrl:    "http://localhost:9003/forum-dev",
		MaxImageSize: 10 * 1024 * 1024,
	},
	Posting: PostingConfig{
		PublishRate:     "10/m",
		UploadRate:      "20/h",
		DuplicateWindow: 10 * time.Minute,
		MaxCommentLen:   16000,
		MaxTitleLen:     255,
	},
}

func init() {
	LoadEnv(&Config, os.LookupEnv)
}

// LoadEnv overrides values in cfg with any FORUM_* variables that lookup finds.
func LoadEnv(cfg *ForumConfig, lookup func(string) (string, bool)) {
	str := func(name string, dest *string) {
		if v, ok := lookup(name); ok {
			*dest = v
		}
	}
	num := func(name string, dest *int) {
		if v, ok := lookup(name); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dest = n
			}
		}
	}

	if v, ok := lookup("FORUM_ENV"); ok {
		cfg.Env = Environment(strings.ToLower(v))
	}
	str("FORUM_ADDR", &cfg.Addr)
	str("FORUM_BASE_URL", &cfg.BaseUrl)
	if v, ok := lookup("FORUM_LOG_LEVEL"); ok {
		if level, err := zerolog.ParseLevel(v); err == nil {
			cfg.LogLevel = level
		}
	}

	str("FORUM_COOKIE_DOMAIN", &cfg.Auth.CookieDomain)
	if v, ok := lookup("FORUM_COOKIE_SECURE"); ok {
		cfg.Auth.CookieSecure, _ = strconv.ParseBool(v)
	}

	str("FORUM_DB_USER", &cfg.Postgres.User)
	str("FORUM_DB_PASSWORD", &cfg.Postgres.Password)
	str("FORUM_DB_HOST", &cfg.Postgres.Hostname)
	num("FORUM_DB_PORT", &cfg.Postgres.Port)
	str("FORUM_DB_NAME", &cfg.Postgres.DbName)
	if v, ok := lookup("FORUM_DB_LOG_LEVEL"); ok {
		if level, err := tracelog.LogLevelFromString(v); err == nil {
			cfg.Postgres.LogLevel = level
		}
	}

	str("FORUM_REDIS_URL", &cfg.Redis.Url)

	str("FORUM_MEILI_URL", &cfg.Meilisearch.Url)
	str("FORUM_MEILI_KEY", &cfg.Meilisearch.ApiKey)
	str("FORUM_MEILI_INDEX", &cfg.Meilisearch.Index)

	if v, ok := lookup("FORUM_ASSETS_BACKEND"); ok {
		cfg.Assets.Backend = AssetsBackend(strings.ToLower(v))
	}
	str("FORUM_ASSETS_ENDPOINT", &cfg.Assets.Endpoint)
	str("FORUM_ASSETS_REGION", &cfg.Assets.Region)
	str("FORUM_ASSETS_BUCKET", &cfg.Assets.Bucket)
	str("FORUM_ASSETS_ACCESS_KEY", &cfg.Assets.AccessKeyId)
	str("FORUM_ASSETS_SECRET_KEY", &cfg.Assets.SecretKey)
	str("FORUM_ASSETS_PUBLIC_URL", &cfg.Assets.PublicUrl)

	if v, ok := lookup("FORUM_LIVE_TEMPLATES"); ok {
		cfg.Dev.LiveTemplates, _ = strconv.ParseBool(v)
	}

	str("FORUM_PUBLISH_RATE", &cfg.Posting.PublishRate)
	str("FORUM_UPLOAD_RATE", &cfg.Posting.UploadRate)
	if v, ok := lookup("FORUM_DUPLICATE_WINDOW"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Posting.DuplicateWindow = d
		}
	}
}
