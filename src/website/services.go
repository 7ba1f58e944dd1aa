package website

import (
	"context"
	"time"

	"git.handmade.network/hmn/forum/src/assets"
	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/idempotency"
	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/ratelimit"
	"git.handmade.network/hmn/forum/src/search"
	"github.com/redis/go-redis/v9"
)

// Services are the long-lived things handlers need besides the database.
type Services struct {
	Posting  forumdata.Deps
	Settings forumdata.SettingsProvider
	Search   search.Index
	Assets   assets.Store

	UploadRate   ratelimit.Rate
	MaxImageSize int64
}

/*
Builds the services described by cfg. With no Redis url, rate limits and
duplicate detection are kept in memory; with no Meilisearch url, search runs
against an in-memory index that the reindexer fills.

The returned redis client is nil when Redis is not configured.
*/
func NewServices(ctx context.Context, cfg config.ForumConfig, settings forumdata.SettingsProvider) (*Services, *redis.Client, error) {
	publishRate, err := ratelimit.ParseRate(cfg.Posting.PublishRate)
	if err != nil {
		return nil, nil, oops.New(err, "bad publish rate")
	}
	uploadRate, err := ratelimit.ParseRate(cfg.Posting.UploadRate)
	if err != nil {
		return nil, nil, oops.New(err, "bad upload rate")
	}

	var rdb *redis.Client
	var guard idempotency.Guard
	var limiter ratelimit.Limiter
	if cfg.Redis.Url != "" {
		opts, err := redis.ParseURL(cfg.Redis.Url)
		if err != nil {
			return nil, nil, oops.New(err, "bad redis url")
		}
		rdb = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// Both Redis users degrade on their own, so a dead Redis at boot is
			// worth a warning and nothing more.
			logging.Warn().Err(err).Msg("redis did not answer ping")
		}

		guard = idempotency.NewRedisGuard(rdb, cfg.Posting.DuplicateWindow)
		limiter = ratelimit.NewRedis(rdb)
	} else {
		logging.Warn().Msg("no redis configured; rate limits and duplicate detection are per-process")
		guard = idempotency.NewMemoryGuard(cfg.Posting.DuplicateWindow)
		limiter = ratelimit.NewInMemory()
	}

	var index search.Index
	if cfg.Meilisearch.Url != "" {
		index = search.NewMeili(cfg.Meilisearch.Url, cfg.Meilisearch.ApiKey, cfg.Meilisearch.Index)
	} else {
		logging.Warn().Msg("no meilisearch configured; using an in-memory search index")
		index = search.NewMemoryIndex()
	}

	store, err := assets.NewStore(ctx, cfg.Assets)
	if err != nil {
		return nil, nil, oops.New(err, "failed to set up asset storage")
	}

	return &Services{
		Posting: forumdata.Deps{
			Guard:       guard,
			Limiter:     limiter,
			PublishRate: publishRate,
			Settings:    settings,
			Limits: forumdata.Limits{
				MaxCommentLength: cfg.Posting.MaxCommentLen,
				MaxTitleLength:   cfg.Posting.MaxTitleLen,
			},
		},
		Settings:     settings,
		Search:       index,
		Assets:       store,
		UploadRate:   uploadRate,
		MaxImageSize: cfg.Assets.MaxImageSize,
	}, rdb, nil
}
