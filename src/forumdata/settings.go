package forumdata

import (
	"context"
	"errors"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/pagination"
	"git.handmade.network/hmn/forum/src/ratelimit"
)

// Settings are the forum knobs that admins can change without a restart. They
// are stored as JSON in the persistent_var table.
type Settings struct {
	CommentsPerPage int    `json:"comments_per_page"`
	TopicsPerPage   int    `json:"topics_per_page"`
	OutOfRange      string `json:"out_of_range"`

	// Overrides the configured publish rate when set, e.g. "10/m".
	PublishRate string `json:"publish_rate,omitempty"`
}

var DefaultSettings = Settings{
	CommentsPerPage: 20,
	TopicsPerPage:   20,
	OutOfRange:      pagination.Clamp.String(),
}

// Normalized fills in defaults for anything unset or nonsensical.
func (s Settings) Normalized() Settings {
	if s.CommentsPerPage <= 0 {
		s.CommentsPerPage = DefaultSettings.CommentsPerPage
	}
	if s.TopicsPerPage <= 0 {
		s.TopicsPerPage = DefaultSettings.TopicsPerPage
	}
	if _, err := pagination.ParsePolicy(s.OutOfRange); err != nil {
		s.OutOfRange = DefaultSettings.OutOfRange
	}
	if s.PublishRate != "" {
		if _, err := ratelimit.ParseRate(s.PublishRate); err != nil {
			s.PublishRate = ""
		}
	}
	return s
}

func (s Settings) PagePolicy() pagination.Policy {
	policy, _ := pagination.ParsePolicy(s.OutOfRange)
	return policy
}

type SettingsProvider interface {
	// Settings is called whenever a value is needed; implementations must not
	// hold on to values across calls if they want edits to apply immediately.
	Settings(ctx context.Context) Settings
}

type StaticSettings Settings

func (s StaticSettings) Settings(ctx context.Context) Settings {
	return Settings(s).Normalized()
}

// DBSettings reads the settings row on every call. A missing or broken row
// falls back to DefaultSettings.
type DBSettings struct {
	Conn db.ConnOrTx
}

func (s DBSettings) Settings(ctx context.Context) Settings {
	settings, err := FetchPersistentVar[Settings](ctx, s.Conn, VarNameForumSettings)
	if err != nil {
		if !errors.Is(err, db.NotFound) {
			logging.ExtractLogger(ctx).Error().Err(err).Msg("failed to load forum settings; using defaults")
		}
		return DefaultSettings
	}
	return settings.Normalized()
}

func StoreSettings(ctx context.Context, conn db.ConnOrTx, settings Settings) error {
	settings = settings.Normalized()
	return StorePersistentVar(ctx, conn, VarNameForumSettings, &settings)
}
