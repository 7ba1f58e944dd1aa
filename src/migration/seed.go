package migration

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"time"

	"git.handmade.network/hmn/forum/src/auth"
	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/idempotency"
	"git.handmade.network/hmn/forum/src/models"
	"git.handmade.network/hmn/forum/src/ratelimit"
	"git.handmade.network/hmn/forum/src/utils"
	lorem "github.com/HandmadeNetwork/golorem"
	"github.com/jackc/pgx/v5/tracelog"
)

// Restores a pg_dump into the configured database. Run migrations afterward
// if the dump is older than the code.
func SeedFromFile(seedFile string) {
	file, err := os.Open(seedFile)
	if err != nil {
		panic(fmt.Errorf("couldn't open seed file %s: %w", seedFile, err))
	}
	file.Close()

	fmt.Println("Executing seed...")
	cmd := exec.Command("pg_restore",
		"--single-transaction",
		"--dbname", config.Config.Postgres.DSN(),
		seedFile,
	)
	fmt.Println("Running command:", cmd)
	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Print(string(output))
		panic(fmt.Errorf("failed to execute seed: %w", err))
	}

	fmt.Println("Done! You may want to migrate forward from here.")
	ListMigrations()
}

// Seeds the database with sample data for local dev.
func SampleSeed() {
	Migrate(LatestVersion())

	ctx := context.Background()
	conn := db.NewConnWithConfig(config.PostgresConfig{
		LogLevel: tracelog.LogLevelWarn,
	})
	defer conn.Close(ctx)

	fmt.Println("Creating groups...")
	members := seedGroup(ctx, conn, "Members")
	staffGroup := seedGroup(ctx, conn, "Staff")

	fmt.Println("Creating admin user (\"admin\"/\"password\")...")
	admin := seedUser(ctx, conn, models.User{Username: "admin", Email: "admin@example.com", IsStaff: true})
	seedMembership(ctx, conn, admin, staffGroup)

	fmt.Println("Creating a moderator (\"mod\"/\"password\")...")
	mod := seedUser(ctx, conn, models.User{Username: "mod", IsModerator: true})

	fmt.Println("Creating normal users (all with password \"password\")...")
	alice := seedUser(ctx, conn, models.User{Username: "alice"})
	bob := seedUser(ctx, conn, models.User{Username: "bob"})
	charlie := seedUser(ctx, conn, models.User{Username: "charlie"})
	seedMembership(ctx, conn, alice, members)
	users := []*models.User{admin, mod, alice, bob, charlie}

	fmt.Println("Creating categories...")
	general := seedCategory(ctx, conn, models.Category{Title: "General", Description: "Anything goes.", Color: "#ab4c47", IsGlobal: true})
	seedCategory(ctx, conn, models.Category{ParentID: &general.ID, Title: "Help", Description: "Stuck? Ask here.", Color: "#4c7aab", IsGlobal: true})
	announcements := seedCategory(ctx, conn, models.Category{Title: "Announcements", Color: "#4cab6e", IsGlobal: true, SortOrder: -1})
	seedRestriction(ctx, conn, announcements, staffGroup, models.RestrictTopic)
	private := seedCategory(ctx, conn, models.Category{Title: "Members Lounge", Color: "#8a4cab", IsPrivate: true})
	seedRestriction(ctx, conn, private, members, models.RestrictAccess)
	seedCategory(ctx, conn, models.Category{Title: "Archive", Color: "#777777", IsClosed: true})

	deps := forumdata.Deps{
		Guard:       idempotency.NewMemoryGuard(time.Minute),
		Limiter:     ratelimit.NewInMemory(),
		PublishRate: ratelimit.MustParseRate("100000/s"),
		Limits: forumdata.Limits{
			MaxCommentLength: config.Config.Posting.MaxCommentLen,
			MaxTitleLength:   config.Config.Posting.MaxTitleLen,
		},
	}

	fmt.Println("Creating topics and comments...")
	for _, category := range []*models.Category{general, announcements, private} {
		author := admin
		if category.ID == private.ID {
			author = alice
		}
		for i := 0; i < 3+rand.Intn(5); i++ {
			res, err := forumdata.PublishTopic(ctx, conn, deps, author, category.ID, forumdata.TopicInput{
				Title:    lorem.Sentence(3, 8),
				Markdown: lorem.Paragraph(1, 3),
			})
			if err != nil {
				panic(err)
			}

			for j := 0; j < rand.Intn(45); j++ {
				commenter := users[rand.Intn(len(users))]
				if category.ID == private.ID {
					commenter = pick(alice, admin)
				}
				body := lorem.Paragraph(1, 2)
				if rand.Intn(6) == 0 {
					body = fmt.Sprintf("@%s %s", users[rand.Intn(len(users))].Username, body)
				}
				_, err := forumdata.PublishComment(ctx, conn, deps, commenter, res.Topic.ID, forumdata.CommentInput{Markdown: body})
				if err != nil {
					panic(err)
				}
			}
		}
	}

	fmt.Println("Storing default settings...")
	if err := forumdata.StoreSettings(ctx, conn, forumdata.DefaultSettings); err != nil {
		panic(err)
	}

	fmt.Println("Done!")
}

func pick(users ...*models.User) *models.User {
	return users[rand.Intn(len(users))]
}

func seedUser(ctx context.Context, conn db.ConnOrTx, input models.User) *models.User {
	user, err := db.QueryOne[models.User](ctx, conn,
		`
		INSERT INTO forum_user (username, password, email, is_staff, is_moderator, date_joined)
		VALUES ($1, $2, $3, $4, $5, '2026-01-01T00:00:00Z')
		RETURNING $columns
		`,
		input.Username,
		auth.HashPassword("password").String(),
		utils.OrDefault(input.Email, fmt.Sprintf("%s@example.com", input.Username)),
		input.IsStaff,
		input.IsModerator,
	)
	if err != nil {
		panic(err)
	}
	return user
}

func seedGroup(ctx context.Context, conn db.ConnOrTx, name string) int {
	id, err := db.QueryOneScalar[int](ctx, conn, `INSERT INTO forum_group (name) VALUES ($1) RETURNING id`, name)
	if err != nil {
		panic(err)
	}
	return id
}

func seedMembership(ctx context.Context, conn db.ConnOrTx, user *models.User, groupID int) {
	_, err := conn.Exec(ctx, `INSERT INTO user_group (user_id, group_id) VALUES ($1, $2)`, user.ID, groupID)
	if err != nil {
		panic(err)
	}
}

func seedCategory(ctx context.Context, conn db.ConnOrTx, input models.Category) *models.Category {
	category, err := db.QueryOne[models.Category](ctx, conn,
		`
		INSERT INTO category (parent_id, title, slug, description, color, sort_order, is_global, is_closed, is_private)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING $columns
		`,
		input.ParentID,
		input.Title,
		utils.Slugify(input.Title),
		utils.OrDefault(input.Description, lorem.Sentence(4, 10)),
		input.Color,
		input.SortOrder,
		input.IsGlobal,
		input.IsClosed,
		input.IsPrivate,
	)
	if err != nil {
		panic(err)
	}
	return category
}

func seedRestriction(ctx context.Context, conn db.ConnOrTx, category *models.Category, groupID int, kind models.RestrictionKind) {
	_, err := conn.Exec(ctx,
		`INSERT INTO category_restriction (category_id, group_id, kind) VALUES ($1, $2, $3)`,
		category.ID, groupID, int(kind),
	)
	if err != nil {
		panic(err)
	}
}
