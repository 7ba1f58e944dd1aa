package admintools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"git.handmade.network/hmn/forum/src/auth"
	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/forumdata"
	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/pagination"
	"git.handmade.network/hmn/forum/src/ratelimit"
	"git.handmade.network/hmn/forum/src/search"
	"git.handmade.network/hmn/forum/src/utils"
	"git.handmade.network/hmn/forum/src/website"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	adminCommand := &cobra.Command{
		Use:   "admin",
		Short: "Miscellaneous admin commands",
	}
	website.WebsiteCommand.AddCommand(adminCommand)

	setPasswordCommand := &cobra.Command{
		Use:   "setpassword [username] [new password]",
		Short: "Replace a user's password",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide a username and a password.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			username := args[0]
			password := args[1]

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			canonicalUsername, err := db.QueryOneScalar[string](ctx, conn,
				`SELECT username FROM forum_user WHERE LOWER(username) = LOWER($1)`,
				username,
			)
			if err != nil {
				if errors.Is(err, db.NotFound) {
					fmt.Printf("User '%s' not found\n", username)
					os.Exit(1)
				} else {
					panic(err)
				}
			}

			hashedPassword := auth.HashPassword(password)

			err = auth.UpdatePassword(ctx, conn, canonicalUsername, hashedPassword)
			if err != nil {
				panic(err)
			}

			fmt.Printf("Successfully updated password for '%s'\n", canonicalUsername)
		},
	}
	adminCommand.AddCommand(setPasswordCommand)

	createUserCommand := &cobra.Command{
		Use:   "createuser [username]",
		Short: "Creates a new user with the password 'password'",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				fmt.Printf("You must provide a username.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			username := args[0]
			password := "password"

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			userAlreadyExists := true
			_, err := db.QueryOneScalar[int](ctx, conn,
				`
				SELECT id
				FROM forum_user
				WHERE LOWER(username) = LOWER($1)
				`,
				username,
			)
			if err != nil {
				if errors.Is(err, db.NotFound) {
					userAlreadyExists = false
				} else {
					panic(err)
				}
			}

			if userAlreadyExists {
				fmt.Printf("%s already exists. Please pick a different username.\n\n", username)
				os.Exit(1)
			}

			email := uuid.New().String() + "@example.com"
			hashedPassword := auth.HashPassword(password)

			newUserId, err := db.QueryOneScalar[int](ctx, conn,
				`
				INSERT INTO forum_user (username, email, password)
				VALUES ($1, $2, $3)
				RETURNING id
				`,
				username,
				email,
				hashedPassword.String(),
			)
			if err != nil {
				panic(err)
			}

			fmt.Printf("New user added!\nID: %d\nUsername: %s\nPassword: %s\n", newUserId, username, password)
			fmt.Printf("You can make the user a moderator with the following command:\n")
			fmt.Printf("usersetmoderator %s true\n", username)
		},
	}
	adminCommand.AddCommand(createUserCommand)

	adminCommand.AddCommand(userFlagCommand("usersetstaff", "is_staff", "Toggle the user's staff privileges"))
	adminCommand.AddCommand(userFlagCommand("usersetmoderator", "is_moderator", "Toggle the user's moderator privileges"))

	createCategoryCommand := &cobra.Command{
		Use:   "createcategory",
		Short: "Create a new category",
		Run: func(cmd *cobra.Command, args []string) {
			title, _ := cmd.Flags().GetString("title")
			slug, _ := cmd.Flags().GetString("slug")
			description, _ := cmd.Flags().GetString("description")
			parentId, _ := cmd.Flags().GetInt("parent")
			global, _ := cmd.Flags().GetBool("global")
			private, _ := cmd.Flags().GetBool("private")

			if slug == "" {
				slug = utils.Slugify(title)
			}

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			var parent *int
			if parentId != 0 {
				// Categories only nest one level deep.
				grandparent, err := db.QueryOneScalar[int](ctx, conn,
					`SELECT COALESCE(parent_id, 0) FROM category WHERE id = $1`,
					parentId,
				)
				if err != nil {
					if errors.Is(err, db.NotFound) {
						fmt.Printf("Parent category %d not found\n", parentId)
						os.Exit(1)
					}
					panic(err)
				}
				if grandparent != 0 {
					fmt.Printf("Category %d is already a subcategory\n", parentId)
					os.Exit(1)
				}
				parent = &parentId
			}

			newId, err := db.QueryOneScalar[int](ctx, conn,
				`
				INSERT INTO category (parent_id, title, slug, description, is_global, is_private)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id
				`,
				parent,
				title,
				slug,
				description,
				global,
				private,
			)
			if err != nil {
				panic(err)
			}

			fmt.Printf("Created new category with id: %d\n", newId)
		},
	}
	createCategoryCommand.Flags().String("title", "", "")
	createCategoryCommand.Flags().String("slug", "", "Defaults to the title, slugified")
	createCategoryCommand.Flags().String("description", "", "")
	createCategoryCommand.Flags().Int("parent", 0, "ID of the parent category")
	createCategoryCommand.Flags().Bool("global", true, "Show topics in the active topics feed")
	createCategoryCommand.Flags().Bool("private", false, "Hide from everyone but staff and allowed groups")
	createCategoryCommand.MarkFlagRequired("title")
	adminCommand.AddCommand(createCategoryCommand)

	moveTopicsCommand := &cobra.Command{
		Use:   "movetopics [<topic id>...]",
		Short: "Move topics to another category",
		Run: func(cmd *cobra.Command, args []string) {
			categoryId, _ := cmd.Flags().GetInt("category")

			var topicIds []int
			for _, topicIdStr := range args {
				topicId, err := strconv.Atoi(topicIdStr)
				if err != nil {
					fmt.Printf("Couldn't move topic '%s': couldn't parse ID\n", topicIdStr)
					continue
				}
				topicIds = append(topicIds, topicId)
			}

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			tag, err := conn.Exec(ctx,
				`
				UPDATE topic
				SET
					category_id = $2,
					reindex_at = NOW()
				WHERE
					id = ANY ($1)
				`,
				topicIds,
				categoryId,
			)
			if err != nil {
				panic(oops.New(err, "failed to move topics"))
			}

			fmt.Printf("Successfully moved %d topics.\n", tag.RowsAffected())
		},
	}
	moveTopicsCommand.Flags().Int("category", 0, "ID of the destination category")
	moveTopicsCommand.MarkFlagRequired("category")
	adminCommand.AddCommand(moveTopicsCommand)

	settingsCommand := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the forum settings",
		Long:  "Shows the current settings. Any flags given are changed first.",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			settings := forumdata.DBSettings{Conn: conn}.Settings(ctx)

			changed := false
			if cmd.Flags().Changed("comments-per-page") {
				settings.CommentsPerPage, _ = cmd.Flags().GetInt("comments-per-page")
				changed = true
			}
			if cmd.Flags().Changed("topics-per-page") {
				settings.TopicsPerPage, _ = cmd.Flags().GetInt("topics-per-page")
				changed = true
			}
			if cmd.Flags().Changed("out-of-range") {
				outOfRange, _ := cmd.Flags().GetString("out-of-range")
				if _, err := pagination.ParsePolicy(outOfRange); err != nil {
					fmt.Printf("%v\n", err)
					os.Exit(1)
				}
				settings.OutOfRange = outOfRange
				changed = true
			}

			if cmd.Flags().Changed("publish-rate") {
				publishRate, _ := cmd.Flags().GetString("publish-rate")
				if publishRate != "" {
					if _, err := ratelimit.ParseRate(publishRate); err != nil {
						fmt.Printf("%v\n", err)
						os.Exit(1)
					}
				}
				settings.PublishRate = publishRate
				changed = true
			}

			if changed {
				err := forumdata.StoreSettings(ctx, conn, settings)
				if err != nil {
					panic(err)
				}
				settings = settings.Normalized()
			}

			out, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				panic(err)
			}
			fmt.Println(string(out))
		},
	}
	settingsCommand.Flags().Int("comments-per-page", 0, "")
	settingsCommand.Flags().Int("topics-per-page", 0, "")
	settingsCommand.Flags().String("out-of-range", "", "What to do with pages past the end: clamp or notfound")
	settingsCommand.Flags().String("publish-rate", "", "Overrides the configured publish rate, like 10/m. Empty goes back to the config")
	adminCommand.AddCommand(settingsCommand)

	reindexCommand := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from scratch",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Config.Meilisearch
			if cfg.Url == "" {
				fmt.Printf("No search server is configured.\n")
				os.Exit(1)
			}

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			_, err := conn.Exec(ctx, `DELETE FROM persistent_var WHERE name = $1`, forumdata.VarNameSearchIndexedAt)
			if err != nil {
				panic(err)
			}

			err = search.RunOnce(ctx, conn, search.NewMeili(cfg.Url, cfg.ApiKey, cfg.Index))
			if err != nil {
				panic(err)
			}

			fmt.Printf("Done!\n")
		},
	}
	adminCommand.AddCommand(reindexCommand)
}

func userFlagCommand(use string, column string, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [username] [true/false]",
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide a username and 'true' or 'false'.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			username := args[0]
			value := args[1] == "true"

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			// column is one of our own constants, never user input.
			res, err := conn.Exec(ctx,
				fmt.Sprintf(`UPDATE forum_user SET %s = $1 WHERE LOWER(username) = LOWER($2)`, column),
				value,
				username,
			)
			if err != nil {
				panic(err)
			}
			if res.RowsAffected() == 0 {
				fmt.Printf("User not found.\n\n")
				os.Exit(1)
			}

			fmt.Printf("Updated %s for %s to %v\n", column, username, value)
		},
	}
}
