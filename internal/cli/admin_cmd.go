package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tripplanner/internal/auth"
	"tripplanner/internal/buildinfo"
	"tripplanner/internal/integrations"
	"tripplanner/internal/integrations/csvfeed"
	"tripplanner/internal/store"
)

func newTokenCmd(app *App) *cobra.Command {
	var user, role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HS256 bearer token with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Config.Auth.HMACSecret == "" {
				return fmt.Errorf("AUTH_HMAC_SECRET is not set")
			}
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			v := auth.NewVerifier("hmac", app.Config.Auth.HMACSecret, "")
			tok, err := v.Sign(user, role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(app.Out, tok)
			return err
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id (sub claim)")
	cmd.Flags().StringVar(&role, "role", "member", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Config.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set")
			}
			pg, err := store.NewPostgres(app.Config.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintln(app.Out, "migrations applied")
			return err
		},
	}
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(app, buildinfo.Info())
		},
	}
}

func newImportPlacesCmd(app *App) *cobra.Command {
	var file string
	var batch int

	cmd := &cobra.Command{
		Use:   "import-places",
		Short: "Load places from a CSV export into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			sink, closeSink, err := openPlaceSink(ctx, app)
			if err != nil {
				return err
			}
			defer closeSink()

			in := app.In
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			feed := csvfeed.New(in)
			feed.BatchSize = batch
			res, err := integrations.Import(ctx, feed, sink)
			if err != nil {
				return err
			}
			return printJSON(app, res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file (default stdin)")
	cmd.Flags().IntVar(&batch, "batch", csvfeed.DefaultBatchSize, "Rows per upsert")
	return cmd
}

// openPlaceSink prefers Postgres, then Mongo. Without either it falls back to
// app.Places, which tests set to an in-memory store.
func openPlaceSink(ctx context.Context, app *App) (integrations.Sink, func(), error) {
	switch {
	case app.Config.DatabaseURL != "":
		pg, err := store.NewPostgres(app.Config.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case app.Config.MongoURL != "":
		m, err := store.NewMongo(ctx, app.Config.MongoURL, app.Config.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = m.Close(context.Background()) }, nil
	case app.Places != nil:
		return app.Places, func() {}, nil
	}
	return nil, nil, fmt.Errorf("DATABASE_URL or MONGO_URL is required")
}
