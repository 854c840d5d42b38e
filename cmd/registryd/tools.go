package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/registry-core/internal/auth"
	"github.com/nerrad567/registry-core/internal/infrastructure/config"
	"github.com/nerrad567/registry-core/internal/infrastructure/database"
	"github.com/nerrad567/registry-core/internal/registry"
	"github.com/nerrad567/registry-core/migrations"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		identity string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an identity",
		Long: `Mint an HS256 bearer token signed with security.jwt.secret.

The token's subject is the caller identity the API uses for ownership
checks. Without --ttl the configured access_token_ttl applies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if identity == "" {
				return errors.New("--identity is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if ttl == 0 {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}
			token, err := auth.IssueToken(registry.Identity(identity), cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Caller identity to place in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default from config)")
	return cmd
}

func newAPIKeyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	var name string
	create := &cobra.Command{
		Use:   "create IDENTITY",
		Short: "Create an API key; the raw key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPIKeys(cmd.Context(), *configPath, func(repo *auth.SQLiteAPIKeyRepository) error {
				raw, key, err := auth.NewAPIKey(registry.Identity(args[0]), name)
				if err != nil {
					return err
				}
				if err := repo.Create(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Human-readable label")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAPIKeys(cmd.Context(), *configPath, func(repo *auth.SQLiteAPIKeyRepository) error {
				keys, err := repo.List(cmd.Context())
				if err != nil {
					return err
				}
				return printAPIKeys(cmd.OutOrStdout(), keys)
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAPIKeys(cmd.Context(), *configPath, func(repo *auth.SQLiteAPIKeyRepository) error {
				if err := repo.Revoke(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}

func printAPIKeys(w io.Writer, keys []auth.APIKey) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tIDENTITY\tNAME\tREVOKED\tCREATED")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", k.ID, k.Identity, k.Name, k.Revoked, k.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// withAPIKeys opens the configured database with migrations applied and
// hands fn a key repository over it.
func withAPIKeys(ctx context.Context, configPath string, fn func(*auth.SQLiteAPIKeyRepository) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(auth.NewSQLiteAPIKeyRepository(db.DB))
}

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or apply schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawDatabase(cmd.Context(), *configPath, func(db *database.DB) error {
				if err := db.Migrate(cmd.Context(), migrations.FS); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawDatabase(cmd.Context(), *configPath, func(db *database.DB) error {
				if err := db.MigrateDown(cmd.Context(), migrations.FS); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawDatabase(cmd.Context(), *configPath, func(db *database.DB) error {
				applied, pending, err := db.MigrationStatus(cmd.Context(), migrations.FS)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tSTATE\tDETAIL")
				for _, m := range applied {
					fmt.Fprintf(tw, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
				}
				for _, m := range pending {
					fmt.Fprintf(tw, "%s\tpending\t%s\n", m.Version, m.Name)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

// withRawDatabase opens the configured database without migrating it.
func withRawDatabase(ctx context.Context, configPath string, fn func(*database.DB) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return fn(db)
}
