package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/storefront/internal/adapter/storage"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema for the configured SQL store",
		Long: `Apply the embedded schema for store.driver (mysql, postgres or sqlite3).

Every statement is idempotent, so running migrate against an existing
database is safe. Use --print to write the schema to stdout instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config

			if printOnly {
				dialect, err := storage.DialectFor(cfg.Store.Driver)
				if err != nil {
					return err
				}
				schema, err := dialect.Schema()
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), schema)
				return err
			}

			if cfg.Store.Driver == "memory" {
				return errors.New("migrate needs a SQL store.driver, not memory")
			}

			db, dialect, err := openDB(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := storage.Migrate(cmd.Context(), db, dialect); err != nil {
				return err
			}
			rootOpts.Logger.Info("schema migrated", "dialect", dialect.Name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
