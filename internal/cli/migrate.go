package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MigrateResult reports the schema state after migrate.
type MigrateResult struct {
	Driver        string `json:"driver"`
	Dialect       string `json:"dialect"`
	SchemaVersion int    `json:"schema_version"`
}

func (r MigrateResult) String() string {
	return fmt.Sprintf("%s (%s): schema version %d", r.Dialect, r.Driver, r.SchemaVersion)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Create the objects, observations, entities and versions tables if they are
missing and apply pending migrations. Safe to run repeatedly.

Examples:
  chronicle migrate --db ./chronicle.db
  chronicle migrate --driver pgx --db postgres://localhost/chronicle`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			st, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return out.Fail("failed to open database", err)
			}
			defer st.Close()

			version, err := st.SchemaVersion(cmd.Context())
			if err != nil {
				return out.Fail("failed to read schema version", err)
			}

			return out.Success(MigrateResult{
				Driver:        rootOpts.Config.Storage.Driver,
				Dialect:       st.Dialect(),
				SchemaVersion: version,
			})
		},
	}
}
