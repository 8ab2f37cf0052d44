package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/store"
)

// RebuildOptions holds flags for the rebuild command.
type RebuildOptions struct {
	*RootOptions
	Types  []string
	Entity string
	All    bool
}

// RebuildResult holds the rebuild outcome across types.
type RebuildResult struct {
	Reports []store.RebuildReport `json:"reports"`
	Failed  int                   `json:"failed"`
}

// EntityRebuildResult is the outcome of rebuilding a single entity.
type EntityRebuildResult struct {
	Type     model.EntityType `json:"type"`
	EntityID uuid.UUID        `json:"entity_id"`
	Versions int              `json:"versions"`
}

func (r EntityRebuildResult) String() string {
	return fmt.Sprintf("%s %s: %d versions", r.Type, r.EntityID, r.Versions)
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RebuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute version history from the observation log",
		Long: `Recompute versions from the observation log and replace the stored ones.
Each entity is rebuilt in its own transaction; an entity that fails is
reported and skipped.

Exit codes:
  0 - Every entity rebuilt
  1 - One or more entities failed, or a store error
  2 - Command error (bad type or entity id)

Examples:
  chronicle rebuild --type player --entity 0f1e2d3c-4b5a-4968-8776-a5b4c3d2e1f0
  chronicle rebuild --type player --type team
  chronicle rebuild --all --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Types, "type", "t", nil, "entity type (repeatable)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "rebuild a single entity id (requires exactly one --type)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "rebuild every entity type")

	return cmd
}

func runRebuild(opts *RebuildOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	types, err := parseTypes(opts.Types)
	if err != nil {
		return out.Fail("invalid --type", err)
	}
	if opts.All {
		types = model.EntityTypes()
	}
	if len(types) == 0 {
		return NewExitError(ExitCommandError, "one of --type or --all is required")
	}

	st, err := opts.openStore(cmd.Context())
	if err != nil {
		return out.Fail("failed to open database", err)
	}
	defer st.Close()

	if opts.Entity != "" {
		if len(types) != 1 {
			return NewExitError(ExitCommandError, "--entity requires exactly one --type")
		}
		id, err := uuid.Parse(opts.Entity)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --entity", err)
		}

		n, err := st.RebuildEntity(cmd.Context(), types[0], id)
		if err != nil {
			return out.Fail("rebuild failed", err)
		}
		return out.Success(EntityRebuildResult{Type: types[0], EntityID: id, Versions: n})
	}

	reports, err := st.RebuildTypes(cmd.Context(), types...)
	if err != nil {
		return out.Fail("rebuild failed", err)
	}

	result := RebuildResult{Reports: reports}
	for _, r := range reports {
		result.Failed += len(r.Failed)
	}

	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		printRebuildText(out, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d entities failed to rebuild", result.Failed))
	}
	return nil
}

func printRebuildText(out *OutputFormatter, result RebuildResult) {
	w := out.Writer
	for _, r := range result.Reports {
		if r.Entities == 0 && !out.Verbose {
			continue
		}
		status := "✓"
		if len(r.Failed) > 0 {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d entities, %d rebuilt, %d versions (%s)\n",
			status, r.Type, r.Entities, r.Rebuilt, r.Versions, r.Duration.Round(1e6))
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  failed %s: %s\n", f.EntityID, f.Message())
		}
	}
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ Rebuild complete")
		return
	}
	fmt.Fprintf(w, "✗ %d entities failed\n", result.Failed)
}

// parseTypes accepts names or codes, also comma-separated.
func parseTypes(values []string) ([]model.EntityType, error) {
	var types []model.EntityType
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			t, err := model.ParseEntityType(part)
			if err != nil {
				return nil, err
			}
			types = append(types, t)
		}
	}
	return types, nil
}
