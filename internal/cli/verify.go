package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Types []string
}

// VerifyTypeResult holds the verification result for a single entity type.
type VerifyTypeResult struct {
	Type     model.EntityType `json:"type"`
	Entities int              `json:"entities"`
	Drifted  []uuid.UUID      `json:"drifted"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Types    []VerifyTypeResult `json:"types"`
	Entities int                `json:"entities"`
	Drifted  int                `json:"drifted"`
	Clean    bool               `json:"clean"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check stored versions against the observation log",
		Long: `Re-derive every entity's versions from its observations and compare them
with the stored version table. Nothing is written; use rebuild to repair.

Exit codes:
  0 - Stored versions match the log
  1 - Drift detected, or a store error
  2 - Command error (bad type, etc.)

Examples:
  chronicle verify --db ./chronicle.db
  chronicle verify --type player --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Types, "type", "t", nil, "entity type (repeatable, default all)")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	types, err := parseTypes(opts.Types)
	if err != nil {
		return out.Fail("invalid --type", err)
	}
	if len(types) == 0 {
		types = model.EntityTypes()
	}

	st, err := opts.openStore(ctx)
	if err != nil {
		return out.Fail("failed to open database", err)
	}
	defer st.Close()

	result := VerifyResult{Types: make([]VerifyTypeResult, 0, len(types)), Clean: true}
	for _, t := range types {
		typeResult, err := verifyType(ctx, st, t)
		if err != nil {
			return out.Fail(fmt.Sprintf("failed to verify %s", t), err)
		}
		out.VerboseLog("%s: %d entities, %d drifted", t, typeResult.Entities, len(typeResult.Drifted))

		result.Types = append(result.Types, typeResult)
		result.Entities += typeResult.Entities
		result.Drifted += len(typeResult.Drifted)
	}
	result.Clean = result.Drifted == 0

	if opts.Format == "json" {
		return outputVerifyJSON(cmd, result)
	}
	return outputVerifyText(cmd, result, opts.Verbose)
}

func verifyType(ctx context.Context, st *store.Store, t model.EntityType) (VerifyTypeResult, error) {
	result := VerifyTypeResult{Type: t, Drifted: []uuid.UUID{}}

	ids, err := st.EntityIDs(ctx, t)
	if err != nil {
		return result, err
	}
	result.Entities = len(ids)

	for _, id := range ids {
		stored, err := st.EntityVersions(ctx, t, id)
		if err != nil {
			return result, err
		}
		derived, err := st.DeriveVersions(ctx, t, id)
		if err != nil {
			return result, err
		}
		if !versionsEqual(stored, derived) {
			result.Drifted = append(result.Drifted, id)
		}
	}
	return result, nil
}

// versionsEqual compares two histories field by field.
func versionsEqual(a, b []model.Version) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !versionEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func versionEqual(a, b model.Version) bool {
	if a.Key() != b.Key() || a.Number != b.Number || a.Hash != b.Hash || a.Observations != b.Observations {
		return false
	}
	if !a.ValidFrom.Equal(b.ValidFrom) || !a.LastSeen.Equal(b.LastSeen) {
		return false
	}
	return timePtrEqual(a.ValidTo, b.ValidTo)
}

func timePtrEqual(a, b *time.Time) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || a.Equal(*b)
}

func outputVerifyJSON(cmd *cobra.Command, result VerifyResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if !result.Clean {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeDrift,
			Message: fmt.Sprintf("%d entities drifted from the log", result.Drifted),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Clean {
		return NewExitError(ExitFailure, "version drift detected")
	}
	return nil
}

func outputVerifyText(cmd *cobra.Command, result VerifyResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Verify Summary: %d entities\n", result.Entities)
	fmt.Fprintln(w)

	for _, tr := range result.Types {
		if tr.Entities == 0 && !verbose {
			continue
		}
		status := "✓"
		if len(tr.Drifted) > 0 {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d entities\n", status, tr.Type, tr.Entities)
		for _, id := range tr.Drifted {
			fmt.Fprintf(w, "  drifted: %s\n", id)
		}
	}

	if result.Clean {
		fmt.Fprintln(w, "✓ Versions match the observation log")
		return nil
	}

	fmt.Fprintf(w, "✗ %d entities drifted; run chronicle rebuild\n", result.Drifted)
	return NewExitError(ExitFailure, "version drift detected")
}
