package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/payload"
)

// NewObjectCommand creates the object command.
func NewObjectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "object <hash>",
		Short: "Print a stored payload by hash",
		Long: `Look up one content-addressed payload and print its canonical JSON.

Exit codes:
  0 - Object found
  1 - Object not stored, or a store error
  2 - Malformed hash

Examples:
  chronicle object 3b1f0c9a2d4e5f6a7b8c9d0e1f2a3b4c`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			h, err := payload.ParseHash(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid hash", err)
			}

			st, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return out.Fail("failed to open database", err)
			}
			defer st.Close()

			obj, err := st.Object(cmd.Context(), h)
			if err != nil {
				return out.Fail(fmt.Sprintf("object %s", h), err)
			}

			if rootOpts.Format == "json" {
				return out.Success(obj)
			}
			fmt.Fprintln(out.Writer, string(payload.Canonical(obj.Data)))
			return nil
		},
	}
}
