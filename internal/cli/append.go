package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/model"
	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/store"
)

// maxLineBytes bounds one NDJSON update line.
const maxLineBytes = 16 << 20

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	File  string
	Batch int
}

// AppendSummary totals the batches of one append run.
type AppendSummary struct {
	Lines   int `json:"lines"`
	Batches int `json:"batches"`
	store.AppendResult
}

func (s AppendSummary) String() string {
	return fmt.Sprintf("%d lines in %d batches: %d inserted, %d duplicates, %d new objects, %d new entities, %d versions written",
		s.Lines, s.Batches, s.Inserted, s.Duplicates, s.NewObjects, s.NewEntities, s.Versions)
}

// updateLine is one NDJSON input record.
type updateLine struct {
	Type      model.EntityType `json:"type"`
	SourceID  uuid.UUID        `json:"source_id"`
	Timestamp time.Time        `json:"timestamp"`
	EntityID  *uuid.UUID       `json:"entity_id,omitempty"`
	Data      json.RawMessage  `json:"data"`
}

func (l updateLine) update() (model.Update, error) {
	if len(l.Data) == 0 {
		return model.Update{}, fmt.Errorf("%w: data is required", store.ErrInvalidUpdate)
	}
	data, err := payload.Parse(l.Data)
	if err != nil {
		return model.Update{}, fmt.Errorf("%w: %v", store.ErrInvalidUpdate, err)
	}

	u := model.Update{
		Type:      l.Type,
		SourceID:  l.SourceID,
		Timestamp: l.Timestamp,
		Data:      data,
	}
	if l.EntityID != nil {
		u.EntityID = uuid.NullUUID{UUID: *l.EntityID, Valid: true}
	}
	return u, nil
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append observations from NDJSON",
		Long: `Read one update per line and append them in batches. Each line is:

  {"type":"player","source_id":"<uuid>","timestamp":"<RFC 3339>","entity_id":"<uuid>","data":{...}}

entity_id is optional; without it the payload's "id" (or "_id") is used.
Re-running the same input is a no-op.

Exit codes:
  0 - All lines appended
  1 - Store failure
  2 - Malformed input line

Examples:
  chronicle append --db ./chronicle.db --file updates.ndjson
  cat updates.ndjson | chronicle append --batch 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "-", "NDJSON input file, - for stdin")
	cmd.Flags().IntVar(&opts.Batch, "batch", 500, "updates per transaction")

	return cmd
}

func runAppend(opts *AppendOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	if opts.Batch < 1 {
		return NewExitError(ExitCommandError, "--batch must be positive")
	}

	in := cmd.InOrStdin()
	if opts.File != "-" {
		f, err := os.Open(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer f.Close()
		in = f
	}

	st, err := opts.openStore(cmd.Context())
	if err != nil {
		return out.Fail("failed to open database", err)
	}
	defer st.Close()

	var summary AppendSummary
	batch := make([]model.Update, 0, opts.Batch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := st.Append(cmd.Context(), batch)
		if err != nil {
			return err
		}
		summary.Batches++
		summary.Inserted += res.Inserted
		summary.Duplicates += res.Duplicates
		summary.NewObjects += res.NewObjects
		summary.NewEntities += res.NewEntities
		summary.Versions += res.Versions
		out.VerboseLog("batch %d: %d inserted, %d duplicates", summary.Batches, res.Inserted, res.Duplicates)
		batch = batch[:0]
		return nil
	}

	err = readUpdates(in, func(lineNo int, u model.Update) error {
		summary.Lines = lineNo
		batch = append(batch, u)
		if len(batch) < opts.Batch {
			return nil
		}
		return flush()
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return out.Fail("append failed", err)
	}

	return out.Success(summary)
}

// readUpdates decodes NDJSON lines, skipping blank ones, and calls fn for
// each update with its 1-based line number.
func readUpdates(r io.Reader, fn func(lineNo int, u model.Update) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		var line updateLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("line %d: %w: %v", lineNo, store.ErrInvalidUpdate, err)
		}
		u, err := line.update()
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := fn(lineNo, u); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
