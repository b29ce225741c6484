package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ifuzz/internal/ir"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	Database  string
	Execution string
}

// DecodeResult is a decoded sequence.
type DecodeResult struct {
	ID    string   `json:"id"`
	Calls []string `json:"calls"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode [buffer-file]",
		Short: "Print the calls of a serialized sequence",
		Long: `Decode a serialized call sequence and print one call per line.

The buffer is read from a file, or from the corpus when --execution names a
stored execution ID.

Exit codes:
  0 - Buffer decoded
  1 - Buffer is not a valid sequence
  2 - Command error (file or database not found, etc.)

Examples:
  ifuzz decode crash.bin
  ifuzz decode --db ./ifuzz.db --execution 9f2c...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Execution, "execution", "", "stored execution ID to decode")

	return cmd
}

func runDecode(opts *DecodeOptions, args []string, cmd *cobra.Command) error {
	buf, err := readBuffer(cmd, opts, args)
	if err != nil {
		return err
	}

	spec, ok := ir.Deserialize(buf)
	if !ok {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		if err := formatter.Error(ErrCodeBadBuffer, "buffer is not a valid sequence", nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "buffer is not a valid sequence")
	}

	id, err := ir.ExecutionID(spec)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash sequence", err)
	}
	result := DecodeResult{ID: id, Calls: make([]string, len(spec.Calls))}
	for i, c := range spec.Calls {
		result.Calls[i] = ir.FormatCall(c)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return WriteJSON(w, CLIResponse{Status: "ok", Data: result})
	}

	fmt.Fprintf(w, "Sequence %s, %d call(s)\n", result.ID, len(result.Calls))
	for i, c := range result.Calls {
		fmt.Fprintf(w, "  %3d  %s\n", i, c)
	}
	return nil
}

// readBuffer loads the buffer from the file argument or the corpus.
func readBuffer(cmd *cobra.Command, opts *DecodeOptions, args []string) ([]byte, error) {
	switch {
	case opts.Execution != "" && len(args) == 1:
		return nil, NewExitError(ExitCommandError, "pass either a buffer file or --execution, not both")
	case len(args) == 1:
		buf, err := os.ReadFile(args[0])
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read buffer", err)
		}
		return buf, nil
	case opts.Execution == "":
		return nil, NewExitError(ExitCommandError, "a buffer file or --execution is required")
	}

	if !cmd.Flags().Changed("db") {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return nil, err
		}
		opts.Database = cfg.DB
	}
	st, err := openExistingStore(opts.Database)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	exec, err := st.ReadExecution(ctx, opts.Execution)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("execution not found: %s", opts.Execution))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read execution", err)
	}
	return exec.Buffer, nil
}
