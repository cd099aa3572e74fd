package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/socialstories/internal/script"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Shared    string // directory holding pools, object lists and repeat scripts
	MatchMode string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Scripts  int              `json:"scripts"`
	Problems []script.Problem `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <script>...",
		Short: "Check scripts for lines the engine would skip",
		Long: `Check session, story and repeat scripts without playing them.

Reports unknown opcodes, missing arguments, bad SET/WAIT/REPEAT values and
response pools, object lists or repeat scripts that do not exist. Files
named by ADD, REPEAT and OPAL LOAD_ALL are looked up in --shared, which
defaults to each script's own directory.

Exit codes:
  0 - All scripts clean
  1 - One or more problems found
  2 - Command error (unreadable script, bad flags)

Examples:
  socialstories validate scripts/session/session-1.txt
  socialstories validate --shared scripts scripts/story/*.txt`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Shared, "shared", "", "directory holding shared scripts and pools")
	cmd.Flags().StringVar(&opts.MatchMode, "match-mode", "contains", "opcode matching (contains|exact)")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	mode, err := script.ParseMatchMode(opts.MatchMode)
	if err != nil {
		return outputValidateError(formatter, ErrCodeInvalidInput, err.Error(), nil)
	}

	var problems []script.Problem
	for _, path := range paths {
		dir, name := filepath.Split(path)
		if dir == "" {
			dir = "."
		}
		shared := opts.Shared
		if shared == "" {
			shared = dir
		}

		formatter.VerboseLog("Checking %s (shared files in %s)", path, shared)
		found, err := script.Lint(os.DirFS(dir), name, os.DirFS(shared), mode)
		if err != nil {
			code := ErrCodeGeneric
			if errors.Is(err, fs.ErrNotExist) {
				code = ErrCodeNotFound
			}
			return outputValidateError(formatter, code, fmt.Sprintf("cannot read %s: %v", path, err), nil)
		}
		for i := range found {
			found[i].Script = path
		}
		problems = append(problems, found...)
	}

	if len(problems) > 0 {
		return outputValidationProblems(formatter, len(paths), problems)
	}
	return outputValidateSuccess(formatter, len(paths))
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, scripts int) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Scripts: scripts})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d script(s) valid\n", scripts)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationProblems outputs every problem found.
func outputValidationProblems(formatter *OutputFormatter, scripts int, problems []script.Problem) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(problems)))

	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:    false,
				Scripts:  scripts,
				Problems: problems,
			},
			Error: &CLIError{
				Code:    ErrCodeLint,
				Message: problems[0].String(),
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, p := range problems {
		fmt.Fprintln(formatter.Writer, p.String())
	}
	fmt.Fprintln(formatter.Writer)
	fmt.Fprintf(formatter.Writer, "%d problem(s) in %d script(s)\n", len(problems), scripts)
	return failure
}
