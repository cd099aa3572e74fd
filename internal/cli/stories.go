package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/socialstories/internal/store"
)

// StoriesOptions holds flags shared by the stories subcommands.
type StoriesOptions struct {
	*RootOptions
	DBPath string
}

// StoriesImportResult is the JSON payload of stories import.
type StoriesImportResult struct {
	Imported int `json:"imported"`
}

// NewStoriesCommand creates the stories command group.
func NewStoriesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoriesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Manage the story library",
		Long: `Manage the story library stored in the session database.

Each story names its script file, its level, its scenes, whether the
scenes are shown in order and how many answers it has.`,
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newStoriesImportCommand(opts))
	cmd.AddCommand(newStoriesListCommand(opts))

	return cmd
}

func newStoriesImportCommand(opts *StoriesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <library.yaml>",
		Short: "Add or replace stories from a YAML library",
		Long: `Add or replace stories from a YAML library file:

  stories:
    - name: story-lost-dog.txt
      level: 1
      scenes: [dog-1, dog-2, dog-3]
      in_order: false
      num_answers: 1

Stories already in the database with the same name are replaced. The whole
file is imported in one transaction.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoriesImport(opts, args[0], cmd)
		},
	}
}

func newStoriesListCommand(opts *StoriesOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the story library",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoriesList(opts, cmd)
		},
	}
}

func runStoriesImport(opts *StoriesOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	f, err := os.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open story library", err)
	}
	defer f.Close()

	stories, err := store.ReadLibrary(f)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid story library", err)
	}
	formatter.VerboseLog("Read %d stories from %s", len(stories), path)

	st, err := store.Open(opts.DBPath)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.ImportStories(commandContext(cmd), stories); err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to import stories", err)
	}

	if formatter.JSON() {
		return formatter.Success(StoriesImportResult{Imported: len(stories)})
	}
	return formatter.Success(fmt.Sprintf("✓ Imported %d stories into %s", len(stories), opts.DBPath))
}

func runStoriesList(opts *StoriesOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := store.Open(opts.DBPath)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	stories, err := st.ListStories(commandContext(cmd))
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to list stories", err)
	}

	if formatter.JSON() {
		if stories == nil {
			stories = []store.Story{}
		}
		return formatter.Success(stories)
	}

	w := formatter.Writer
	if len(stories) == 0 {
		fmt.Fprintln(w, "No stories.")
		return nil
	}
	for _, s := range stories {
		order := "any order"
		if s.InOrder {
			order = "in order"
		}
		fmt.Fprintf(w, "%s\tlevel %d\t%d answer(s)\t%s\t%s\n",
			s.Name, s.Level, s.NumAnswers, order, strings.Join(s.Scenes, ","))
	}
	return nil
}

// commandContext returns the command's context, or Background outside
// Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
