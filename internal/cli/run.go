package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/socialstories/internal/config"
	"github.com/roach88/socialstories/internal/engine"
	"github.com/roach88/socialstories/internal/script"
	"github.com/roach88/socialstories/internal/store"
	"github.com/roach88/socialstories/internal/transport/rosbridge"
)

// Bridge is a live connection to the robot and tablet.
type Bridge interface {
	engine.Transport
	// Controls delivers game commands until the connection closes.
	Controls() <-chan string
	Close() error
}

// DialFunc connects to the bridge at url.
type DialFunc func(ctx context.Context, url string) (Bridge, error)

func dialRosbridge(ctx context.Context, url string) (Bridge, error) {
	c, err := rosbridge.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigDir  string
	ConfigFile string

	// Dial connects to the robot and tablet (for testing).
	// If nil, defaults to the rosbridge client.
	Dial DialFunc
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <session> <participant>",
		Short: "Play a session with a participant",
		Long: `Play one social-stories session.

The session script is chosen by session number: demo.txt for session 0 or
below, session-N.txt for the first sessions, then session-general.txt. The
game waits for a START command from the bridge before playing.

The participant DEMO or a negative session selects config.demo.yaml when
it exists.

Example:
  socialstories run 1 p01
  socialstories run --config ./site.yaml 4 p07 --verbose`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigDir, "config-dir", ".", "directory holding config.yaml and config.demo.yaml")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "config file (overrides --config-dir)")

	return cmd
}

func runSession(opts *RunOptions, sessionArg, participant string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	session, err := strconv.Atoi(sessionArg)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("session must be a number, got %q", sessionArg))
	}

	cfgPath := opts.ConfigFile
	if cfgPath == "" {
		cfgPath = config.FileFor(opts.ConfigDir, participant, session)
	}
	formatter.VerboseLog("Using config %s", cfgPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	slog.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	personal, err := store.NewPersonalizer(ctx, st, participant, session,
		store.WithLevelThreshold(cfg.PercentCorrectToLevel))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open session record", err)
	}

	dial := opts.Dial
	if dial == nil {
		dial = dialRosbridge
	}
	slog.Info("connecting to bridge", "url", cfg.RosbridgeURL)
	bridge, err := dial(ctx, cfg.RosbridgeURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to bridge", err)
	}
	defer func() {
		if closeErr := bridge.Close(); closeErr != nil {
			slog.Warn("error closing bridge", "error", closeErr)
		}
	}()

	scripts := engine.Scripts{
		Session: os.DirFS(cfg.SessionScriptPath),
		Story:   os.DirFS(cfg.StoryScriptPath),
		Shared:  os.DirFS(cfg.ScriptPath),
	}
	eng, err := engine.New(scripts, script.SessionScript(session), bridge, personal,
		engine.WithMatchMode(cfg.Match()),
		engine.WithMaxIncorrectResponses(cfg.Defaults.MaxIncorrectResponses),
		engine.WithMaxStories(cfg.Defaults.MaxStories),
		engine.WithMaxGameDuration(cfg.Defaults.MaxGameTime),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open session script", err)
	}
	driver := engine.NewDriver(eng, engine.WithWaitLogInterval(cfg.WaitLogInterval))

	go func() {
		for msg := range bridge.Controls() {
			if !driver.Enqueue(msg) {
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("session ready",
		"participant", participant,
		"session", session,
		"script", script.SessionScript(session),
	)
	formatter.VerboseLog("Waiting for START. Press Ctrl-C to stop.")

	err = driver.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "session failed", err)
	}

	perf := driver.Performance()
	if perf == nil {
		slog.Info("session stopped before the end")
		return nil
	}
	if formatter.JSON() {
		return formatter.Success(perf)
	}
	return formatter.Success(fmt.Sprintf(
		"Session %d for %s finished: %d stories, %d correct, %d incorrect (%.0f%%), level %d",
		perf.Session, perf.Participant, perf.StoriesTold, perf.Correct, perf.Incorrect,
		perf.PercentCorrect*100, perf.Level))
}
