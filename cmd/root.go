package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/tipbox/internal/catalogclient"
	"github.com/marcus/tipbox/internal/clientconfig"
	"github.com/marcus/tipbox/internal/favorites"
	"github.com/marcus/tipbox/internal/output"
)

var (
	version  string
	logLevel string
	format   = formatText
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "tipbox",
	Short: "Browse tips and keep your favorites",
	Long: `tipbox - browse a catalog of short developer tips and save the ones you like.

Favorites are kept on this device until you sign in; signing in moves them
to your account.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		reportError(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default warn)")
	rootCmd.PersistentFlags().Var(&format, "format", "output format: text or json")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tips", Title: "Tip Commands:"},
		&cobra.Group{ID: "favorites", Title: "Favorite Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
}

// setupLogging routes slog to stderr. Diagnostics stay out of the way of
// command output unless asked for.
func setupLogging() {
	name := logLevel
	if name == "" {
		name = clientconfig.GetLogLevel()
	}
	level := slog.LevelWarn
	switch strings.ToLower(name) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// usageError marks bad user input.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func errorCode(err error) (code, msg string) {
	var ue *usageError
	var fe *favorites.Error
	switch {
	case errors.As(err, &ue):
		return output.ErrCodeInvalidInput, ue.msg
	case errors.As(err, &fe):
		return output.FavoriteErrorCode(err), output.FavoriteErrorMessage(err)
	case errors.Is(err, catalogclient.ErrNotFound):
		return output.ErrCodeNotFound, err.Error()
	}
	if kind := favorites.KindOf(err); kind != favorites.KindUnknown {
		return output.FavoriteErrorCode(err), output.FavoriteErrorMessage(err)
	}
	return output.ErrCodeUnknown, err.Error()
}

func reportError(err error) {
	code, msg := errorCode(err)
	if format == formatJSON {
		output.JSONError(code, msg)
		return
	}
	output.Error("%s", msg)
}
