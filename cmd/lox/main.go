package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/benaskins/lox/internal/audit"
	"github.com/benaskins/lox/internal/config"
)

var (
	configPath string
	verbose    bool
	noColor    bool

	out      = newStyles(true)
	auditLog *audit.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lox",
	Short: "Platform-independent access to the OS secure store",
	Long: `lox stores and retrieves secrets in the macOS Keychain, the freedesktop
Secret Service or the Windows Credential Vault, whichever the platform has.

Commands that address lox's own secrets take a service name. It is required
because defaulting to the calling process name lets one program reach
another's secrets.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug detail to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// setup loads the config file, then installs logging, output styles and the
// audit log.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}

	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case cfg.LogLevel != "":
		level, _ = cfg.Level()
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	out = newStyles(!noColor && !cfg.NoColor)

	closeAuditLog()
	if cfg.AuditLog != "" {
		l, err := audit.NewLogger(cfg.AuditLog)
		if err != nil {
			return err
		}
		auditLog = l
		slog.Debug("auditing store operations", "path", l.Path())
	}
	return nil
}

func closeAuditLog() {
	if auditLog == nil {
		return
	}
	if err := auditLog.Close(); err != nil {
		slog.Warn("closing audit log", "error", err)
	}
	auditLog = nil
}

func main() {
	memguard.CatchInterrupt()

	err := rootCmd.Execute()
	closeAuditLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, out.failure.Render(err.Error()))
		memguard.SafeExit(1)
	}
	memguard.Purge()
}
