package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/vango-dev/ripple/internal/config"
	"github.com/vango-dev/ripple/internal/errors"
	"github.com/vango-dev/ripple/internal/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
	noColor   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "ripple",
		Short: "Reactive invalidation engine for widget trees",
		Long: `ripple drives a widget tree from reactive state.

Writes from any goroutine reach exactly the layouts, paints and
scopes that read them, once per frame.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "settings file (default: ./"+config.FileName+" when present)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: text or json")
	pf.BoolVar(&g.noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(
		benchCmd(g),
		serveCmd(g),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads the settings named by --config, or ./ripple.yaml when
// it exists, and applies the log flags on top.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case g.config != "":
		cfg, err = config.LoadFile(g.config)
	default:
		if _, statErr := os.Stat(config.FileName); statErr == nil {
			cfg, err = config.Load(".")
		} else {
			cfg = config.New()
		}
	}
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	format, _ := logging.ParseFormat(cfg.Log.Format)
	return logging.New(level, format, os.Stderr)
}

// printer writes status lines, coloured when the terminal allows.
type printer struct {
	out *termenv.Output
}

func newPrinter(w io.Writer, noColor bool) *printer {
	if noColor {
		return &printer{out: termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))}
	}
	return &printer{out: termenv.NewOutput(w)}
}

func (p *printer) success(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", p.out.String("✓").Foreground(termenv.ANSIGreen), fmt.Sprintf(format, args...))
}

func (p *printer) info(format string, args ...any) {
	fmt.Fprintf(p.out, "  %s\n", fmt.Sprintf(format, args...))
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", p.out.String("⚠").Foreground(termenv.ANSIYellow), fmt.Sprintf(format, args...))
}

func (p *printer) heading(s string) {
	fmt.Fprintf(p.out, "\n%s\n", p.out.String(s).Bold())
}
