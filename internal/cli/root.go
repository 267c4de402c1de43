// Package cli defines the ragpipe command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragpipe/internal/app"
	"ragpipe/internal/config"
	"ragpipe/internal/logger"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/tui"
)

type rootFlags struct {
	configPath string
	verbose    bool
	logFile    string
}

// NewRootCommand returns the root command with every subcommand attached.
// Run without a subcommand it opens the interactive menu.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "ragpipe",
		Short: "Answer questions about local documents",
		Long: `ragpipe loads .txt and .pdf documents, splits them into overlapping chunks,
indexes their embeddings and answers questions from the most similar chunks.

Run without a subcommand to open the interactive menu.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, flags)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "append logs to this file")

	root.AddCommand(
		newQuickstartCommand(flags),
		newAskCommand(flags),
		newStatsCommand(flags),
		newResetCommand(flags),
		newConfigCommand(flags),
	)
	return root
}

// session is a configured pipeline plus the resources to release with it.
type session struct {
	cfg      *config.AppConfig
	cfgPath  string
	pipeline *pipeline.Pipeline
	log      *zap.Logger
	closeLog func() error
}

func (s *session) Close() error {
	err := s.pipeline.Close()
	_ = s.log.Sync()
	if s.closeLog != nil {
		if cerr := s.closeLog(); err == nil {
			err = cerr
		}
	}
	return err
}

func loadConfig(flags *rootFlags) (*config.AppConfig, string, error) {
	if flags.configPath != "" {
		cfg, err := config.Load(flags.configPath)
		return cfg, flags.configPath, err
	}
	return config.LoadDefault()
}

// openSession loads config and builds the pipeline. Without --log-file,
// logs go to stderr, or nowhere when quiet is set.
func openSession(ctx context.Context, cmd *cobra.Command, flags *rootFlags, quiet bool) (*session, error) {
	cfg, path, err := loadConfig(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	s := &session{cfg: cfg, cfgPath: path}
	switch {
	case flags.logFile != "":
		s.log, s.closeLog, err = logger.OpenFile(flags.logFile, flags.verbose)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
	case quiet:
		s.log = zap.NewNop()
	default:
		s.log = logger.New(logger.Options{Verbose: flags.verbose, Output: cmd.ErrOrStderr()})
	}
	s.pipeline, err = app.Build(ctx, cfg, s.log)
	if err != nil {
		if s.closeLog != nil {
			_ = s.closeLog()
		}
		return nil, err
	}
	return s, nil
}

func runInteractive(cmd *cobra.Command, flags *rootFlags) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd, flags, true)
	if err != nil {
		return err
	}
	defer s.Close()

	var cfgText strings.Builder
	fmt.Fprintf(&cfgText, "Config file: %s\n\n", s.cfgPath)
	if err := s.cfg.Display(&cfgText); err != nil {
		return err
	}
	m := tui.New(ctx, s.pipeline, cfgText.String())
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func printStats(ctx context.Context, w io.Writer, p *pipeline.Pipeline) error {
	st, err := p.Stats(ctx)
	if err != nil {
		return err
	}
	return pipeline.WriteStats(w, st)
}
