package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ragpipe/internal/pipeline"
)

const defaultSampleQuestion = "What are these documents about?"

func newQuickstartCommand(flags *rootFlags) *cobra.Command {
	var question string
	cmd := &cobra.Command{
		Use:   "quickstart [path]",
		Short: "Load, process and query documents in one go",
		Long: `Load documents from path (or the configured documents path), process them,
answer a sample question and print statistics.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, flags, false)
			if err != nil {
				return err
			}
			defer s.Close()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			n, err := s.pipeline.Load(ctx, path)
			if err != nil && n == 0 {
				return err
			}
			if err != nil {
				cmd.PrintErrf("Warning: %v\n", err)
			}
			cmd.Printf("Loaded %d document(s)\n", n)

			rep, err := s.pipeline.Process(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Processed %d document(s) into %d chunk(s)\n\n", rep.Documents, rep.Chunks)
			if !rep.State.IsProcessed() {
				return fmt.Errorf("nothing was indexed from %q", path)
			}

			res, err := s.pipeline.Query(ctx, question, 0)
			if err != nil {
				return err
			}
			if err := pipeline.WriteResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			cmd.Println()
			return printStats(ctx, cmd.OutOrStdout(), s.pipeline)
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", defaultSampleQuestion, "sample question to ask")
	return cmd
}

func newAskCommand(flags *rootFlags) *cobra.Command {
	var (
		k    int
		docs string
	)
	cmd := &cobra.Command{
		Use:   "ask [questions...]",
		Short: "Answer one or more questions",
		Long: `Answer each question from the indexed chunks. With --docs the documents
are loaded and processed first; otherwise the persisted index is used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, flags, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if docs != "" {
				if n, err := s.pipeline.Load(ctx, docs); err != nil && n == 0 {
					return err
				}
				if _, err := s.pipeline.Process(ctx); err != nil {
					return err
				}
			}

			failed := 0
			for i, r := range s.pipeline.BatchQuery(ctx, args, k) {
				if i > 0 {
					cmd.Println()
				}
				if r.Err != nil {
					failed++
				}
				if err := pipeline.WriteResult(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d question(s) failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 0, "chunks to retrieve per question (0 uses the configured value)")
	cmd.Flags().StringVar(&docs, "docs", "", "load and process this file or directory first")
	return cmd
}

func newStatsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline and index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, flags, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return printStats(ctx, cmd.OutOrStdout(), s.pipeline)
		},
	}
}

var errResetNotConfirmed = errors.New("reset clears the whole index; pass --yes to confirm")

func newResetCommand(flags *rootFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, flags, false)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.pipeline.Reset(ctx); err != nil {
				return err
			}
			cmd.Println("Pipeline reset.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

func newConfigCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cmd.Printf("Config file: %s\n\n", path)
			return cfg.Display(cmd.OutOrStdout())
		},
	}
}
