package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"screening-pipeline/internal/evaluation"
	"screening-pipeline/internal/extraction"
	"screening-pipeline/internal/llm"
	"screening-pipeline/internal/logging"
	"screening-pipeline/internal/pipeline"
	"screening-pipeline/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run JOB_ID",
	Short: "Run one screening batch in this process, bypassing the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := jobArg(args)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		logger := logging.GetGlobalLogger()

		store, err := storage.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening persistence gateway: %w", err)
		}
		defer store.Close()

		llmManager := llm.NewManager(cfg, logger)
		if err := llmManager.Start(ctx); err != nil {
			return fmt.Errorf("starting llm manager: %w", err)
		}
		defer llmManager.Stop()
		completer := pipeline.NewRateLimitedCompleter(llmManager, cfg.Workers.RateLimit, cfg.Workers.RateBurst)

		extractor := extraction.NewClient(cfg, extraction.NewHTTPFetcher(cfg, nil), extraction.NewDocconvConverter(), completer, logger)
		evaluator, err := evaluation.New(cfg, completer, logger)
		if err != nil {
			return err
		}

		orchestrator := pipeline.New(store, extractor, evaluator, pipeline.OptionsFromConfig(cfg), logger)
		result, err := orchestrator.Run(ctx, jobID)
		if result != nil && result.Report != nil && jsonOutput {
			if perr := printJSON(result.Report); perr != nil {
				return perr
			}
		} else if result != nil && result.Report != nil {
			r := result.Report
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "job\t%s\n", r.JobID)
			fmt.Fprintf(w, "state\t%s\n", r.State)
			fmt.Fprintf(w, "attempted\t%d\n", r.Attempted)
			fmt.Fprintf(w, "shortlisted\t%d\n", r.Shortlisted)
			fmt.Fprintf(w, "under review\t%d\n", r.UnderReview)
			fmt.Fprintf(w, "rejected\t%d\n", r.Rejected)
			fmt.Fprintf(w, "extraction failures\t%d\n", r.ExtractionFailures)
			fmt.Fprintf(w, "evaluation failures\t%d\n", r.EvaluationFailures)
			fmt.Fprintf(w, "duration\t%s\n", r.Duration)
			w.Flush()
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
