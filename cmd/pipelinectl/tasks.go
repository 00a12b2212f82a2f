package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"screening-pipeline/internal/api/validation"
	"screening-pipeline/internal/queue"
)

const statusPollInterval = 2 * time.Second

var enqueueCmd = &cobra.Command{
	Use:   "enqueue JOB_ID",
	Short: "Request a screening run for a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := jobArg(args)
		if err != nil {
			return err
		}
		adapter, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		handle, err := adapter.Enqueue(cmd.Context(), jobID)
		if err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		return printHandle(handle)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status JOB_ID",
	Short: "Show the latest run of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := jobArg(args)
		if err != nil {
			return err
		}
		adapter, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		task, err := waitStatus(cmd.Context(), adapter, jobID, waitFor)
		if errors.Is(err, queue.ErrTaskNotFound) {
			return fmt.Errorf("no run recorded for job %s", jobID)
		}
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if jsonOutput {
			return printJSON(task.StatusResponse())
		}
		printTasks([]*queue.PipelineTask{task})
		return nil
	},
}

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List runs that exhausted their attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		adapter, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		tasks, err := adapter.Failed(cmd.Context())
		if err != nil {
			return fmt.Errorf("list failed: %w", err)
		}
		if jsonOutput {
			return printJSON(tasks)
		}
		if len(tasks) == 0 {
			fmt.Println("no failed runs")
			return nil
		}
		printTasks(tasks)
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue JOB_ID",
	Short: "Retry a failed run with a fresh attempt budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := jobArg(args)
		if err != nil {
			return err
		}
		adapter, err := openAdapter(cmd.Context())
		if err != nil {
			return err
		}
		defer adapter.Close()

		task, err := adapter.Status(cmd.Context(), jobID)
		if err == nil && task.Status == queue.TaskStatusFailed && !assumeYes {
			printTasks([]*queue.PipelineTask{task})
			_, answer, perr := confirmPrompt.Run()
			if perr != nil {
				return perr
			}
			if answer != promptYes {
				fmt.Println("requeue cancelled")
				return nil
			}
		}

		handle, err := adapter.Requeue(cmd.Context(), jobID)
		switch {
		case errors.Is(err, queue.ErrTaskNotFound):
			return fmt.Errorf("no run recorded for job %s", jobID)
		case errors.Is(err, queue.ErrTaskNotFailed):
			return fmt.Errorf("latest run of job %s has not failed", jobID)
		case err != nil:
			return fmt.Errorf("requeue: %w", err)
		}
		return printHandle(handle)
	},
}

const (
	promptYes = "Yes"
	promptNo  = "No"
)

var confirmPrompt = promptui.Select{
	Label: "Requeue this run with a fresh attempt budget?",
	Items: []string{promptYes, promptNo},
}

var (
	waitFor   bool
	assumeYes bool
)

func init() {
	rootCmd.AddCommand(enqueueCmd, statusCmd, failedCmd, requeueCmd)

	statusCmd.Flags().BoolVarP(&waitFor, "wait", "w", false, "poll until the run completes or fails")
	requeueCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")
}

// waitStatus returns the latest task of jobID, polling until it is terminal when wait is set
func waitStatus(ctx context.Context, adapter *queue.Adapter, jobID string, wait bool) (*queue.PipelineTask, error) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		task, err := adapter.Status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		resp := task.StatusResponse()
		if !wait || resp.IsTerminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

func jobArg(args []string) (string, error) {
	if !validation.JobIDPattern.MatchString(args[0]) {
		return "", fmt.Errorf("invalid job id %q", args[0])
	}
	return args[0], nil
}

func printHandle(handle queue.TaskHandle) error {
	if jsonOutput {
		return printJSON(handle)
	}
	if handle.Existing {
		fmt.Printf("job %s already has an active run %s (%s)\n", handle.JobID, handle.TaskID, handle.Status)
		return nil
	}
	fmt.Printf("job %s queued as %s\n", handle.JobID, handle.TaskID)
	return nil
}

func printTasks(tasks []*queue.PipelineTask) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tTASK\tSTATUS\tATTEMPTS\tUPDATED\tLAST ERROR")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			t.JobID, t.ID, t.Status, t.Attempts, t.MaxAttempts,
			t.UpdatedAt.Format(time.RFC3339), t.LastError)
	}
	w.Flush()
}
