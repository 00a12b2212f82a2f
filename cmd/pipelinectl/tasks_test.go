package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"screening-pipeline/internal/logging"
	"screening-pipeline/internal/queue"
)

func TestJobArg(t *testing.T) {
	tests := []struct {
		arg     string
		wantErr bool
	}{
		{"job-42", false},
		{"3f1c2a9e_b7", false},
		{"", true},
		{"-leading-dash", true},
		{"job/../../etc", true},
	}

	for _, tt := range tests {
		_, err := jobArg([]string{tt.arg})
		if (err != nil) != tt.wantErr {
			t.Errorf("jobArg(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
		}
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	cfgFile = "does/not/exist.yaml"
	defer func() { cfgFile = "configs/config.yaml" }()

	if err := rootCmd.PersistentPreRunE(versionCmd, nil); err != nil {
		t.Fatalf("version should not load config: %v", err)
	}
}

func TestWaitStatus(t *testing.T) {
	ctx := context.Background()
	adapter := queue.NewAdapter(queue.NewInMemoryTaskStore(), queue.Options{}, nil, logging.NewNop())

	if _, err := waitStatus(ctx, adapter, "job-1", false); !errors.Is(err, queue.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	handle, err := adapter.Enqueue(ctx, "job-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	task, err := waitStatus(ctx, adapter, "job-1", false)
	if err != nil || task.ID != handle.TaskID || task.Status != queue.TaskStatusQueued {
		t.Fatalf("unexpected status %+v, err %v", task, err)
	}

	// a queued run never turns terminal here, so waiting ends with the context
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := waitStatus(waitCtx, adapter, "job-1", true); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
