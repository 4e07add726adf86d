package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/entrhq/translator/pkg/types"
)

// printEvents returns a handler that writes one line per worker event.
// Token estimates and stabilization are only logged.
func printEvents(w io.Writer) types.EventHandler {
	var mu sync.Mutex
	return func(e *types.Event) {
		line := formatEvent(e)
		if line == "" {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s %s\n", time.Now().Format("15:04:05"), line)
	}
}

func formatEvent(e *types.Event) string {
	switch e.Type {
	case types.EventTypeLeaseClaimed:
		if e.Handler != "" {
			return fmt.Sprintf("Took over task %d from %s", e.TaskID, e.Handler)
		}
		return fmt.Sprintf("Handling task %d", e.TaskID)
	case types.EventTypeLeaseHeld:
		return fmt.Sprintf("Another instance (%s) is handling this task", e.Handler)
	case types.EventTypeAgentConfigured:
		return "Agent features configured"
	case types.EventTypeBatchDispatched:
		return fmt.Sprintf("Processing items %d - %d (%d chars)", e.Batch.First, e.Batch.Last, e.Batch.Chars)
	case types.EventTypeBatchTimedOut:
		return fmt.Sprintf("No stable reply for items %d - %d", e.Batch.First, e.Batch.Last)
	case types.EventTypeBatchReconciled:
		return fmt.Sprintf("Translated items %d - %d, %d / %d done", e.Batch.First, e.Batch.Last, e.Progress.Done(), e.Progress.Total)
	case types.EventTypeBatchFailed:
		return fmt.Sprintf("Items %d - %d marked %s", e.Batch.First, e.Batch.Last, e.Content)
	case types.EventTypeTaskComplete:
		return fmt.Sprintf("Task %d complete: %d translated, %d failed", e.TaskID, e.Progress.Resolved, e.Progress.Failed)
	case types.EventTypeTaskReplaced:
		return fmt.Sprintf("Task %d was replaced, dropping its batch", e.TaskID)
	case types.EventTypeError:
		return fmt.Sprintf("Error: %v", e.Error)
	default:
		return ""
	}
}
