package cli

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Resyncer is the override cleanup operation of rbac.Service.
type Resyncer interface {
	Resync(ctx context.Context, userID int64, keepManual bool, actorID int64) (int, error)
}

// ResyncOptions configures a resync run.
type ResyncOptions struct {
	UserIDs    []int64
	KeepManual bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ResyncCommand clears overrides for each user, stopping at the first error.
// Runs as the system actor.
func ResyncCommand(ctx context.Context, svc Resyncer, opts ResyncOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.UserIDs) == 0 {
		fmt.Fprintln(opts.Stderr, "at least one --user is required")
		return 2
	}
	total := 0
	for _, id := range opts.UserIDs {
		removed, err := svc.Resync(ctx, id, opts.KeepManual, 0)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "resync user %d: %v\n", id, err)
			return 1
		}
		total += removed
		fmt.Fprintf(opts.Stdout, "user %d: removed %d overrides\n", id, removed)
	}
	fmt.Fprintf(opts.Stdout, "total removed: %d\n", total)
	return 0
}
