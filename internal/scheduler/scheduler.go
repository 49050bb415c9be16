// Package scheduler runs named jobs on fixed intervals. Implementations
// coalesce overruns into a single catch-up run and cap how many jobs run
// at once; a trigger over the cap waits rather than being dropped.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Job is one unit of recurring work.
type Job func(ctx context.Context) error

// Scheduler is the periodic-execution capability the service depends on.
type Scheduler interface {
	// Schedule registers job under name to run every interval. Must be
	// called before Start.
	Schedule(name string, every time.Duration, job Job) error
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ErrStarted is returned by Schedule after Start.
var ErrStarted = eris.New("scheduler: already started")

type entry struct {
	name  string
	every time.Duration
	job   Job
}

func validate(name string, every time.Duration, job Job, existing []entry) error {
	if name == "" {
		return eris.New("scheduler: job name is empty")
	}
	if every <= 0 {
		return eris.Errorf("scheduler: job %s has non-positive interval %s", name, every)
	}
	if job == nil {
		return eris.Errorf("scheduler: job %s is nil", name)
	}
	for _, e := range existing {
		if e.name == name {
			return eris.Errorf("scheduler: job %s already scheduled", name)
		}
	}
	return nil
}

// runSafely invokes job, turning a panic into an error.
func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job panicked: %v", r)
		}
	}()
	return job(ctx)
}
