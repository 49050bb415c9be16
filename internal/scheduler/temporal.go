package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/rotisserie/eris"
)

const (
	jobWorkflowName = "RunScheduledJob"
	jobActivityName = "ExecuteJob"
)

// JobInput is the argument of every scheduled workflow run.
type JobInput struct {
	Name        string `json:"name"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// JobWorkflow executes a single job activity with no retries; the next
// scheduled run is the retry.
func JobWorkflow(ctx workflow.Context, in JobInput) error {
	timeout := time.Duration(in.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	return workflow.ExecuteActivity(ctx, jobActivityName, in).Get(ctx, nil)
}

type jobActivities struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// Execute runs the named job.
func (a *jobActivities) Execute(ctx context.Context, in JobInput) error {
	a.mu.RLock()
	job, ok := a.jobs[in.Name]
	a.mu.RUnlock()
	if !ok {
		return temporal.NewNonRetryableApplicationError("unknown job "+in.Name, "UnknownJob", nil)
	}
	return runSafely(ctx, job)
}

// TemporalOptions configures a TemporalScheduler.
type TemporalOptions struct {
	TaskQueue     string
	MaxConcurrent int
	JobTimeout    time.Duration
}

// TemporalScheduler registers one Temporal Schedule per job. Overlapping
// triggers use the BUFFER_ONE policy so a late run is followed by at most
// one catch-up run, and the worker's activity slots cap concurrency.
type TemporalScheduler struct {
	client client.Client
	opts   TemporalOptions
	acts   *jobActivities

	mu      sync.Mutex
	entries []entry
	worker  worker.Worker
}

// NewTemporal creates a scheduler on an established client.
func NewTemporal(c client.Client, opts TemporalOptions) *TemporalScheduler {
	if opts.TaskQueue == "" {
		opts.TaskQueue = "venue-signal-tiers"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	return &TemporalScheduler{
		client: c,
		opts:   opts,
		acts:   &jobActivities{jobs: make(map[string]Job)},
	}
}

// DialTemporal connects to a Temporal frontend.
func DialTemporal(hostPort, namespace string) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: dial temporal %s", hostPort)
	}
	return c, nil
}

func (s *TemporalScheduler) Schedule(name string, every time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != nil {
		return ErrStarted
	}
	if err := validate(name, every, job, s.entries); err != nil {
		return err
	}
	s.entries = append(s.entries, entry{name: name, every: every, job: job})
	s.acts.mu.Lock()
	s.acts.jobs[name] = job
	s.acts.mu.Unlock()
	return nil
}

// Start runs the worker and creates or updates the schedules.
func (s *TemporalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != nil {
		return ErrStarted
	}

	w := worker.New(s.client, s.opts.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: s.opts.MaxConcurrent,
	})
	w.RegisterWorkflowWithOptions(JobWorkflow, workflow.RegisterOptions{Name: jobWorkflowName})
	w.RegisterActivityWithOptions(s.acts.Execute, activity.RegisterOptions{Name: jobActivityName})
	if err := w.Start(); err != nil {
		return eris.Wrap(err, "scheduler: start temporal worker")
	}
	s.worker = w

	for _, e := range s.entries {
		if err := s.upsertSchedule(ctx, e); err != nil {
			w.Stop()
			s.worker = nil
			return err
		}
	}
	zap.L().Info("scheduler: temporal schedules ready",
		zap.String("task_queue", s.opts.TaskQueue),
		zap.Int("jobs", len(s.entries)),
	)
	return nil
}

func scheduleID(name string) string { return "venue-signal-" + name }

func (s *TemporalScheduler) upsertSchedule(ctx context.Context, e entry) error {
	spec := client.ScheduleSpec{
		Intervals: []client.ScheduleIntervalSpec{{Every: e.every}},
	}
	_, err := s.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID:      scheduleID(e.name),
		Spec:    spec,
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_BUFFER_ONE,
		Action: &client.ScheduleWorkflowAction{
			ID:        scheduleID(e.name) + "-run",
			Workflow:  jobWorkflowName,
			Args:      []interface{}{JobInput{Name: e.name, TimeoutSecs: int(s.opts.JobTimeout.Seconds())}},
			TaskQueue: s.opts.TaskQueue,
		},
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return eris.Wrapf(err, "scheduler: create schedule %s", e.name)
	}

	handle := s.client.ScheduleClient().GetHandle(ctx, scheduleID(e.name))
	err = handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			sched := in.Description.Schedule
			sched.Spec = &spec
			if sched.Policy != nil {
				sched.Policy.Overlap = enumspb.SCHEDULE_OVERLAP_POLICY_BUFFER_ONE
			}
			return &client.ScheduleUpdate{Schedule: &sched}, nil
		},
	})
	if err != nil {
		return eris.Wrapf(err, "scheduler: update schedule %s", e.name)
	}
	return nil
}

// Shutdown stops the worker and closes the client. Schedules stay
// registered server-side. Calls after the first are no-ops.
func (s *TemporalScheduler) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != nil {
		s.worker.Stop()
		s.worker = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}
