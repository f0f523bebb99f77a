// Package jobs runs the coordinator's periodic maintenance on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Task is one unit of periodic work. It reports how many items it handled.
type Task func(ctx context.Context) (int, error)

// Job runs a Task on a cron schedule (seconds field included). A run still in
// progress when the next one is due causes that next run to be skipped.
type Job struct {
	name    string
	spec    string
	task    Task
	timeout time.Duration
	cron    *cron.Cron
	log     *logrus.Entry
}

func NewJob(name, spec string, task Task, log *logrus.Entry) *Job {
	l := log.WithField("job", name)
	return &Job{
		name:    name,
		spec:    spec,
		task:    task,
		timeout: 30 * time.Second,
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(l)))),
		log:     l,
	}
}

// RunOnce executes the task immediately.
func (j *Job) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	n, err := j.task(ctx)
	if err != nil {
		j.log.WithError(err).Error("job run failed")
	}
	if n > 0 {
		j.log.WithField("handled", n).Debug("job run done")
	}
}

// Start schedules the job.
func (j *Job) Start() error {
	if _, err := j.cron.AddFunc(j.spec, func() { j.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
	}
	j.cron.Start()
	j.log.WithField("schedule", j.spec).Info("job started")
	return nil
}

// Stop unschedules the job and waits for a running task to finish.
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
	j.log.Info("job stopped")
}

// ArrivalSweeper and OrderReconciler are implemented by the delivery correlator.
type ArrivalSweeper interface {
	SweepArrivalTimeouts(ctx context.Context) (int, error)
}

type OrderReconciler interface {
	ReconcileOrderStatuses(ctx context.Context) (int, error)
}

// Schedules holds the cron specs of the manager's jobs. An empty spec disables a job.
type Schedules struct {
	ArrivalSweep   string
	OrderReconcile string
}

// JobManager coordinates all scheduled jobs in the application.
type JobManager struct {
	jobs []*Job
}

func NewJobManager(sweeper ArrivalSweeper, reconciler OrderReconciler, s Schedules, log *logrus.Entry) *JobManager {
	jm := &JobManager{}
	if s.ArrivalSweep != "" && sweeper != nil {
		jm.jobs = append(jm.jobs, NewJob("arrival_timeout_sweep", s.ArrivalSweep, sweeper.SweepArrivalTimeouts, log))
	}
	if s.OrderReconcile != "" && reconciler != nil {
		jm.jobs = append(jm.jobs, NewJob("order_status_reconcile", s.OrderReconcile, reconciler.ReconcileOrderStatuses, log))
	}
	return jm
}

// StartAll starts all scheduled jobs. If one fails to start, the ones already
// started are stopped.
func (jm *JobManager) StartAll() error {
	for i, j := range jm.jobs {
		if err := j.Start(); err != nil {
			for _, started := range jm.jobs[:i] {
				started.Stop()
			}
			return err
		}
	}
	return nil
}

// StopAll stops all scheduled jobs gracefully.
func (jm *JobManager) StopAll() {
	for _, j := range jm.jobs {
		j.Stop()
	}
}

// Len returns the number of configured jobs.
func (jm *JobManager) Len() int {
	return len(jm.jobs)
}
