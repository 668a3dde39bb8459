package cron

import (
	"context"
	"strings"
)

// Job is one maintenance task run by the cron worker on every cycle, such
// as purging accounts that never verified their email.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the maintenance jobs in run order. Job names label metrics
// and logs, so a name is only registered once.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from jobs, skipping nils and repeated names.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register appends job unless it is nil, unnamed, or its name is taken. It
// reports whether the job was added.
func (r *Registry) Register(job Job) bool {
	if job == nil {
		return false
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return false
	}
	for _, existing := range r.jobs {
		if existing.Name() == name {
			return false
		}
	}
	r.jobs = append(r.jobs, job)
	return true
}

// Jobs returns a copy of the registered jobs in run order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Names lists the registered job names, for the worker's startup log.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
