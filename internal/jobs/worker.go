package jobs

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/executor"
	"github.com/tillerhq/tiller/pkg/models"
)

// Pool drains the queue with a fixed set of workers. Each job runs through
// the same orchestrator as streamed requests; events are logged instead of
// streamed to a client.
type Pool struct {
	queue   *Queue
	orch    *executor.Orchestrator
	workers int
	wg      sync.WaitGroup
}

// NewPool creates a worker pool over the queue.
func NewPool(queue *Queue, orch *executor.Orchestrator, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{queue: queue, orch: orch, workers: workers}
}

// Start launches the workers. They exit when ctx fires or the queue closes.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	log.Info().Int("workers", p.workers).Msg("Job workers started")
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		job := p.queue.Dequeue(ctx)
		if job == nil {
			log.Debug().Int("worker", id).Msg("Job worker stopping")
			return
		}
		p.runJob(ctx, job)
	}
}

func (p *Pool) runJob(ctx context.Context, job *models.Job) {
	log.Info().
		Str("job", job.ID).
		Str("priority", models.PriorityName(job.Priority)).
		Msg("Job started")

	res := p.orch.Run(ctx, job.ID, job.Request, func(ev models.StreamEvent) error {
		if ev.Kind == models.EventError {
			log.Warn().Str("job", job.ID).Str("code", ev.Code).Msg(ev.Message)
		}
		return nil
	})

	switch res.State {
	case models.RunCompleted:
		p.queue.SetStatus(job.ID, models.JobCompleted)
	case models.RunCancelled:
		p.queue.SetStatus(job.ID, models.JobCancelled)
	default:
		p.queue.SetStatus(job.ID, models.JobFailed)
	}
	log.Info().Str("job", job.ID).Str("state", string(res.State)).Msg("Job finished")
}

// Cancel stops a job wherever it is: still queued jobs are removed, running
// ones get a cooperative cancel through the orchestrator. It always
// acknowledges.
func (p *Pool) Cancel(jobID string) models.CancelResponse {
	if p.queue.Remove(jobID) {
		return models.CancelResponse{
			Success: true,
			JobID:   jobID,
			Status:  string(models.JobCancelled),
			Message: "removed from queue",
		}
	}
	return p.orch.Cancel(jobID)
}
