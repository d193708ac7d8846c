package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/tillerhq/tiller/internal/agents"
	"github.com/tillerhq/tiller/internal/catalog"
	"github.com/tillerhq/tiller/internal/classifier"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/conversation"
	"github.com/tillerhq/tiller/internal/executor"
	"github.com/tillerhq/tiller/internal/guardrails"
	"github.com/tillerhq/tiller/internal/jobs"
	"github.com/tillerhq/tiller/internal/provision"
	"github.com/tillerhq/tiller/pkg/models"
)

// echoClient answers every model call with fixed content.
type echoClient struct{}

func (echoClient) Complete(context.Context, []models.ChatMessage) (*models.Completion, error) {
	return &models.Completion{Content: `{"target_agent":"chat","action_intent":"query","confidence":0.9}`}, nil
}

func newOrchestrator(store *conversation.Store) *executor.Orchestrator {
	cat := catalog.New()
	client := echoClient{}
	return executor.New(
		store,
		classifier.New(client, config.ClassifierConfig{Timeout: time.Second}),
		guardrails.NewEngine(guardrails.DefaultRules()),
		provision.New(cat, nil, config.SemanticConfig{TopK: 5, MinScore: 0.35}),
		agents.NewRegistry(client),
		cat,
	)
}

func TestPoolDrainsQueue(t *testing.T) {
	store := conversation.NewStore()
	q := jobs.NewQueue()
	pool := jobs.NewPool(q, newOrchestrator(store), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var ids []string
	for i := 0; i < 5; i++ {
		job := q.Enqueue(models.ChatRequest{Query: "background reprocess", UserID: "u"}, models.PriorityReprocess)
		ids = append(ids, job.ID)
	}

	deadline := time.After(5 * time.Second)
	for _, id := range ids {
		for {
			if s, _ := q.Status(id); s == models.JobCompleted {
				break
			}
			select {
			case <-deadline:
				s, _ := q.Status(id)
				t.Fatalf("job %q stuck in %q", id, s)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	q.Close()
	cancel()
	pool.Wait()
}

func TestPoolCancelQueuedJob(t *testing.T) {
	store := conversation.NewStore()
	q := jobs.NewQueue()
	// No workers started; the job stays queued.
	pool := jobs.NewPool(q, newOrchestrator(store), 1)

	job := q.Enqueue(models.ChatRequest{Query: "x"}, models.PriorityBackground)
	resp := pool.Cancel(job.ID)

	if !resp.Success {
		t.Error("Cancel() should acknowledge")
	}
	if resp.Status != string(models.JobCancelled) {
		t.Errorf("Status = %q, want CANCELLED", resp.Status)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after cancel, want 0", q.Len())
	}
}

func TestPoolCancelUnknownJobAcknowledges(t *testing.T) {
	store := conversation.NewStore()
	q := jobs.NewQueue()
	pool := jobs.NewPool(q, newOrchestrator(store), 1)

	if resp := pool.Cancel("gone"); !resp.Success {
		t.Error("Cancel() of an unknown job should still acknowledge")
	}
}
