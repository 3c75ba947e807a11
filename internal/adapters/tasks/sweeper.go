package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// TypeCleanGuests sweeps orphaned guest sessions and attendees out of
// one room. Scheduled with a delay after guest activity; unique per
// room so a burst of guest joins queues a single sweep.
const TypeCleanGuests = "rooms:clean_guests"

type cleanGuestsPayload struct {
	RoomToken string `json:"room_token"`
}

// Scheduler enqueues background sweeps.
type Scheduler struct {
	client *asynq.Client
	delay  time.Duration
}

func NewScheduler(redisAddr string, delay time.Duration) *Scheduler {
	return &Scheduler{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		delay:  delay,
	}
}

// ScheduleGuestSweep queues a guest cleanup for the room after the
// configured delay.
func (s *Scheduler) ScheduleGuestSweep(ctx context.Context, token domain.RoomToken) error {
	payload, err := json.Marshal(cleanGuestsPayload{RoomToken: string(token)})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeCleanGuests, payload)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(s.delay),
		asynq.Unique(s.delay),
		asynq.MaxRetry(3),
	)
	return err
}

func (s *Scheduler) Close() error {
	return s.client.Close()
}

// Worker consumes sweep tasks. It resolves the room and hands the
// actual cleanup to the session tracker.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	registry *app.RoomRegistry
	tracker  *app.SessionTracker
}

func NewWorker(redisAddr string, concurrency int, registry *app.RoomRegistry, tracker *app.SessionTracker) *Worker {
	w := &Worker{
		server: asynq.NewServer(
			asynq.RedisClientOpt{Addr: redisAddr},
			asynq.Config{
				Concurrency: concurrency,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					log.Error().Str("module", "adapters.tasks").Str("type", task.Type()).
						Err(err).Msg("task failed")
				}),
			},
		),
		mux:      asynq.NewServeMux(),
		registry: registry,
		tracker:  tracker,
	}
	w.mux.HandleFunc(TypeCleanGuests, w.handleCleanGuests)
	return w
}

func (w *Worker) handleCleanGuests(ctx context.Context, task *asynq.Task) error {
	var payload cleanGuestsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	room, err := w.registry.RoomByToken(ctx, domain.RoomToken(payload.RoomToken))
	if err == core.ErrNotFound {
		// Room deleted since the sweep was queued, nothing left to clean.
		return nil
	}
	if err != nil {
		return err
	}

	if err := w.tracker.CleanGuestParticipants(ctx, room); err != nil {
		return err
	}
	log.Debug().Str("module", "adapters.tasks").Str("room", payload.RoomToken).
		Msg("guest sweep done")
	return nil
}

// Run starts the worker and blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
