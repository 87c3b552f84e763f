package store

import (
	"context"
	"time"

	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/rs/zerolog/log"
)

// Recorder persists call transitions from a queue so the tracker never waits
// on disk. When the queue is full the snapshot is dropped.
type Recorder struct {
	store *CallStore
	queue chan domain.Call
}

func NewRecorder(s *CallStore, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{store: s, queue: make(chan domain.Call, buffer)}
}

func (r *Recorder) OnCallTransition(_ domain.CallStatus, call domain.Call) {
	select {
	case r.queue <- call:
	default:
		log.Warn().Str("module", "store").Int64("call", int64(call.ID)).Msg("recorder queue full, snapshot dropped")
	}
}

// Run saves queued snapshots until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case c := <-r.queue:
			r.save(ctx, c)
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case c := <-r.queue:
			r.save(ctx, c)
		default:
			return
		}
	}
}

func (r *Recorder) save(ctx context.Context, c domain.Call) {
	if err := r.store.Save(ctx, c); err != nil {
		log.Error().Err(err).Str("module", "store").Int64("call", int64(c.ID)).Msg("save call")
	}
}
