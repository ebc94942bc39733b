package audit

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"schoolreg/internal/logging"
	"schoolreg/internal/metrics"
	"schoolreg/internal/queue"
)

// MessageType tags audit entries on the queue.
const MessageType = "audit.entry"

// Recorder accepts entries without blocking and publishes them from a background goroutine.
type Recorder struct {
	q       queue.Queue
	entries chan Entry
	timeout time.Duration
	now     func() time.Time

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewRecorder starts a recorder that buffers up to size entries before dropping.
func NewRecorder(q queue.Queue, size int) *Recorder {
	if size <= 0 {
		size = 1024
	}
	r := &Recorder{
		q:       q,
		entries: make(chan Entry, size),
		timeout: 5 * time.Second,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.publishLoop()
	return r
}

// Record queues e for persistence. It never blocks: when the buffer is full the entry is dropped.
func (r *Recorder) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	if e.Username == "" {
		e.Username = Anonymous
	}
	select {
	case r.entries <- e:
	default:
		metrics.AuditWriteFailures.WithLabelValues("buffer").Inc()
		logging.Warn().Str("action", e.Action).Msg("audit buffer full, dropping entry")
	}
}

// Close stops accepting work and flushes whatever is buffered.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Recorder) publishLoop() {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.entries:
			r.publish(e)
		case <-r.stop:
			for {
				select {
				case e := <-r.entries:
					r.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) publish(e Entry) {
	body, err := json.Marshal(e)
	if err != nil {
		metrics.AuditWriteFailures.WithLabelValues("encode").Inc()
		logging.Error().Err(err).Str("action", e.Action).Msg("encode audit entry")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		metrics.AuditWriteFailures.WithLabelValues("publish").Inc()
		logging.Error().Err(err).Str("action", e.Action).Msg("publish audit entry")
	}
}

// Writer stores entries taken off the queue.
type Writer interface {
	Insert(ctx context.Context, e Entry) error
}

// Drain consumes q and writes every audit entry to w until ctx is done.
func Drain(ctx context.Context, q queue.Queue, w Writer) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	log := logging.With().Str("component", "audit-sink").Logger()
	for msg := range messages {
		if msg.Type != MessageType {
			log.Warn().Str("type", msg.Type).Msg("ignoring unknown message")
			continue
		}
		var e Entry
		if err := json.Unmarshal(msg.Body, &e); err != nil {
			metrics.AuditWriteFailures.WithLabelValues("decode").Inc()
			log.Error().Err(err).Msg("decode audit entry")
			continue
		}
		// The sink outlives request contexts; a cancelled ctx must not lose the entry in hand.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err := w.Insert(writeCtx, e)
		cancel()
		if err != nil {
			metrics.AuditWriteFailures.WithLabelValues("store").Inc()
			log.Error().Err(err).Str("action", e.Action).Msg("store audit entry")
			continue
		}
		metrics.AuditEntriesRecorded.Inc()
	}
	return nil
}
