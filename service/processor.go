package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"matchd/infra/metrics"
)

var ErrProcessorStopped = errors.New("processor stopped")

type job struct {
	ctx  context.Context
	req  *Request
	done chan Response
}

// Processor is the single writer: a bounded queue in front of one
// goroutine that logs every message to the entry WAL and runs it.
type Processor struct {
	handler Handler
	wal     EntryLog
	queue   chan job
	stopped chan struct{}
	now     func() time.Time
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewProcessor(h Handler, wal EntryLog, queueSize int, m *metrics.Metrics, log *zap.Logger) *Processor {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Processor{
		handler: h,
		wal:     wal,
		queue:   make(chan job, queueSize),
		stopped: make(chan struct{}),
		now:     func() time.Time { return time.Now().UTC() },
		metrics: m,
		log:     log.Named("processor"),
	}
}

// Submit blocks until the request was processed, ctx ends, or the
// processor stopped.
func (p *Processor) Submit(ctx context.Context, req *Request) (Response, error) {
	j := job{ctx: ctx, req: req, done: make(chan Response, 1)}
	select {
	case p.queue <- j:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-p.stopped:
		return Response{}, ErrProcessorStopped
	}
	p.metrics.SetQueueSize(len(p.queue))

	select {
	case resp := <-j.done:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-p.stopped:
		return Response{}, ErrProcessorStopped
	}
}

// QueueSize is the number of messages waiting.
func (p *Processor) QueueSize() int { return len(p.queue) }

// Run processes messages until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	defer close(p.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-p.queue:
			p.metrics.SetQueueSize(len(p.queue))
			j.done <- p.process(j)
		}
	}
}

func (p *Processor) process(j job) Response {
	req := j.req
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	if req.Date.IsZero() {
		req.Date = p.now()
	}
	if err := req.Validate(); err != nil {
		return Response{MessageID: req.MessageID, Status: StatusBadRequest, Reason: err.Error()}
	}

	if p.wal != nil {
		payload, err := EncodeRequest(req)
		if err != nil {
			return Response{MessageID: req.MessageID, Status: StatusBadRequest, Reason: err.Error()}
		}
		seq, err := p.wal.Append(req.Type, payload)
		if err != nil {
			p.log.Error("append entry wal", zap.String("message_id", req.MessageID), zap.Error(err))
			return Response{MessageID: req.MessageID, Status: StatusRuntime, Reason: "unable to log message"}
		}
		req.EntrySeq = seq
	}

	// Work already accepted into the WAL runs to the end even if the
	// submitter gave up.
	return p.handler.Handle(context.WithoutCancel(j.ctx), req)
}
