// Package session implements the capture session controller: it owns the
// receive loop, the slot ring, the abort token, and the downstream stage
// chain and sinks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridcap/gridcap/internal/column"
	"github.com/gridcap/gridcap/internal/config"
	"github.com/gridcap/gridcap/internal/core"
	"github.com/gridcap/gridcap/internal/ingest"
	"github.com/gridcap/gridcap/internal/kernel"
	"github.com/gridcap/gridcap/internal/metrics"
	"github.com/gridcap/gridcap/internal/ring"
	"github.com/gridcap/gridcap/internal/rxq"
	"github.com/gridcap/gridcap/internal/sink"
	"github.com/gridcap/gridcap/internal/stage"
)

// Session is one capture run against one NIC/queue pair with a fixed
// traffic type.
type Session struct {
	traffic core.TrafficType
	queue   rxq.Queue
	ring    *ring.Ring
	stages  []stage.Stage
	sinks   []sink.Sink
	abort   *core.AbortToken
	ingest  *ingest.Server

	lanes       int
	maxPackets  int
	pollTimeout time.Duration
}

// New constructs the session from validated configuration. Any failure
// here is fatal; no capture state exists afterwards.
func New(cfg *config.Config) (*Session, error) {
	traffic, err := core.ParseTrafficType(cfg.Capture.Traffic)
	if err != nil {
		return nil, err
	}

	queue, err := rxq.Open(cfg.Capture.Queue, cfg.Capture.Params)
	if err != nil {
		return nil, fmt.Errorf("open receive queue: %w", err)
	}

	s := &Session{
		traffic:     traffic,
		queue:       queue,
		ring:        ring.New(cfg.Capture.RingSize),
		abort:       &core.AbortToken{},
		lanes:       cfg.Capture.Lanes,
		maxPackets:  cfg.Capture.MaxPackets,
		pollTimeout: time.Duration(cfg.Capture.PollTimeoutMs) * time.Millisecond,
	}

	for _, sc := range cfg.Stages {
		st, err := stage.Build(sc.Name, sc.Params)
		if err != nil {
			queue.Close()
			return nil, err
		}
		s.stages = append(s.stages, st)
	}
	for _, kc := range cfg.Sinks {
		sk, err := sink.Build(kc.Name, kc.Params)
		if err != nil {
			s.closeAll()
			return nil, err
		}
		s.sinks = append(s.sinks, sk)
	}

	if cfg.Ingest.Enabled {
		srv, err := ingest.New(&ingest.Config{
			Listen:       cfg.Ingest.Listen,
			Endpoint:     cfg.Ingest.Endpoint,
			MaxQueueSize: cfg.Ingest.MaxQueueSize,
			QueueTimeout: cfg.Ingest.QueueTimeout,
		})
		if err != nil {
			s.closeAll()
			return nil, err
		}
		s.ingest = srv
	}
	return s, nil
}

// Run drives the capture loop until the context is cancelled, the queue is
// exhausted, or the session aborts. One iteration runs one kernel
// invocation and, when a slot was published, consumes it synchronously.
func (s *Session) Run(ctx context.Context) error {
	defer s.closeAll()

	if s.ingest != nil {
		go func() {
			if err := s.ingest.Start(); err != nil {
				slog.Error("ingest server failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.ingest.Stop(stopCtx)
		}()
	}

	slog.Info("capture session started",
		"traffic", s.traffic.String(), "ring_size", s.ring.Len(), "lanes", s.lanes)

	trafficLabel := s.traffic.String()
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("capture session stopped", "reason", "cancelled")
			return nil
		}

		res, err := kernel.Receive(ctx, kernel.Params{
			Queue:       s.queue,
			Ring:        s.ring,
			IsTCP:       s.traffic == core.TrafficTCP,
			Lanes:       s.lanes,
			MaxPackets:  s.maxPackets,
			PollTimeout: s.pollTimeout,
			Abort:       s.abort,
		})
		if err != nil {
			if errors.Is(err, core.ErrQueueClosed) {
				slog.Info("capture session stopped", "reason", "queue exhausted")
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			metrics.AbortsTotal.Inc()
			slog.Error("capture session aborted", "error", err)
			return fmt.Errorf("%w: %v", core.ErrSessionAborted, err)
		}

		if res.Truncated > 0 {
			metrics.TruncatedTotal.Add(float64(res.Truncated))
		}
		if res.Slot == nil {
			metrics.PollsTotal.WithLabelValues("empty").Inc()
			s.forwardIngest(ctx)
			continue
		}
		metrics.PollsTotal.WithLabelValues("batch").Inc()

		// A Ready flag is only trustworthy while the session is healthy.
		if s.abort.Aborted() {
			metrics.AbortsTotal.Inc()
			return s.abort.Err()
		}

		batch := column.FromSlot(res.Slot)
		res.Slot.Release()
		s.observeRing()

		metrics.PacketsTotal.WithLabelValues(trafficLabel).Add(float64(batch.Count))
		metrics.PayloadBytesTotal.WithLabelValues(trafficLabel).Add(float64(batch.PayloadBytes()))

		msg, err := stage.Chain(ctx, s.stages, stage.NewColumnMessage(batch))
		if err != nil {
			return err
		}
		s.deliver(ctx, msg)
		s.forwardIngest(ctx)
	}
}

// deliver sends one message to every sink; sink failures are logged and
// counted, never fatal to the capture loop.
func (s *Session) deliver(ctx context.Context, m *stage.Message) {
	for _, sk := range s.sinks {
		if err := sk.Send(ctx, m); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(sk.Name()).Inc()
			slog.Error("sink delivery failed", "sink", sk.Name(), "error", err)
		}
	}
}

// forwardIngest drains queued HTTP records to the sinks without blocking
// the capture loop. Control messages bypass the batch stage chain.
func (s *Session) forwardIngest(ctx context.Context) {
	if s.ingest == nil {
		return
	}
	for {
		select {
		case ctl, ok := <-s.ingest.Messages():
			if !ok {
				return
			}
			s.deliver(ctx, stage.NewControlMessage(ctl))
		default:
			return
		}
	}
}

func (s *Session) observeRing() {
	free, inProgress, ready := s.ring.Snapshot()
	metrics.RingSlots.WithLabelValues("free").Set(float64(free))
	metrics.RingSlots.WithLabelValues("in_progress").Set(float64(inProgress))
	metrics.RingSlots.WithLabelValues("ready").Set(float64(ready))
}

func (s *Session) closeAll() {
	if s.queue != nil {
		s.queue.Close()
		s.queue = nil
	}
	for _, sk := range s.sinks {
		if err := sk.Close(); err != nil {
			slog.Error("sink close failed", "sink", sk.Name(), "error", err)
		}
	}
	s.sinks = nil
}
