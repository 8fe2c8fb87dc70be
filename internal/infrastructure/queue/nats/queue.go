package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/resilience"
)

const defaultQueueGroup = "analysis-workers"

// LagObserver receives the delay between publish and delivery.
type LagObserver interface {
	ObserveQueueLag(lag time.Duration)
}

type Queue struct {
	conn           *nats.Conn
	subject        string
	queueGroup     string
	processTimeout time.Duration
	concurrency    int
	drainTimeout   time.Duration
	executor       *resilience.Executor
	lagObserver    LagObserver
	now            func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	// ProcessTimeout bounds each handler invocation.
	ProcessTimeout time.Duration
	// Concurrency bounds parallel handler invocations per subscriber.
	Concurrency        int
	ResilienceExecutor *resilience.Executor
	LagObserver        LagObserver
}

// submittedEvent is the wire payload of an analysis submission.
type submittedEvent struct {
	AnalysisID  string    `json:"analysis_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("plant-health-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newQueue(conn, subject, options), nil
}

func newQueue(conn *nats.Conn, subject string, options Options) *Queue {
	group := options.QueueGroup
	if group == "" {
		group = defaultQueueGroup
	}
	timeout := options.ProcessTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Queue{
		conn:           conn,
		subject:        subject,
		queueGroup:     group,
		processTimeout: timeout,
		concurrency:    options.Concurrency,
		drainTimeout:   timeout + 30*time.Second,
		executor:       options.ResilienceExecutor,
		lagObserver:    options.LagObserver,
		now:            time.Now,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Ping reports whether the connection is usable.
func (q *Queue) Ping(context.Context) error {
	if q.conn == nil || !q.conn.IsConnected() {
		return errors.New("nats is not connected")
	}
	return nil
}

func (q *Queue) PublishAnalysisSubmitted(ctx context.Context, analysisID string) error {
	payload, err := encodeEvent(submittedEvent{AnalysisID: analysisID, SubmittedAt: q.now().UTC()})
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeAnalysisSubmitted blocks until ctx ends, then drains the subscription
// and waits for in-flight handlers. Each message runs on its own goroutine, at
// most Concurrency at a time; a slow analysis never holds up the others.
// Handler failures are logged; messages are not redelivered.
func (q *Queue) SubscribeAnalysisSubmitted(ctx context.Context, handler func(context.Context, string) error) error {
	jobs := newDispatcher(q.concurrency)
	// Messages handed over during drain still run to completion.
	jobsCtx := context.WithoutCancel(ctx)

	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Error("analysis_event_invalid", "error", err)
			return
		}
		if q.lagObserver != nil && !event.SubmittedAt.IsZero() {
			q.lagObserver.ObserveQueueLag(q.now().Sub(event.SubmittedAt))
		}
		jobs.dispatch(jobsCtx, func() {
			q.runHandler(jobsCtx, handler, event.AnalysisID)
		})
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	drainErr := sub.Drain()
	if drainErr == nil {
		drainErr = waitDrained(sub, q.drainTimeout)
	}
	jobs.wait()
	if drainErr != nil {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) runHandler(ctx context.Context, handler func(context.Context, string) error, analysisID string) {
	handlerCtx, cancel := context.WithTimeout(ctx, q.processTimeout)
	defer cancel()
	if err := handler(handlerCtx, analysisID); err != nil {
		slog.Error("analysis_handler_failed",
			"analysis_id", analysisID,
			"error", err,
		)
	}
}

// waitDrained polls until the drained subscription is closed by the client.
func waitDrained(sub *nats.Subscription, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for sub.IsValid() {
		if time.Now().After(deadline) {
			return errors.New("drain timed out")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

func encodeEvent(event submittedEvent) ([]byte, error) {
	if strings.TrimSpace(event.AnalysisID) == "" {
		return nil, errors.New("analysis id is required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode analysis event: %w", err)
	}
	return payload, nil
}

// decodeEvent also accepts a bare analysis id.
func decodeEvent(data []byte) (submittedEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return submittedEvent{}, errors.New("empty analysis event")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return submittedEvent{AnalysisID: trimmed}, nil
	}
	var event submittedEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return submittedEvent{}, fmt.Errorf("decode analysis event: %w", err)
	}
	if event.AnalysisID == "" {
		return submittedEvent{}, errors.New("analysis event without id")
	}
	return event, nil
}
