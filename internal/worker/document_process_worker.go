package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"docproc/internal/app"
	"docproc/internal/model"
	"docproc/internal/pkg/retry"
	"docproc/internal/platform/rabbitmq"
)

const (
	DefaultPrefetch         = 1
	DefaultMaxDeliveries    = 5
	DefaultBusyRequeueDelay = 5 * time.Second
	DefaultResubscribeDelay = 5 * time.Second
)

var errConnectionClosed = errors.New("rabbitmq connection closed")

type JobProcessor interface {
	Process(ctx context.Context, job model.ProcessingJob) (*app.ProcessingResult, error)
}

// DeliveryTracker counts deliveries of identical payloads across requeues.
type DeliveryTracker interface {
	Incr(ctx context.Context, body []byte) (int64, error)
	Reset(ctx context.Context, body []byte) error
}

type Options struct {
	Prefetch int
	// MaxDeliveries bounds how often one payload is attempted before it is dropped.
	MaxDeliveries    int
	BusyRequeueDelay time.Duration
	ResubscribeDelay time.Duration
	Logger           *slog.Logger
}

// DocumentProcessWorker drains the document queue and turns each processing outcome into an
// ack or a nack.
type DocumentProcessWorker struct {
	conn      *amqp.Connection
	processor JobProcessor
	tracker   DeliveryTracker
	queueName string
	opts      Options
	logger    *slog.Logger

	// subscribe opens a consuming channel; replaced in tests.
	subscribe func() (<-chan amqp.Delivery, io.Closer, error)
	exited    chan error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDocumentProcessWorker(conn *amqp.Connection, processor JobProcessor, tracker DeliveryTracker, queueName string, opts Options) *DocumentProcessWorker {
	if opts.Prefetch <= 0 {
		opts.Prefetch = DefaultPrefetch
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = DefaultMaxDeliveries
	}
	if opts.BusyRequeueDelay < 0 {
		opts.BusyRequeueDelay = 0
	}
	if opts.ResubscribeDelay <= 0 {
		opts.ResubscribeDelay = DefaultResubscribeDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &DocumentProcessWorker{
		conn:      conn,
		processor: processor,
		tracker:   tracker,
		queueName: queueName,
		opts:      opts,
		logger:    logger.With("queue", queueName),
		exited:    make(chan error, 1),
	}
	w.subscribe = w.openConsumer
	return w
}

func (w *DocumentProcessWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	deliveries, ch, err := w.subscribe()
	if err != nil {
		cancel()
		w.cancel = nil
		return err
	}

	w.logger.Info("document worker started", "prefetch", w.opts.Prefetch)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.consume(workerCtx, deliveries, ch)
	}()

	return nil
}

// Exited receives an error when the consume loop stops on its own because the broker
// connection is gone. It never receives after a Close.
func (w *DocumentProcessWorker) Exited() <-chan error {
	return w.exited
}

func (w *DocumentProcessWorker) openConsumer() (<-chan amqp.Delivery, io.Closer, error) {
	if w.conn == nil || w.conn.IsClosed() {
		return nil, nil, errConnectionClosed
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := ch.Qos(w.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("set worker prefetch failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume queue failed: %w", err)
	}
	return deliveries, ch, nil
}

// consume drains deliveries until ctx ends. A channel closed by the broker, for example after a
// consumer timeout, is replaced by a fresh subscription on the same connection.
func (w *DocumentProcessWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery, ch io.Closer) {
	defer func() {
		if ch != nil {
			_ = ch.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if ok {
				w.handle(ctx, d)
				continue
			}
			w.logger.Warn("delivery channel closed, resubscribing")
			_ = ch.Close()
			ch = nil
			deliveries, ch = w.resubscribe(ctx)
			if deliveries == nil {
				return
			}
		}
	}
}

func (w *DocumentProcessWorker) resubscribe(ctx context.Context) (<-chan amqp.Delivery, io.Closer) {
	for {
		if err := retry.Sleep(ctx, w.opts.ResubscribeDelay); err != nil {
			return nil, nil
		}
		deliveries, ch, err := w.subscribe()
		if err == nil {
			w.logger.Info("document worker resubscribed")
			return deliveries, ch
		}
		if errors.Is(err, errConnectionClosed) {
			w.logger.Error("document worker stopped", "err", err)
			select {
			case w.exited <- err:
			default:
			}
			return nil, nil
		}
		w.logger.Warn("resubscribe failed", "err", err, "retry_in", w.opts.ResubscribeDelay)
	}
}

func (w *DocumentProcessWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// handle processes one delivery. The only broker side effects are a single Ack or Nack.
func (w *DocumentProcessWorker) handle(ctx context.Context, d amqp.Delivery) {
	logger := w.logger.With("delivery_tag", d.DeliveryTag, "redelivered", d.Redelivered)

	if w.tracker != nil {
		count, err := w.tracker.Incr(ctx, d.Body)
		if err != nil {
			logger.Warn("count delivery failed", "err", err)
		} else if count > int64(w.opts.MaxDeliveries) {
			logger.Error("dropping message after too many deliveries", "deliveries", count)
			w.nack(logger, d, false)
			w.forget(ctx, logger, d.Body)
			return
		}
	}

	job, err := model.ParseProcessingJob(d.Body)
	if err != nil {
		logger.Error("malformed processing job", "err", err)
		w.nack(logger, d, true)
		return
	}
	logger = logger.With("document_id", job.DocumentID)

	result, err := w.processor.Process(ctx, job)
	switch {
	case err == nil:
		logger.Info("processing job done", "status", result.Status, "failed_chunks", result.FailedChunks)
		w.ack(logger, d)
		w.forget(ctx, logger, d.Body)
	case errors.Is(err, app.ErrDocumentNotFound):
		logger.Warn("document no longer exists, dropping job")
		w.ack(logger, d)
		w.forget(ctx, logger, d.Body)
	case errors.Is(err, app.ErrDocumentBusy):
		logger.Info("document busy, requeueing", "delay", w.opts.BusyRequeueDelay)
		// A busy document is not a failed attempt.
		w.forget(ctx, logger, d.Body)
		_ = retry.Sleep(ctx, w.opts.BusyRequeueDelay)
		w.nack(logger, d, true)
	default:
		logger.Error("processing job failed, requeueing", "err", err)
		w.nack(logger, d, true)
	}
}

func (w *DocumentProcessWorker) ack(logger *slog.Logger, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		logger.Error("ack delivery failed", "err", err)
	}
}

func (w *DocumentProcessWorker) nack(logger *slog.Logger, d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logger.Error("nack delivery failed", "requeue", requeue, "err", err)
	}
}

func (w *DocumentProcessWorker) forget(ctx context.Context, logger *slog.Logger, body []byte) {
	if w.tracker == nil {
		return
	}
	if err := w.tracker.Reset(context.WithoutCancel(ctx), body); err != nil {
		logger.Warn("reset delivery count failed", "err", err)
	}
}
