package outbox

import (
	"context"
	"time"

	"spray_ledger/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

const defaultBatchSize = 100

var messagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spray_ledger",
		Name:      "outbox_messages_total",
		Help:      "Outbox messages handled by the relay, by result.",
	},
	[]string{"result"},
)

// Worker polls the outbox and hands pending messages to a Publisher.
type Worker struct {
	repo      store.OutboxRepository
	publisher Publisher
	interval  time.Duration
	batchSize int
}

// NewWorker returns a worker polling repo every interval.
func NewWorker(repo store.OutboxRepository, publisher Publisher, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{repo: repo, publisher: publisher, interval: interval, batchSize: defaultBatchSize}
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	logrus.WithField("interval", w.interval).Info("outbox worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publishes one batch and returns how many messages were
// delivered. Failed messages go back to the queue for a later batch.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	msgs, err := w.repo.FetchPending(ctx, w.batchSize)
	if err != nil {
		logrus.WithError(err).Error("failed to fetch pending outbox messages")
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}
	logrus.WithField("count", len(msgs)).Debug("processing outbox messages")

	delivered := 0
	for _, m := range msgs {
		log := logrus.WithFields(logrus.Fields{"message_id": m.ID, "type": m.Type})
		if err := w.publisher.Publish(ctx, m); err != nil {
			messagesTotal.WithLabelValues("failed").Inc()
			log.WithError(err).Warn("failed to publish outbox message")
			if err := w.repo.MarkForRetry(ctx, m.ID); err != nil {
				log.WithError(err).Error("failed to requeue outbox message")
			}
			continue
		}
		if err := w.repo.MarkProcessed(ctx, m.ID); err != nil {
			log.WithError(err).Error("failed to mark outbox message as processed")
			continue
		}
		messagesTotal.WithLabelValues("published").Inc()
		delivered++
	}
	return delivered
}
