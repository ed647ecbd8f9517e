package timelock

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type (
	// SnapshotWorker saves Book snapshots on a bounded pool of goroutines
	SnapshotWorker struct {
		backend Backend
		logger  *zap.Logger
		ctx     context.Context
		cancel  context.CancelFunc
		stop    chan struct{}
		once    sync.Once
		queue   chan snapshotRequest
		config  SnapshotConfig
		wg      sync.WaitGroup
	}

	snapshotRequest struct {
		value    any
		id       AggregateID
		sequence int64
	}
)

func NewSnapshotWorker(
	backend Backend, cfg SnapshotConfig, logger *zap.Logger,
) *SnapshotWorker {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultSnapshotWorkers
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultSnapshotSaveTimeout
	}
	if cfg.MaxQueueSize < 0 {
		cfg.MaxQueueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sw := &SnapshotWorker{
		backend: backend,
		logger:  logger,
		config:  cfg,
		queue:   make(chan snapshotRequest, cfg.MaxQueueSize),
		stop:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := range cfg.WorkerCount {
		sw.wg.Add(1)
		go sw.worker(i)
	}
	return sw
}

func (sw *SnapshotWorker) worker(id int) {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.stop:
			sw.drain(id)
			return
		case req := <-sw.queue:
			sw.saveSnapshot(id, req)
		}
	}
}

func (sw *SnapshotWorker) drain(id int) {
	for {
		select {
		case req := <-sw.queue:
			sw.saveSnapshot(id, req)
		default:
			return
		}
	}
}

func (sw *SnapshotWorker) saveSnapshot(workerID int, req snapshotRequest) {
	ctx, cancel := context.WithTimeout(sw.ctx, sw.config.SaveTimeout)
	defer cancel()

	start := time.Now()
	err := sw.backend.PutSnapshot(ctx, req.id, req.value, req.sequence)
	duration := time.Since(start)

	if errors.Is(err, context.Canceled) {
		sw.logger.Debug("snapshot save canceled",
			zap.String("book", JoinKey(req.id)),
			zap.Int64("sequence", req.sequence),
		)
		return
	}
	if err != nil {
		sw.logger.Error("failed to save snapshot",
			zap.Int("worker_id", workerID),
			zap.String("book", JoinKey(req.id)),
			zap.Int64("sequence", req.sequence),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	sw.logger.Debug("snapshot saved",
		zap.Int("worker_id", workerID),
		zap.String("book", JoinKey(req.id)),
		zap.Int64("sequence", req.sequence),
		zap.Duration("duration", duration),
	)
}

func (sw *SnapshotWorker) enqueue(
	id AggregateID, value any, sequence int64,
) bool {
	req := snapshotRequest{
		id:       id,
		value:    value,
		sequence: sequence,
	}

	select {
	case sw.queue <- req:
		return true
	default:
		sw.logger.Warn("snapshot queue full, dropping request",
			zap.String("book", JoinKey(id)),
			zap.Int64("sequence", sequence),
			zap.Int("queue_size", len(sw.queue)),
		)
		return false
	}
}

// Stop saves whatever is still queued and waits for the workers to exit.
// Each queued save is still bounded by the configured SaveTimeout. Requests
// enqueued after Stop are never saved
func (sw *SnapshotWorker) Stop() {
	sw.once.Do(func() {
		close(sw.stop)
		sw.wg.Wait()
		sw.cancel()
	})
}
