package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Manz2/chat-e2e/internal/queue"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines.
	DefaultWorkerCount = 2

	// DefaultBatchSize is the number of stream entries read per call.
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long a read blocks waiting for entries.
	DefaultBlockTimeout = 5 * time.Second
)

// Manager runs the goroutines that drain the realtime stream into channel
// broadcasts.
type Manager struct {
	consumer    queue.Consumer
	handler     *Handler
	workerCount int
	batchSize   int64
	blockTime   time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ManagerConfig holds worker-pool tuning.
type ManagerConfig struct {
	WorkerCount  int
	BatchSize    int64
	BlockTimeout time.Duration
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		WorkerCount:  DefaultWorkerCount,
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
	}
}

func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	return &Manager{
		consumer:    consumer,
		handler:     handler,
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,
	}
}

// Start spins up the worker goroutines. Call Stop to shut down.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(m.ctx, queue.StreamRealtime, queue.ConsumerGroupRealtime); err != nil {
		return err
	}

	log.Printf("[Manager] starting %d workers stream=%s group=%s",
		m.workerCount, queue.StreamRealtime, queue.ConsumerGroupRealtime)

	for i := 0; i < m.workerCount; i++ {
		workerID := i + 1
		m.wg.Add(1)
		go m.runWorker(workerID, fmt.Sprintf("worker-%d", workerID))
	}
	return nil
}

// Stop cancels the workers and blocks until they finish.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	log.Printf("[Manager] all workers stopped")
}

func (m *Manager) runWorker(workerID int, consumerName string) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		messages, err := m.consumer.Read(m.ctx, queue.StreamRealtime, queue.ConsumerGroupRealtime, consumerName, m.batchSize, m.blockTime)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			log.Printf("[Worker-%d] read failed: %v", workerID, err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			if err := m.handler.HandleEvent(m.ctx, msg.Event); err != nil {
				// Leave the entry pending; another read will retry it.
				log.Printf("[Worker-%d] handle %s failed: %v", workerID, msg.Event.Type, err)
				continue
			}
			if err := m.consumer.Ack(m.ctx, queue.StreamRealtime, queue.ConsumerGroupRealtime, msg.ID); err != nil {
				log.Printf("[Worker-%d] ack failed: %v", workerID, err)
			}
		}
	}
}
