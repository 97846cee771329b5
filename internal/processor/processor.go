package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/support-inbox/internal/queue"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/redis"
	"github.com/nimasrn/support-inbox/pkg/worker"
)

const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

type ServiceConfig struct {
	Queue             queue.QueueConfig
	Consumers         int
	Workers           int
	ProcessingTimeout time.Duration
	MaintenanceEvery  time.Duration
}

// ProcessorService runs the delivery worker: stream consumers feed a worker
// pool that drives each job through the DeliveryProcessor, and a ticker runs
// Maintenance.
type ProcessorService struct {
	adapter     redis.RedisAdapter
	config      ServiceConfig
	queues      []*queue.Queue
	delivery    *DeliveryProcessor
	maintenance *Maintenance
	stats       *WorkerStats
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	worker      *worker.WorkerManager
}

func NewProcessorService(adapter redis.RedisAdapter, delivery *DeliveryProcessor, maintenance *Maintenance, config ServiceConfig) *ProcessorService {
	if config.Consumers <= 0 {
		config.Consumers = 1
	}
	if config.Workers <= 0 {
		config.Workers = 8
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = 10 * time.Second
	}
	if config.MaintenanceEvery <= 0 {
		config.MaintenanceEvery = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter:     adapter,
		config:      config,
		delivery:    delivery,
		maintenance: maintenance,
		stats:       NewWorkerStats(),
		ctx:         ctx,
		cancel:      cancel,
		worker:      worker.NewWorkerManager(config.Workers*4, config.Workers, nil),
	}
}

func (s *ProcessorService) Start() error {
	logger.Info("starting delivery worker...")

	s.worker.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Info("worker manager stopped", "reason", err)
		}
	}()

	for i := 0; i < s.config.Consumers; i++ {
		qc := s.config.Queue
		qc.ConsumerName = fmt.Sprintf("%s-%d", qc.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, qc)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}

		s.queues = append(s.queues, q)
		logger.Info("started consumer instance", "instance", i, "consumer", qc.ConsumerName)
	}

	s.wg.Add(3)
	go s.maintenanceLoop()
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("delivery worker started", "consumers", len(s.queues), "workers", s.config.Workers)
	return nil
}

func (s *ProcessorService) maintenanceLoop() {
	defer s.wg.Done()
	if s.maintenance == nil {
		return
	}

	ticker := time.NewTicker(s.config.MaintenanceEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, s.config.MaintenanceEvery)
			s.maintenance.RunOnce(ctx)
			cancel()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	st := s.stats.Snapshot()
	logger.Info("delivery metrics", "handled", st.Handled, "store_errors", st.StoreErrors, "timed_out", st.TimedOut,
		"rate_per_second", st.RatePerSecond, "avg_duration_ms", st.AvgDuration.Milliseconds(), "backlog", s.worker.Backlog(),
		"uptime", st.Uptime.Round(time.Second))

	if len(s.queues) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if qs, err := s.queues[0].GetStats(ctx); err == nil {
		logger.Info("stream stats", "total", qs.TotalMessages, "pending", qs.PendingMessages, "consumers", qs.ConsumerCount)
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("health check failed: redis unreachable", "error", err)
		return
	}
	if len(s.queues) > 0 {
		if qs, err := s.queues[0].GetStats(ctx); err == nil && qs.PendingMessages > 10000 {
			logger.Warn("health check: stream has high lag", "pending_messages", qs.PendingMessages)
		}
	}
	logger.Debug("health check ok")
}

func (s *ProcessorService) Stop() {
	logger.Info("shutting down delivery worker...")

	s.cancel()

	var wg sync.WaitGroup
	for i, q := range s.queues {
		wg.Add(1)
		go func(index int, q *queue.Queue) {
			defer wg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	wg.Wait()

	s.worker.Exit()
	s.wg.Wait()

	s.reportMetrics()
	logger.Info("delivery worker stopped")
}

type jobResult struct {
	jobID      int64
	resultChan chan error
	ctx        context.Context
}

// messageHandler hands a notification to the worker pool and waits for the
// outcome so the stream message is acked only after the job was handled.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	n, err := msg.Notification()
	if err != nil {
		logger.Warn("dropping malformed stream message", "id", msg.ID, "error", err)
		return nil
	}

	msgCtx, cancel := context.WithTimeout(ctx, s.config.ProcessingTimeout)
	defer cancel()

	job := &jobResult{
		jobID:      n.JobID,
		resultChan: make(chan error, 1),
		ctx:        msgCtx,
	}
	if err := s.worker.Enqueue(msgCtx, job); err != nil {
		return fmt.Errorf("enqueue job %d: %w", n.JobID, err)
	}

	select {
	case err := <-job.resultChan:
		return err
	case <-msgCtx.Done():
		s.stats.TimedOut()
		return fmt.Errorf("timeout waiting for worker to process job %d: %w", n.JobID, msgCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, j interface{}) {
	job, ok := j.(*jobResult)
	if !ok {
		logger.Error("invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-job.ctx.Done():
		logger.Warn("job context cancelled before processing started", "worker", workerIndex, "job_id", job.jobID)
		return
	default:
	}

	start := time.Now()
	err := s.delivery.Process(job.ctx, job.jobID)
	if err != nil {
		s.stats.StoreError()
		logger.Error("failed to process job", "worker", workerIndex, "job_id", job.jobID, "error", err)
	} else {
		s.stats.Handled(time.Since(start))
	}

	// resultChan is buffered; the handler may already have given up.
	job.resultChan <- err
}
