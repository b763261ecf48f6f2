// Command transcipher-worker runs transciphering jobs taken from a Redis queue.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/luxfi/transcipher/internal/queue"
	"github.com/luxfi/transcipher/internal/storage"
	"github.com/luxfi/transcipher/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		numWorkers  = flag.Int("workers", 2, "number of jobs processed concurrently")
		evalWorkers = flag.Int("eval-workers", 4, "goroutines per job")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueName   = flag.String("queue", "default", "queue name")
		storagePath = flag.String("storage", "/tmp/transcipher", "artifact storage path")
		metricsAddr = flag.String("metrics", ":9090", "metrics server address")
		jobTTL      = flag.Duration("job-ttl", queue.DefaultJobTTL, "lifetime of job records")
	)
	flag.Parse()

	log.Printf("Transcipher worker starting...")
	log.Printf("  Workers: %d x %d", *numWorkers, *evalWorkers)
	log.Printf("  Redis: %s", *redisAddr)
	log.Printf("  Storage: %s", *storagePath)
	log.Printf("  Metrics: %s", *metricsAddr)

	// Queue.
	q, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr:   *redisAddr,
		DB:     *redisDB,
		JobTTL: *jobTTL,
	}, *queueName)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	// Storage.
	store, err := storage.NewFileStorage(*storagePath)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	pool := &WorkerPool{
		numWorkers: *numWorkers,
		queue:      q,
		server:     server.New(store, server.Config{Workers: *evalWorkers}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	// Metrics server.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "# HELP transcipher_jobs_total Total transciphering jobs\n")
		fmt.Fprintf(w, "# TYPE transcipher_jobs_total counter\n")
		fmt.Fprintf(w, "transcipher_jobs_total{status=\"success\"} %d\n", pool.successCount.Load())
		fmt.Fprintf(w, "transcipher_jobs_total{status=\"failure\"} %d\n", pool.failureCount.Load())
		if n, err := q.Len(r.Context()); err == nil {
			fmt.Fprintf(w, "# HELP transcipher_jobs_pending Jobs waiting in the queue\n")
			fmt.Fprintf(w, "# TYPE transcipher_jobs_pending gauge\n")
			fmt.Fprintf(w, "transcipher_jobs_pending %d\n", n)
		}
	})

	metrics := &http.Server{
		Addr:    *metricsAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Metrics server starting on %s", *metricsAddr)
		if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("Received signal: %s", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server shutdown error: %v", err)
	}

	if err := pool.Stop(); err != nil {
		log.Printf("Worker pool shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

// WorkerPool runs queued transciphering jobs.
type WorkerPool struct {
	numWorkers   int
	queue        queue.Queue
	server       *server.Server
	wg           sync.WaitGroup
	cancel       context.CancelFunc
	running      atomic.Bool
	successCount atomic.Int64
	failureCount atomic.Int64
}

// Start starts the worker pool.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.running.Load() {
		return errors.New("pool already running")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)

	log.Printf("Starting %d workers", p.numWorkers)

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	return nil
}

// Stop gracefully stops the worker pool.
func (p *WorkerPool) Stop() error {
	if !p.running.Load() {
		return nil
	}

	log.Println("Stopping worker pool...")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Worker pool stopped")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout exceeded")
		return errors.New("shutdown timeout")
	}

	p.running.Store(false)
	return nil
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log.Printf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		job, err := p.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrConnectionLost) {
				return
			}
			log.Printf("Worker %d: failed to pop job: %v", id, err)
			time.Sleep(time.Second)
			continue
		}

		p.processJob(ctx, id, job)
	}
}

func (p *WorkerPool) processJob(ctx context.Context, workerID int, job *queue.Job) {
	log.Printf("Worker %d: processing job %s (size=%s, workload=%s)", workerID, job.ID, job.Size, job.Workload)

	job.Status = queue.StatusProcessing
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job status: %v", workerID, err)
	}

	res, err := p.runJob(ctx, job)
	if err != nil {
		job.Status = queue.StatusFailed
		job.Error = err.Error()
		if err := p.queue.Update(ctx, job); err != nil {
			log.Printf("Worker %d: failed to update job status: %v", workerID, err)
		}
		p.failureCount.Add(1)
		log.Printf("Worker %d: job %s failed: %v", workerID, job.ID, err)
		return
	}

	job.Status = queue.StatusCompleted
	job.ResultName = res.Key.Name
	if err := p.queue.Update(ctx, job); err != nil {
		log.Printf("Worker %d: failed to update job result: %v", workerID, err)
	}

	p.successCount.Add(1)
	log.Printf("Worker %d: job %s completed in %v", workerID, job.ID, res.Duration)
}

func (p *WorkerPool) runJob(ctx context.Context, job *queue.Job) (*server.Result, error) {
	req, err := server.ParseRequest(server.TranscipherRequest{
		Size:       job.Size,
		Block:      job.Block,
		Workload:   job.Workload,
		ResultName: job.ResultName,
	})
	if err != nil {
		return nil, err
	}
	if req.ResultName == "" {
		req.ResultName = job.ID + ".bin"
	}
	return p.server.Process(ctx, req)
}
