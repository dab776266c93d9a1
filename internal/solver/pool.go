package solver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cvp-knife/internal/cvp"
	"cvp-knife/internal/db"
	"cvp-knife/internal/logger"
	"cvp-knife/internal/notify"
	"cvp-knife/internal/problem"
	"cvp-knife/internal/recovery"
	"cvp-knife/internal/retry"
)

// Common errors
var (
	ErrQueueFull = errors.New("solve queue is full")
	ErrStopped   = errors.New("solver pool is stopped")
)

// Recovery methods stored with recovered keys
const (
	MethodNonceReuse  = "nonce-reuse"
	MethodBiasedNonce = "biased-nonce"
)

// Config controls the pool
type Config struct {
	Workers        int
	QueueSize      int
	Timeout        time.Duration
	MaxConstraints int
	Strict         bool
	Retry          retry.Config
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueSize:      1000,
		Timeout:        2 * time.Minute,
		MaxConstraints: 256,
		Retry:          retry.DefaultConfig(),
	}
}

// Job is a stored system waiting for a worker
type Job struct {
	ID     int64
	System *problem.System
}

// Stats holds pool statistics
type Stats struct {
	Workers  int    `json:"workers"`
	Running  bool   `json:"running"`
	Queued   int    `json:"queued"`
	InFlight int64  `json:"in_flight"`
	Solved   uint64 `json:"solved"`
	Failed   uint64 `json:"failed"`
}

// Pool owns the job queue and its workers
type Pool struct {
	db       db.Database
	logger   *logger.Logger
	notifier *notify.Notifier
	cfg      Config

	mu      sync.RWMutex
	jobs    chan Job
	running bool
	wg      sync.WaitGroup

	inFlight atomic.Int64
	solved   atomic.Uint64
	failed   atomic.Uint64
}

// New creates a stopped pool
func New(database db.Database, log *logger.Logger, notifier *notify.Notifier, cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = retry.DefaultConfig()
	}
	p := &Pool{
		db:       database,
		logger:   log.Named("solver"),
		notifier: notifier,
		cfg:      cfg,
	}
	p.cfg.Retry.OnRetry = func(attempt int, err error) {
		p.logger.Warn("Database call failed (attempt %d), retrying: %v", attempt, err)
	}
	return p
}

// Start launches the workers and re-queues systems left pending by a previous run
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.jobs = make(chan Job, p.cfg.QueueSize)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(p.jobs)
	}
	p.mu.Unlock()

	p.logger.Info("Started %d workers", p.cfg.Workers)
	p.requeuePending(ctx)
}

// Stop closes the queue and waits for in-flight jobs to finish
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Stopped")
}

// Stats returns a snapshot of pool statistics
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := Stats{
		Workers:  p.cfg.Workers,
		Running:  p.running,
		InFlight: p.inFlight.Load(),
		Solved:   p.solved.Load(),
		Failed:   p.failed.Load(),
	}
	if p.jobs != nil {
		st.Queued = len(p.jobs)
	}
	return st
}

func (p *Pool) requeuePending(ctx context.Context) {
	systems, err := retry.DoWithResult(ctx, p.cfg.Retry, func() ([]db.SystemRecord, error) {
		return p.db.ListSystems(ctx, p.cfg.QueueSize)
	})
	if err != nil {
		p.logger.Error("Failed to load pending systems: %v", err)
		return
	}

	requeued := 0
	for i := len(systems) - 1; i >= 0; i-- {
		rec := systems[i]
		if rec.Status != db.StatusPending {
			continue
		}
		sys, err := problem.Decode([]byte(rec.Definition))
		if err != nil {
			p.markFailed(Job{ID: rec.ID, System: &problem.System{Name: rec.Name}}, err)
			continue
		}
		if err := p.enqueue(Job{ID: rec.ID, System: sys}); err != nil {
			p.logger.Warn("Could not requeue system %d: %v", rec.ID, err)
			break
		}
		requeued++
	}
	if requeued > 0 {
		p.logger.Info("Requeued %d pending systems", requeued)
	}
}

// Submit validates and stores a system and queues it for solving. A system
// that was submitted before is not queued again; its stored record is returned.
func (p *Pool) Submit(ctx context.Context, sys *problem.System) (*db.SystemRecord, error) {
	if err := sys.Validate(p.cfg.MaxConstraints); err != nil {
		return nil, err
	}
	definition, err := json.Marshal(sys)
	if err != nil {
		return nil, fmt.Errorf("encoding system: %w", err)
	}

	rec := &db.SystemRecord{
		Fingerprint: sys.Fingerprint(),
		Name:        sys.Name,
		Definition:  string(definition),
	}
	type saved struct {
		id      int64
		created bool
	}
	s, err := retry.DoWithResult(ctx, p.cfg.Retry, func() (saved, error) {
		id, created, err := p.db.SaveSystem(ctx, rec)
		return saved{id, created}, err
	})
	if err != nil {
		return nil, err
	}

	if s.created {
		if err := p.enqueue(Job{ID: s.id, System: sys}); err != nil {
			return nil, err
		}
		p.logger.Info("Queued system %d (%s, %d constraints)", s.id, sys.Name, len(sys.Constraints))
	} else {
		p.logger.Debug("System %s already stored as %d", rec.Fingerprint, s.id)
	}

	return p.db.GetSystem(ctx, s.id)
}

func (p *Pool) enqueue(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(jobs <-chan Job) {
	defer p.wg.Done()
	for job := range jobs {
		p.process(job)
	}
}

func (p *Pool) process(job Job) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	start := time.Now()
	res, err := p.SolveNow(context.Background(), job.System)
	if err != nil {
		p.markFailed(job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sol := &db.Solution{Values: res.Values, Labels: res.Labels, Warnings: res.Warnings}
	if err := retry.Do(ctx, p.cfg.Retry, func() error {
		return p.db.SaveSolution(ctx, job.ID, sol)
	}); err != nil {
		p.logger.Error("Failed to save solution for system %d: %v", job.ID, err)
		return
	}
	p.solved.Add(1)
	p.logger.Info("Solved system %d (%s) in %s with %d warnings",
		job.ID, job.System.Name, time.Since(start).Round(time.Millisecond), len(res.Warnings))

	if err := p.notifier.NotifySystemSolved(ctx, job.System.Name, job.System.Fingerprint(), len(res.Values)); err != nil {
		p.logger.Warn("Failed to send solved notification: %v", err)
	}
}

func (p *Pool) markFailed(job Job, cause error) {
	p.failed.Add(1)
	p.logger.Warn("System %d (%s) failed: %v", job.ID, job.System.Name, cause)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := retry.Do(ctx, p.cfg.Retry, func() error {
		return p.db.MarkFailed(ctx, job.ID, cause.Error())
	}); err != nil {
		p.logger.Error("Failed to mark system %d failed: %v", job.ID, err)
	}
	if err := p.notifier.NotifySystemFailed(ctx, job.System.Name, job.System.Fingerprint(), cause.Error()); err != nil {
		p.logger.Warn("Failed to send failure notification: %v", err)
	}
}

func (p *Pool) options() []cvp.Option {
	return []cvp.Option{
		cvp.WithWarner(p.logger.Named("cvp")),
		cvp.WithStrict(p.cfg.Strict),
	}
}

// SolveNow solves a system on the calling goroutine within the pool's timeout.
// Nothing is stored.
func (p *Pool) SolveNow(ctx context.Context, sys *problem.System) (*problem.Result, error) {
	if err := sys.Validate(p.cfg.MaxConstraints); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return sys.Run(ctx, p.options()...)
}

// Recover recovers a signing key and stores it. With nonceBits == 0 the two
// signatures must share a nonce, otherwise every nonce must be below
// 2^nonceBits.
func (p *Pool) Recover(ctx context.Context, sigs []recovery.Signature, nonceBits int) (*db.RecoveredKey, error) {
	key := &db.RecoveredKey{NonceBits: nonceBits}
	for _, sig := range sigs {
		if sig.R != nil {
			key.RValues = append(key.RValues, "0x"+sig.R.Text(16))
		}
	}

	switch {
	case nonceBits == 0:
		if len(sigs) != 2 {
			return nil, fmt.Errorf("%w: nonce reuse needs exactly 2, got %d", recovery.ErrNotEnoughSigs, len(sigs))
		}
		priv, err := recovery.RecoverNonceReuse(sigs[0], sigs[1])
		if err != nil {
			return nil, err
		}
		key.Method = MethodNonceReuse
		key.PrivateKey = priv

	default:
		ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		rec, err := recovery.RecoverBiasedNonces(ctx, sigs, nonceBits, p.options()...)
		if err != nil {
			return nil, err
		}
		key.Method = MethodBiasedNonce
		key.PrivateKey = rec.PrivateKey
	}

	addr, err := recovery.AddressFromPrivateKey(key.PrivateKey)
	if err != nil {
		return nil, err
	}
	key.Address = addr

	id, err := retry.DoWithResult(ctx, p.cfg.Retry, func() (int64, error) {
		return p.db.SaveRecoveredKey(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	key.ID = id
	p.logger.Info("Recovered key for %s via %s from %d signatures", addr, key.Method, len(sigs))

	if err := p.notifier.NotifyKeyRecovered(ctx, addr, key.Method, len(sigs)); err != nil {
		p.logger.Warn("Failed to send recovery notification: %v", err)
	}
	return key, nil
}
