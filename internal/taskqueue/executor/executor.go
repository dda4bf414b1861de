// Package executor drives the claim -> heartbeat -> execute -> release
// loop shared by every task kind. Executor is parameterized over the
// concrete task type so the lease machinery is written once; kind-specific
// behavior is supplied entirely through the Backend interface.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hetangai/mediaqueue/internal/log"
	"github.com/hetangai/mediaqueue/internal/taskqueue/metrics"
	"github.com/hetangai/mediaqueue/internal/taskqueue/model"
	"github.com/hetangai/mediaqueue/internal/taskqueue/store"
)

// ErrDependencyUnmet names the condition under which a candidate is skipped
// during a claim scan. No function in this package returns it: a candidate
// with unmet dependencies is skipped without an error.
var ErrDependencyUnmet = errors.New("dependency unmet")

// candidateScanLimit bounds how many leasable rows a single claim attempt
// inspects before giving up for this tick.
const candidateScanLimit = 64

// Result is what a Backend returns on successful execution.
type Result struct {
	ResultURL       string
	ResultLocalPath string
	// ResultDurationMs is only set by the audio backend; ignored for every
	// other kind (see store.ReleaseSuccess).
	ResultDurationMs *int
}

// Backend translates a claimed task into a back-end generation call. It is
// supplied per kind by imageexec/videoexec/audioexec.
type Backend[T model.Task] interface {
	Execute(ctx context.Context, task T) (Result, error)
}

// Getter fetches the full typed row for an id, used right after a claim
// succeeds to hand the Backend a concrete *ImageTask/*VideoTask/*AudioTask
// instead of the generic model.Task interface.
type Getter[T model.Task] func(ctx context.Context, id string) (T, error)

// Config controls executor timing and identity. Zero values take the
// defaults named in the specification.
type Config struct {
	WorkerID          string
	HeartbeatInterval time.Duration // default 30s
	LockTimeout       time.Duration // default 60s (image/audio); video overrides to 120s
	IdleSleep         time.Duration // default 1s
	MaxClaimAttempts  int           // default 3, on store-busy contention

	// Concurrency is how many claim/execute goroutines RunLoop runs in
	// this process; the first uses WorkerID as is, each later one adds a
	// "-N" suffix. default 1.
	Concurrency int

	// CurrentProjectID, if set, is consulted on every claim attempt so
	// tasks belonging to the caller's active project are preferred.
	CurrentProjectID func() string
}

func (c *Config) applyDefaults() {
	if c.WorkerID == "" {
		c.WorkerID = generateWorkerID()
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 60 * time.Second
	}
	if c.IdleSleep == 0 {
		c.IdleSleep = time.Second
	}
	if c.MaxClaimAttempts == 0 {
		c.MaxClaimAttempts = 3
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
}

func generateWorkerID() string {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	if len(host) > 20 {
		host = host[:20]
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// Executor runs the per-kind worker loop over a single task kind.
type Executor[T model.Task] struct {
	kind    model.Kind
	store   *store.Store
	get     Getter[T]
	backend Backend[T]
	cfg     Config
}

// New builds an Executor for one kind. get must return the concrete typed
// row for an id (store.GetImageTask and friends).
func New[T model.Task](kind model.Kind, st *store.Store, get Getter[T], backend Backend[T], cfg Config) *Executor[T] {
	cfg.applyDefaults()
	return &Executor[T]{kind: kind, store: st, get: get, backend: backend, cfg: cfg}
}

// WorkerID returns the identity this executor claims tasks under. With
// Concurrency > 1 this is the identity of lane 0; every later lane suffixes it.
func (e *Executor[T]) WorkerID() string { return e.cfg.WorkerID }

// RunLoop runs cfg.Concurrency independent claim/execute lanes until ctx
// is canceled, each with its own worker identity so leases and heartbeats
// never collide. It blocks until every lane has stopped.
func (e *Executor[T]) RunLoop(ctx context.Context) {
	logger := log.WithComponent(fmt.Sprintf("executor.%s", e.kind))
	logger.Info().
		Str(log.FieldWorkerID, e.cfg.WorkerID).
		Int("concurrency", e.cfg.Concurrency).
		Msg("executor loop starting")

	g, ctx := errgroup.WithContext(ctx)
	for lane := 0; lane < e.cfg.Concurrency; lane++ {
		lane := lane
		g.Go(func() error {
			e.runLane(ctx, lane, logger)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().Str(log.FieldWorkerID, e.cfg.WorkerID).Msg("executor loop stopped")
}

// runLane drives the claim -> execute -> release loop for a single worker
// identity. Lane 0 keeps the base WorkerID unchanged so single-lane callers
// (Concurrency == 1, the common case) see no identity change.
func (e *Executor[T]) runLane(ctx context.Context, lane int, logger zerolog.Logger) {
	workerID := e.cfg.WorkerID
	if lane > 0 {
		workerID = fmt.Sprintf("%s-%d", e.cfg.WorkerID, lane)
	}
	laneCfg := e.cfg
	laneCfg.WorkerID = workerID
	worker := &Executor[T]{kind: e.kind, store: e.store, get: e.get, backend: e.backend, cfg: laneCfg}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		worker.tick(ctx, logger)
	}
}

func (e *Executor[T]) tick(ctx context.Context, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str(log.FieldEvent, "panic").Msg(fmt.Sprintf("recovered from panic in run loop: %v", r))
		}
	}()

	task, ok, err := e.claim(ctx)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "claim_error").Msg("claim attempt failed")
		sleep(ctx, e.cfg.IdleSleep)
		return
	}
	if !ok {
		sleep(ctx, e.cfg.IdleSleep)
		return
	}

	e.runOnce(ctx, task, logger)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// claim performs one logical claim: up to cfg.MaxClaimAttempts attempts,
// backing off 0.5-2.0s whenever the store reports contention.
func (e *Executor[T]) claim(ctx context.Context) (task T, ok bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveClaimLatency(string(e.kind), time.Since(start)) }()

	for attempt := 0; attempt < e.cfg.MaxClaimAttempts; attempt++ {
		task, ok, err = e.claimOnce(ctx)
		if err == nil {
			return task, ok, nil
		}
		if !errors.Is(err, store.ErrBusy) {
			return task, false, err
		}
		metrics.RecordClaimContention(string(e.kind))
		wait := 500*time.Millisecond + time.Duration(rand.Int63n(int64(1500*time.Millisecond)))
		sleep(ctx, wait)
	}
	return task, false, nil
}

func (e *Executor[T]) claimOnce(ctx context.Context) (zero T, ok bool, err error) {
	now := time.Now()
	lockCutoff := now.Add(-e.cfg.LockTimeout)

	var preferred string
	if e.cfg.CurrentProjectID != nil {
		preferred = e.cfg.CurrentProjectID()
	}

	candidates, err := e.store.ListCandidates(ctx, e.kind, now, lockCutoff, preferred, candidateScanLimit)
	if err != nil {
		return zero, false, err
	}

	for _, c := range candidates {
		met, err := e.dependenciesMet(ctx, c.DependsOn)
		if err != nil {
			return zero, false, err
		}
		if !met {
			continue
		}

		claimed, err := e.store.ClaimCandidate(ctx, e.kind, c.ID, e.cfg.WorkerID, now, lockCutoff)
		if err != nil {
			return zero, false, err
		}
		if !claimed {
			metrics.RecordClaimContention(string(e.kind))
			continue
		}

		task, err := e.get(ctx, c.ID)
		if err != nil {
			return zero, false, err
		}
		return task, true, nil
	}
	return zero, false, nil
}

// dependenciesMet implements the resolver from the specification: every
// kind:id reference must exist and be success; an unknown kind or a
// missing id permanently blocks the task.
func (e *Executor[T]) dependenciesMet(ctx context.Context, dependsOn string) (bool, error) {
	for _, ref := range model.ParseDependsOn(dependsOn) {
		if !ref.Kind.Valid() {
			return false, nil
		}
		dep, err := e.store.Get(ctx, ref.Kind, ref.ID)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if dep.Lifecycle().Status != model.StatusSuccess {
			return false, nil
		}
	}
	return true, nil
}

func (e *Executor[T]) runOnce(ctx context.Context, task T, logger zerolog.Logger) {
	life := task.Lifecycle()
	logger.Info().
		Str(log.FieldTaskID, life.ID).
		Str(log.FieldWorkerID, e.cfg.WorkerID).
		Msg("claimed task")

	hb := e.startHeartbeat(ctx, life.ID, logger)
	execStart := time.Now()
	result, execErr := e.backend.Execute(ctx, task)
	metrics.ObserveExecutionDuration(string(e.kind), time.Since(execStart))
	hb.stop()

	now := time.Now()
	if execErr != nil {
		e.releaseFailure(ctx, life.ID, execErr, now, logger)
		return
	}
	e.releaseSuccess(ctx, life.ID, result, now, logger)
}

func (e *Executor[T]) releaseSuccess(ctx context.Context, id string, result Result, now time.Time, logger zerolog.Logger) {
	ok, err := e.store.ReleaseSuccess(ctx, e.kind, id, e.cfg.WorkerID, result.ResultURL, result.ResultLocalPath, result.ResultDurationMs, now)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldTaskID, id).Msg("failed to record success")
		return
	}
	if !ok {
		logger.Warn().Str(log.FieldTaskID, id).Msg("lease lost before success could be recorded")
		return
	}
	metrics.RecordExecutorOutcome(string(e.kind), "success")
	logger.Info().Str(log.FieldTaskID, id).Str(log.FieldNewStatus, string(model.StatusSuccess)).Msg("task completed")
}

func (e *Executor[T]) releaseFailure(ctx context.Context, id string, execErr error, now time.Time, logger zerolog.Logger) {
	retried, err := e.store.ReleaseFailure(ctx, e.kind, id, e.cfg.WorkerID, execErr.Error(), now)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldTaskID, id).Msg("failed to record failure")
		return
	}
	status := string(model.StatusFailed)
	outcome := "failed"
	if retried {
		status = string(model.StatusPending)
		outcome = "retry"
	}
	metrics.RecordExecutorOutcome(string(e.kind), outcome)
	logger.Warn().
		Str(log.FieldTaskID, id).
		Str(log.FieldNewStatus, status).
		Err(execErr).
		Msg("task execution failed")
}
