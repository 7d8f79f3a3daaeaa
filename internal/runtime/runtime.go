// Package runtime is the one impure layer in the system: it drives the
// kernel's pure apply() loop, durably persists the effects it returns
// to the record log, folds them into the projection store, and wires
// the policy layer onto every read and write. The kernel itself never
// touches a clock, a disk, or a logger; runtime is where all three
// live.
package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"kimberlite/internal/ids"
	"kimberlite/internal/ioengine"
	"kimberlite/internal/kernel"
	"kimberlite/internal/policy"
	"kimberlite/internal/projection"
	"kimberlite/internal/ratelimit"
	"kimberlite/internal/recordlog"
)

// Runtime is a single-tenant-capable, in-process replica: one kernel
// state, one projection store, and one open recordlog.Log per stream
// it has touched. A Runtime is safe for concurrent Submit/Query calls;
// every command is serialized through mu so apply() always sees the
// state its caller observed.
type Runtime struct {
	mu    sync.Mutex
	state *kernel.State
	store *projection.Store

	backend  ioengine.Backend
	registry *recordlog.CodecRegistry
	baseDir  string
	logs     map[ids.StreamId]*recordlog.Log
	audit    map[ids.TenantId]*recordlog.Log

	clock   clock.Clock
	log     *logrus.Logger
	ids     *idAllocator
	compr   recordlog.CompressionKind
	consent *policy.ConsentTracker
	limiter *ratelimit.Limiter
}

// Config controls how a Runtime persists and logs. Clock and Logger
// default to the real wall clock and a standard logrus.Logger when
// left nil/zero, so tests can inject benbjohnson/clock's mock clock
// and a captured logger without touching production call sites.
type Config struct {
	BaseDir     string
	Backend     ioengine.Backend
	Clock       clock.Clock
	Logger      *logrus.Logger
	Compression recordlog.CompressionKind

	// RateLimit, when set, caps Submit/Query calls per tenant via a
	// token bucket. The bucket reads RateLimitClock — the wall clock
	// unless a test injects a mock — never Clock: rate limiting is
	// deliberately outside the deterministic core.
	RateLimit      *ratelimit.Config
	RateLimitClock clock.Clock
}

// New returns a fresh Runtime over an empty kernel.State. cfg.BaseDir
// is where per-stream log/index file pairs are created on demand;
// cfg.Backend defaults to a real ioengine.FileBackend.
func New(cfg Config) *Runtime {
	if cfg.Backend == nil {
		cfg.Backend = ioengine.NewFileBackend()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	var limiter *ratelimit.Limiter
	if cfg.RateLimit != nil && cfg.RateLimit.Valid() {
		limiter = ratelimit.NewLimiter(*cfg.RateLimit, cfg.RateLimitClock)
	}
	return &Runtime{
		state:    kernel.NewState(),
		store:    projection.NewStore(),
		backend:  cfg.Backend,
		registry: recordlog.NewCodecRegistry(),
		baseDir:  cfg.BaseDir,
		logs:     make(map[ids.StreamId]*recordlog.Log),
		audit:    make(map[ids.TenantId]*recordlog.Log),
		clock:    cfg.Clock,
		log:      cfg.Logger,
		ids:      newIdAllocator(),
		compr:    cfg.Compression,
		consent:  policy.NewConsentTracker(),
		limiter:  limiter,
	}
}

// checkRate charges one token against tenant's bucket when rate
// limiting is configured.
func (r *Runtime) checkRate(tenant ids.TenantId) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Check(fmt.Sprintf("tenant-%d", uint32(tenant)))
}

// checkRatePolicy charges the read-path bucket for the policy's tenant
// scope; cross-tenant policies share one bucket.
func (r *Runtime) checkRatePolicy(p policy.AccessPolicy) error {
	if r.limiter == nil {
		return nil
	}
	if p.Tenant != nil {
		return r.checkRate(*p.Tenant)
	}
	return r.limiter.Check("cross-tenant")
}

// Consent exposes the runtime's consent tracker so a caller can grant,
// withdraw, or expire a subject's consent ahead of a gated query.
func (r *Runtime) Consent() *policy.ConsentTracker {
	return r.consent
}

func (r *Runtime) entry(component string) *logrus.Entry {
	return r.log.WithField("component", component)
}

// State returns a snapshot of the kernel's current catalog. Callers
// must not mutate the returned value; every kernel.State field is
// itself value-semantic, so sharing it is safe as long as callers only
// read it.
func (r *Runtime) State() *kernel.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Store exposes the live projection store for read-path callers
// (query.Engine, snapshot_at).
func (r *Runtime) Store() *projection.Store {
	return r.store
}

// Submit is the runtime's single write entrypoint: it runs cmd through
// kernel.Apply under the tenant's identity, and, only if accepted,
// durably carries out every effect the kernel returned, in order. A
// failed Apply call never touches disk: the kernel rejected the
// command before any effect existed.
func (r *Runtime) Submit(ctx context.Context, tenant ids.TenantId, cmd kernel.Command) ([]kernel.Effect, error) {
	if err := r.checkRate(tenant); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next, effects, err := kernel.Apply(r.state, tenant, cmd)
	if err != nil {
		r.entry("kernel").WithFields(logrus.Fields{
			"tenant_id": tenant,
			"command":   fmt.Sprintf("%T", cmd),
		}).WithError(err).Warn("command rejected")
		return nil, err
	}

	r.applyCommittedEffects(ctx, tenant, cmd, effects)

	r.state = next
	return effects, nil
}

// applyCommittedEffects runs effects for an already-accepted command,
// recovering any panic into a fatal replica stop rather than letting it
// escape mid-batch or unwind past a partially applied set of effects:
// the kernel has committed to this command, so its effects either all
// land or the replica stops.
func (r *Runtime) applyCommittedEffects(ctx context.Context, tenant ids.TenantId, cmd kernel.Command, effects []kernel.Effect) {
	defer func() {
		if p := recover(); p != nil {
			r.entry("runtime").WithFields(logrus.Fields{
				"tenant_id": tenant,
				"command":   fmt.Sprintf("%T", cmd),
			}).Fatalf("panic applying committed command effects: %v", p)
		}
	}()
	if err := r.runEffects(ctx, effects); err != nil {
		// An I/O error here is fatal for this replica: the
		// kernel already accepted the command, so the effect pipeline
		// has no way to roll it back.
		r.entry("runtime").WithError(err).Fatal("effect application failed; stopping replica")
	}
}

func (r *Runtime) streamPaths(streamId ids.StreamId) (string, string) {
	name := fmt.Sprintf("stream-%d", uint64(streamId))
	return filepath.Join(r.baseDir, name+".log"), filepath.Join(r.baseDir, name+".idx")
}

func (r *Runtime) openStreamLog(ctx context.Context, streamId ids.StreamId) (*recordlog.Log, error) {
	if l, ok := r.logs[streamId]; ok {
		return l, nil
	}
	dataPath, indexPath := r.streamPaths(streamId)
	l, err := recordlog.Open(ctx, r.backend, dataPath, indexPath, r.registry)
	if err != nil {
		return nil, fmt.Errorf("runtime: open stream %s: %w", streamId, err)
	}
	r.logs[streamId] = l
	return l, nil
}

func (r *Runtime) openAuditLog(ctx context.Context, tenant ids.TenantId) (*recordlog.Log, error) {
	if l, ok := r.audit[tenant]; ok {
		return l, nil
	}
	name := fmt.Sprintf("audit-%d", uint32(tenant))
	dataPath := filepath.Join(r.baseDir, name+".log")
	indexPath := filepath.Join(r.baseDir, name+".idx")
	l, err := recordlog.Open(ctx, r.backend, dataPath, indexPath, r.registry)
	if err != nil {
		return nil, fmt.Errorf("runtime: open audit log for tenant %d: %w", tenant, err)
	}
	r.audit[tenant] = l
	return l, nil
}

// Close flushes and releases every log this runtime has opened.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, l := range r.logs {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, l := range r.audit {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
