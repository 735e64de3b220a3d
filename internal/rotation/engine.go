// Package rotation coordinates the full credential rotation attempt:
// second factor, candidate generation, strength and breach validation,
// storage update and lifecycle bookkeeping, with every attempt audited.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/credkeeper/internal/audit"
	"github.com/systmms/credkeeper/internal/breach"
	ckerrors "github.com/systmms/credkeeper/internal/errors"
	"github.com/systmms/credkeeper/internal/generate"
	"github.com/systmms/credkeeper/internal/logging"
	"github.com/systmms/credkeeper/internal/policy"
	"github.com/systmms/credkeeper/internal/secondfactor"
	"github.com/systmms/credkeeper/internal/secure"
	"github.com/systmms/credkeeper/internal/store"
	"github.com/systmms/credkeeper/internal/strength"
)

// Outcome is the terminal state of one rotation attempt.
type Outcome string

const (
	OutcomeAccepted             Outcome = "accepted"
	OutcomeRejectedWeak         Outcome = "rejected_weak"
	OutcomeRejectedBreached     Outcome = "rejected_breached"
	OutcomeRejectedSecondFactor Outcome = "rejected_second_factor"
	OutcomeStorageFailure       Outcome = "storage_failure"
)

// Attempt records one rotation attempt. StrengthScore and BreachCount are
// nil when the attempt ended before the corresponding check ran.
type Attempt struct {
	ID            string    `json:"id"`
	TypeID        string    `json:"type_id"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Outcome       Outcome   `json:"outcome"`
	StrengthScore *int      `json:"strength_score,omitempty"`
	BreachCount   *int      `json:"breach_count,omitempty"`
	Issues        []string  `json:"issues,omitempty"`

	// Fingerprint is the masked form of the accepted credential.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// BreachChecker looks a candidate up in the breach corpus. Lookups never
// fail an attempt on their own; unavailability reads as unchecked.
type BreachChecker interface {
	Check(ctx context.Context, candidate string) breach.Result
}

// Options adjust a single Rotate call.
type Options struct {
	// Actor is recorded in the audit trail. Defaults to "cli".
	Actor string

	// WaitForLock blocks until a concurrent rotation of the same type
	// finishes instead of failing fast.
	WaitForLock bool

	// SkipSecondFactor bypasses second-factor verification. Reserved for
	// non-interactive callers that have already verified out of band; the
	// bypass is recorded in the audit trail.
	SkipSecondFactor bool
}

// Config carries the engine's collaborators.
type Config struct {
	Policies *policy.Store
	Backend  store.Store
	Breach   BreachChecker
	Second   secondfactor.Verifier
	Audit    *audit.Logger
	Logger   *logging.Logger
}

// Engine serializes rotations per credential type and enforces the policy
// checks before any value reaches storage.
type Engine struct {
	policies *policy.Store
	backend  store.Store
	breach   BreachChecker
	second   secondfactor.Verifier
	audit    *audit.Logger
	logger   *logging.Logger
	metrics  *Metrics

	now      func() time.Time
	newID    func() string
	generate func(policy.CredentialPolicy) (string, error)

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	quarantined map[string]string
}

// New creates a rotation engine.
func New(cfg Config) *Engine {
	return &Engine{
		policies:    cfg.Policies,
		backend:     cfg.Backend,
		breach:      cfg.Breach,
		second:      cfg.Second,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		metrics:     NewMetrics(),
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
		generate:    generate.Candidate,
		locks:       make(map[string]*sync.Mutex),
		quarantined: make(map[string]string),
	}
}

// SetClock overrides the timestamp source for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SetGenerator overrides candidate generation for tests.
func (e *Engine) SetGenerator(gen func(policy.CredentialPolicy) (string, error)) {
	e.generate = gen
}

// Quarantined reports whether typeID is blocked, with the reason.
func (e *Engine) Quarantined(typeID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reason, ok := e.quarantined[typeID]
	return reason, ok
}

// ClearQuarantine lifts the block on typeID after operator intervention.
func (e *Engine) ClearQuarantine(typeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.quarantined, typeID)
	e.logger.Warn("Quarantine cleared for %s", typeID)
}

func (e *Engine) lockFor(typeID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[typeID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[typeID] = l
	}
	return l
}

// Rotate runs one rotation attempt for typeID. The returned Attempt is
// always populated, including on rejection; err carries the typed cause
// for every outcome other than accepted.
func (e *Engine) Rotate(ctx context.Context, typeID string, opts Options) (Attempt, error) {
	pol, err := e.policies.Policy(typeID)
	if err != nil {
		return Attempt{TypeID: typeID}, err
	}

	lock := e.lockFor(typeID)
	if opts.WaitForLock {
		lock.Lock()
	} else if !lock.TryLock() {
		return Attempt{TypeID: typeID}, ckerrors.RotationInProgressError{TypeID: typeID}
	}
	defer lock.Unlock()

	// Checked under the lock: the rotation this call queued behind may
	// have quarantined the type.
	e.mu.Lock()
	if reason, ok := e.quarantined[typeID]; ok {
		e.mu.Unlock()
		return Attempt{TypeID: typeID}, ckerrors.QuarantinedError{TypeID: typeID, Reason: reason}
	}
	e.mu.Unlock()

	actor := opts.Actor
	if actor == "" {
		actor = "cli"
	}

	attempt := Attempt{
		ID:        e.newID(),
		TypeID:    typeID,
		StartedAt: e.now().UTC(),
	}
	e.metrics.rotationStart(typeID)
	e.logger.Info("Rotating %s", typeID)

	args := map[string]any{
		"type_id":    typeID,
		"attempt_id": attempt.ID,
	}
	if opts.SkipSecondFactor {
		args["second_factor_skipped"] = true
	}
	err = e.audit.Wrap(ctx, "rotation", actor, args, func(ctx context.Context) error {
		return e.attempt(ctx, pol, &attempt, opts)
	})

	attempt.EndedAt = e.now().UTC()
	e.metrics.rotationDone(typeID, attempt.Outcome, attempt.EndedAt.Sub(attempt.StartedAt).Seconds())

	if err != nil {
		e.logger.Error("Rotation of %s failed: %v", typeID, err)
	} else {
		e.logger.Info("Rotation of %s accepted (%s)", typeID, attempt.Fingerprint)
	}
	return attempt, err
}

// attempt runs the checks in order. The first failing check decides the
// outcome; later checks never run.
func (e *Engine) attempt(ctx context.Context, pol policy.CredentialPolicy, attempt *Attempt, opts Options) error {
	if pol.RequiresSecondFactor && !opts.SkipSecondFactor {
		ok, err := e.second.Verify(ctx, pol.TypeID, "rotation")
		if err != nil {
			attempt.Outcome = OutcomeRejectedSecondFactor
			return fmt.Errorf("second-factor verification for %s: %w", pol.TypeID, err)
		}
		if !ok {
			attempt.Outcome = OutcomeRejectedSecondFactor
			return ckerrors.SecondFactorError{TypeID: pol.TypeID, Operation: "rotation"}
		}
	}

	plain, err := e.generate(pol)
	if err != nil {
		attempt.Outcome = OutcomeRejectedWeak
		return fmt.Errorf("generating candidate for %s: %w", pol.TypeID, err)
	}
	candidate := secure.NewCandidate([]byte(plain))
	defer candidate.Destroy()

	res := strength.Score(plain, pol)
	attempt.StrengthScore = &res.Score
	attempt.Issues = res.Issues
	if !res.Valid || res.Score < pol.RequiredScore() {
		if res.Valid {
			attempt.Issues = append(attempt.Issues,
				fmt.Sprintf("score %d below required %d", res.Score, pol.RequiredScore()))
		}
		attempt.Outcome = OutcomeRejectedWeak
		return ckerrors.ValidationError{TypeID: pol.TypeID, Reason: ckerrors.ReasonWeak, Issues: attempt.Issues}
	}

	if pol.PasswordLike && pol.Complexity != policy.ComplexityNone {
		result := e.breach.Check(ctx, plain)
		if result.Checked {
			attempt.BreachCount = &result.Count
			if result.Count > 0 {
				e.metrics.breachCheck("breached")
				attempt.Outcome = OutcomeRejectedBreached
				return ckerrors.ValidationError{
					TypeID: pol.TypeID,
					Reason: ckerrors.ReasonBreached,
					Issues: []string{fmt.Sprintf("seen %d times in breach corpus", result.Count)},
				}
			}
			e.metrics.breachCheck("clean")
		} else {
			e.metrics.breachCheck("unavailable")
			e.logger.Warn("Breach check unavailable for %s, proceeding", pol.TypeID)
		}
	}

	rotatedAt := e.now().UTC()
	if err := e.apply(ctx, pol.TypeID, candidate); err != nil {
		attempt.Outcome = OutcomeStorageFailure
		if ckerrors.IsFatal(err) {
			e.mu.Lock()
			e.quarantined[pol.TypeID] = err.Error()
			e.mu.Unlock()
			e.logger.Error("Quarantining %s after failed restore", pol.TypeID)
		}
		return err
	}

	attempt.Fingerprint = logging.Fingerprint(plain)
	if err := e.policies.UpdateRecord(pol.TypeID, attempt.Fingerprint, rotatedAt); err != nil {
		// The new value is live; report the bookkeeping failure without
		// claiming the rotation did not happen.
		attempt.Outcome = OutcomeAccepted
		return fmt.Errorf("credential for %s updated but lifecycle record save failed: %w", pol.TypeID, err)
	}

	attempt.Outcome = OutcomeAccepted
	return nil
}

func (e *Engine) apply(ctx context.Context, typeID string, candidate *secure.Candidate) error {
	return candidate.WithValue(func(value []byte) error {
		return e.backend.Apply(ctx, typeID, string(value))
	})
}

// RotateDue rotates every credential type whose expiry tier calls for
// action. Attempts continue past per-type failures; the first fatal error
// stops the sweep.
func (e *Engine) RotateDue(ctx context.Context, due []string, opts Options) ([]Attempt, error) {
	attempts := make([]Attempt, 0, len(due))
	for _, typeID := range due {
		attempt, err := e.Rotate(ctx, typeID, opts)
		attempts = append(attempts, attempt)
		if err != nil && ckerrors.IsFatal(err) {
			return attempts, err
		}
		var unknown ckerrors.UnknownTypeError
		if errors.As(err, &unknown) {
			return attempts, err
		}
	}
	return attempts, nil
}
