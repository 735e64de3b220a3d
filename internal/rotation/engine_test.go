package rotation

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credkeeper/internal/audit"
	"github.com/systmms/credkeeper/internal/breach"
	ckerrors "github.com/systmms/credkeeper/internal/errors"
	"github.com/systmms/credkeeper/internal/logging"
	"github.com/systmms/credkeeper/internal/policy"
	"github.com/systmms/credkeeper/internal/secondfactor"
)

type fakeBreach struct {
	mu     sync.Mutex
	result breach.Result
}

func (f *fakeBreach) Check(context.Context, string) breach.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

func (f *fakeBreach) setResult(r breach.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = r
}

// fakeStore lets tests inject apply failures, observe applied values, and
// hold a write open to exercise the per-type lock.
type fakeStore struct {
	mu      sync.Mutex
	applied map[string]string
	failErr error
	block   chan struct{}
	entered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{applied: make(map[string]string)}
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) Read(_ context.Context, typeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[typeID], nil
}

func (f *fakeStore) Apply(_ context.Context, typeID, value string) error {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.applied[typeID] = value
	return nil
}

func testPolicies() []policy.CredentialPolicy {
	return []policy.CredentialPolicy{
		{
			TypeID:               "API_KEY",
			RotationIntervalDays: 90,
			WarningDays:          30,
			MinLength:            32,
			Complexity:           policy.ComplexityMedium,
		},
		{
			TypeID:               "DB_PASSWORD",
			RotationIntervalDays: 90,
			WarningDays:          30,
			MinLength:            16,
			Complexity:           policy.ComplexityHigh,
			RequiresSecondFactor: true,
			Crucial:              true,
			PasswordLike:         true,
		},
	}
}

type engineFixture struct {
	engine   *Engine
	policies *policy.Store
	backend  *fakeStore
	breach   *fakeBreach
	audit    *audit.Logger
}

func newEngineFixture(t *testing.T, breachResult breach.Result, second secondfactor.Verifier) *engineFixture {
	t.Helper()

	logger := logging.NewWithWriter(io.Discard, false)

	policies, err := policy.NewStore(t.TempDir(), testPolicies())
	require.NoError(t, err)

	auditLog, err := audit.New(t.TempDir(), logger)
	require.NoError(t, err)

	backend := newFakeStore()
	checker := &fakeBreach{result: breachResult}
	eng := New(Config{
		Policies: policies,
		Backend:  backend,
		Breach:   checker,
		Second:   second,
		Audit:    auditLog,
		Logger:   logger,
	})
	return &engineFixture{engine: eng, policies: policies, backend: backend, breach: checker, audit: auditLog}
}

func TestRotateAccepted(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: true})

	rotatedAt := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	fx.engine.SetClock(func() time.Time { return rotatedAt })

	attempt, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, attempt.Outcome)
	assert.NotEmpty(t, attempt.ID)
	require.NotNil(t, attempt.StrengthScore)
	assert.Equal(t, 100, *attempt.StrengthScore)
	assert.NotEmpty(t, attempt.Fingerprint)

	value, err := fx.backend.Read(context.Background(), "API_KEY")
	require.NoError(t, err)
	assert.Len(t, value, 32)

	rec, err := fx.policies.Record("API_KEY")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RotationCount)
	assert.Equal(t, rotatedAt, rec.LastRotatedAt)
	assert.Equal(t, rotatedAt.AddDate(0, 0, 90), rec.ExpiresAt)
	assert.Equal(t, attempt.Fingerprint, rec.Fingerprint)

	records, err := fx.audit.List(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rotation", records[0].ActionType)
	assert.Equal(t, audit.StatusSuccess, records[0].Status)
}

func TestRotateUnknownType(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{}, secondfactor.Static{Allow: true})

	_, err := fx.engine.Rotate(context.Background(), "NOPE", Options{})
	var unknown ckerrors.UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "NOPE", unknown.TypeID)
}

func TestRotateRejectsWeakCandidate(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{}, secondfactor.Static{Allow: true})
	ctx := context.Background()

	// Establish a live credential first so the rejection has something to
	// leave intact.
	_, err := fx.engine.Rotate(ctx, "API_KEY", Options{})
	require.NoError(t, err)
	before, err := fx.policies.Record("API_KEY")
	require.NoError(t, err)
	oldValue, err := fx.backend.Read(ctx, "API_KEY")
	require.NoError(t, err)

	fx.engine.SetGenerator(func(policy.CredentialPolicy) (string, error) {
		return "password", nil
	})
	attempt, err := fx.engine.Rotate(ctx, "API_KEY", Options{})

	assert.Equal(t, OutcomeRejectedWeak, attempt.Outcome)
	var verr ckerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ckerrors.ReasonWeak, verr.Reason)
	assert.NotEmpty(t, attempt.Issues)

	// The stored value and the lifecycle record are untouched.
	value, err := fx.backend.Read(ctx, "API_KEY")
	require.NoError(t, err)
	assert.Equal(t, oldValue, value)
	after, err := fx.policies.Record("API_KEY")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRotateRejectsBreachedCandidate(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: true})
	ctx := context.Background()

	_, err := fx.engine.Rotate(ctx, "DB_PASSWORD", Options{})
	require.NoError(t, err)
	before, err := fx.policies.Record("DB_PASSWORD")
	require.NoError(t, err)
	oldValue, err := fx.backend.Read(ctx, "DB_PASSWORD")
	require.NoError(t, err)

	fx.breach.setResult(breach.Result{Count: 4712, Checked: true})
	attempt, err := fx.engine.Rotate(ctx, "DB_PASSWORD", Options{})

	assert.Equal(t, OutcomeRejectedBreached, attempt.Outcome)
	var verr ckerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ckerrors.ReasonBreached, verr.Reason)
	require.NotNil(t, attempt.BreachCount)
	assert.Equal(t, 4712, *attempt.BreachCount)

	// The stored value and the lifecycle record are untouched.
	value, err := fx.backend.Read(ctx, "DB_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, oldValue, value)
	after, err := fx.policies.Record("DB_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRotateProceedsWhenBreachCheckUnavailable(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: false}, secondfactor.Static{Allow: true})

	attempt, err := fx.engine.Rotate(context.Background(), "DB_PASSWORD", Options{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, attempt.Outcome)
	assert.Nil(t, attempt.BreachCount)
}

func TestRotateSecondFactorDenied(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: false})

	attempt, err := fx.engine.Rotate(context.Background(), "DB_PASSWORD", Options{})

	assert.Equal(t, OutcomeRejectedSecondFactor, attempt.Outcome)
	var sfe ckerrors.SecondFactorError
	require.ErrorAs(t, err, &sfe)
	assert.Equal(t, "DB_PASSWORD", sfe.TypeID)
	assert.Nil(t, attempt.StrengthScore)
}

func TestRotateSkipSecondFactor(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: false})

	attempt, err := fx.engine.Rotate(context.Background(), "DB_PASSWORD", Options{SkipSecondFactor: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, attempt.Outcome)

	records, listErr := fx.audit.List(1)
	require.NoError(t, listErr)
	require.Len(t, records, 1)
	assert.Equal(t, true, records[0].Arguments["second_factor_skipped"])
}

func TestRotateSecondFactorNotRequiredForOtherTypes(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: false})

	attempt, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, attempt.Outcome)
}

func TestRotateStorageFailure(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: true})
	fx.backend.failErr = ckerrors.StorageError{TypeID: "API_KEY", Err: io.ErrClosedPipe}

	attempt, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{})

	assert.Equal(t, OutcomeStorageFailure, attempt.Outcome)
	var serr ckerrors.StorageError
	require.ErrorAs(t, err, &serr)

	// Recoverable failure does not quarantine.
	_, quarantined := fx.engine.Quarantined("API_KEY")
	assert.False(t, quarantined)
}

func TestRotateQuarantinesAfterFailedRestore(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: true})
	fx.backend.failErr = ckerrors.StorageError{TypeID: "API_KEY", RestoreFailed: true, Err: io.ErrClosedPipe}

	attempt, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{})
	assert.Equal(t, OutcomeStorageFailure, attempt.Outcome)
	require.True(t, ckerrors.IsFatal(err))

	reason, quarantined := fx.engine.Quarantined("API_KEY")
	assert.True(t, quarantined)
	assert.NotEmpty(t, reason)

	// Further rotations are refused until the quarantine is cleared.
	_, err = fx.engine.Rotate(context.Background(), "API_KEY", Options{})
	var qerr ckerrors.QuarantinedError
	require.ErrorAs(t, err, &qerr)

	fx.backend.failErr = nil
	fx.engine.ClearQuarantine("API_KEY")
	attempt, err = fx.engine.Rotate(context.Background(), "API_KEY", Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, attempt.Outcome)
}

func TestRotateConcurrentFailsFast(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: true})
	fx.backend.block = make(chan struct{})
	fx.backend.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{})
		done <- err
	}()

	// The first rotation is inside the backend write and holds the lock.
	<-fx.backend.entered

	_, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{})
	var rip ckerrors.RotationInProgressError
	require.ErrorAs(t, err, &rip)
	assert.True(t, ckerrors.IsTransient(err))

	close(fx.backend.block)
	require.NoError(t, <-done)
}

func TestRotateWaitForLock(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: true})
	fx.backend.block = make(chan struct{})
	fx.backend.entered = make(chan struct{}, 1)

	first := make(chan error, 1)
	go func() {
		_, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{})
		first <- err
	}()
	<-fx.backend.entered

	second := make(chan error, 1)
	go func() {
		_, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{WaitForLock: true})
		second <- err
	}()

	// The waiting rotation blocks on the lock instead of failing fast and
	// completes once the first write finishes.
	close(fx.backend.block)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
}

func TestRotateWaitForLockSeesQuarantine(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: true})
	fx.backend.block = make(chan struct{})
	fx.backend.entered = make(chan struct{}, 1)
	fx.backend.failErr = ckerrors.StorageError{TypeID: "API_KEY", RestoreFailed: true, Err: io.ErrClosedPipe}

	first := make(chan error, 1)
	go func() {
		_, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{})
		first <- err
	}()
	<-fx.backend.entered

	second := make(chan error, 1)
	go func() {
		_, err := fx.engine.Rotate(context.Background(), "API_KEY", Options{WaitForLock: true})
		second <- err
	}()

	// The first rotation quarantines the type before releasing the lock,
	// so the queued rotation must be refused rather than attempted.
	close(fx.backend.block)
	require.True(t, ckerrors.IsFatal(<-first))

	var qerr ckerrors.QuarantinedError
	require.ErrorAs(t, <-second, &qerr)
	assert.Equal(t, "API_KEY", qerr.TypeID)
}

func TestRotateDueContinuesPastRejections(t *testing.T) {
	fx := newEngineFixture(t, breach.Result{Checked: true}, secondfactor.Static{Allow: false})

	attempts, err := fx.engine.RotateDue(context.Background(), []string{"DB_PASSWORD", "API_KEY"}, Options{})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeRejectedSecondFactor, attempts[0].Outcome)
	assert.Equal(t, OutcomeAccepted, attempts[1].Outcome)
}
