package service_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/heysouravv/social-hour/internal/adapter/cache"
	"github.com/heysouravv/social-hour/internal/domain"
	"github.com/heysouravv/social-hour/internal/events"
	"github.com/heysouravv/social-hour/internal/flow"
	"github.com/heysouravv/social-hour/internal/otp"
	"github.com/heysouravv/social-hour/internal/repository"
	"github.com/heysouravv/social-hour/internal/service"
)

const goodCode = "123456"

// scriptedProvider accepts goodCode and rejects everything else. With hold
// set, results are kept until release is called.
type scriptedProvider struct {
	results chan<- otp.Result

	mu        sync.Mutex
	hold      bool
	held      []otp.Result
	initiated []otp.InitiateParams
}

func (p *scriptedProvider) Initiate(_ context.Context, params otp.InitiateParams) error {
	p.mu.Lock()
	p.initiated = append(p.initiated, params)
	p.mu.Unlock()
	return nil
}

func (p *scriptedProvider) Verify(_ context.Context, params otp.VerifyParams) error {
	r := otp.Result{Session: params.Session, Attempt: params.Attempt}
	if params.OTP == goodCode {
		r.Success = true
		r.StatusCode = http.StatusOK
		r.Response = map[string]any{"phone": params.Phone}
	} else {
		r.StatusCode = http.StatusUnauthorized
		r.Response = map[string]any{"message": "Invalid OTP"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hold {
		p.held = append(p.held, r)
		return nil
	}
	go otp.Deliver(context.Background(), p.results, r)
	return nil
}

func (p *scriptedProvider) release() {
	p.mu.Lock()
	held := p.held
	p.held = nil
	p.hold = false
	p.mu.Unlock()
	for _, r := range held {
		p.results <- r
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// gatedPublisher blocks every Publish until gate is closed.
type gatedPublisher struct {
	*recordingPublisher
	gate chan struct{}
}

func (p *gatedPublisher) Publish(ctx context.Context, e events.Event) error {
	<-p.gate
	return p.recordingPublisher.Publish(ctx, e)
}

type failingLedger struct{}

func (failingLedger) Upsert(context.Context, domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	return domain.WaitlistEntry{}, errors.New("db down")
}

type harness struct {
	svc       *service.WaitlistService
	provider  *scriptedProvider
	publisher *recordingPublisher
}

func newHarness(t *testing.T, ledger repository.WaitlistRepository) *harness {
	t.Helper()
	publisher := &recordingPublisher{}
	return newHarnessWith(t, ledger, publisher, publisher)
}

func newHarnessWith(t *testing.T, ledger repository.WaitlistRepository, publisher events.Publisher, recorded *recordingPublisher) *harness {
	t.Helper()
	results := otp.NewResults(0)
	provider := &scriptedProvider{results: results}
	if ledger == nil {
		node, err := snowflake.NewNode(1)
		require.NoError(t, err)
		ledger = repository.NewMemoryWaitlistRepo(node)
	}
	logger := zaptest.NewLogger(t)
	controller := flow.NewController(provider, flow.DefaultRules(), logger)
	svc := service.NewWaitlistService(cache.NewMemorySessionStore(), ledger, publisher, controller, results, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{svc: svc, provider: provider, publisher: recorded}
}

func (h *harness) atOTPStep(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	s, err := h.svc.Start(ctx, "")
	require.NoError(t, err)

	s, err = h.svc.SubmitProfile(ctx, s.ID, "Asha", "Gurgaon")
	require.NoError(t, err)
	require.Equal(t, domain.StepCollectPhone, s.Step)

	s, err = h.svc.SubmitPhone(ctx, s.ID, "9876543210")
	require.NoError(t, err)
	require.Equal(t, domain.StepCollectOTP, s.Step)
	return s.ID
}

func awaitWithin(t *testing.T, svc *service.WaitlistService, id string) *domain.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := svc.Await(ctx, id)
	require.NoError(t, err)
	return s
}

func TestWaitlistServiceConfirmsAndRecords(t *testing.T) {
	h := newHarness(t, nil)
	id := h.atOTPStep(t)
	require.Len(t, h.provider.initiated, 1)
	require.Equal(t, otp.InitiateParams{Session: id, Channel: otp.ChannelPhone, Phone: "9876543210", CountryCode: "+91"}, h.provider.initiated[0])

	s, err := h.svc.SubmitOTP(context.Background(), id, goodCode)
	require.NoError(t, err)
	require.True(t, s.Pending)

	s = awaitWithin(t, h.svc, id)
	require.Equal(t, domain.StepConfirmed, s.Step)
	require.True(t, s.Verified)
	require.Equal(t, "9876543210", s.UserInfo["phone"])

	require.Eventually(t, func() bool { return len(h.publisher.published()) == 1 }, 2*time.Second, 10*time.Millisecond)
	event := h.publisher.published()[0]
	require.Equal(t, events.TypeWaitlistJoined, event.Type)
	require.NotZero(t, event.EntryID)
	require.Equal(t, id, event.SessionID)
	require.Equal(t, "Asha", event.Name)
	require.Equal(t, "Gurgaon", event.Area)
	require.Equal(t, "+91", event.CountryCode)
	require.Equal(t, "9876543210", event.Phone)
}

func TestWaitlistServiceSlowRecordDoesNotDelayOtherResults(t *testing.T) {
	recorded := &recordingPublisher{}
	gate := make(chan struct{})
	h := newHarnessWith(t, nil, &gatedPublisher{recordingPublisher: recorded, gate: gate}, recorded)
	defer close(gate)
	ctx := context.Background()

	a := h.atOTPStep(t)
	b := h.atOTPStep(t)

	_, err := h.svc.SubmitOTP(ctx, a, goodCode)
	require.NoError(t, err)
	s := awaitWithin(t, h.svc, a)
	require.Equal(t, domain.StepConfirmed, s.Step)

	start := time.Now()
	_, err = h.svc.SubmitOTP(ctx, b, "000000")
	require.NoError(t, err)
	s = awaitWithin(t, h.svc, b)
	require.False(t, s.Pending)
	require.Equal(t, "Verification failed: Invalid OTP", s.Error)
	require.Less(t, time.Since(start), time.Second)
	require.Empty(t, recorded.published())
}

func TestWaitlistServiceRejectedCode(t *testing.T) {
	h := newHarness(t, nil)
	id := h.atOTPStep(t)

	_, err := h.svc.SubmitOTP(context.Background(), id, "000000")
	require.NoError(t, err)

	s := awaitWithin(t, h.svc, id)
	require.Equal(t, domain.StepCollectOTP, s.Step)
	require.False(t, s.Pending)
	require.Equal(t, "Verification failed: Invalid OTP", s.Error)
	require.Empty(t, s.Draft.OTP)
	require.Empty(t, h.publisher.published())
}

func TestWaitlistServiceIgnoresResultAfterChangeNumber(t *testing.T) {
	h := newHarness(t, nil)
	id := h.atOTPStep(t)
	h.provider.hold = true

	_, err := h.svc.SubmitOTP(context.Background(), id, goodCode)
	require.NoError(t, err)

	s, err := h.svc.ChangeNumber(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.StepCollectPhone, s.Step)

	h.provider.release()
	s = awaitWithin(t, h.svc, id)
	require.Equal(t, domain.StepCollectPhone, s.Step)
	require.False(t, s.Verified)
	require.Equal(t, "9876543210", s.Draft.PhoneNumber)
}

func TestWaitlistServiceAwaitTimesOutWhilePending(t *testing.T) {
	h := newHarness(t, nil)
	id := h.atOTPStep(t)
	h.provider.hold = true

	_, err := h.svc.SubmitOTP(context.Background(), id, goodCode)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s, err := h.svc.Await(ctx, id)
	require.NoError(t, err)
	require.True(t, s.Pending)

	s, err = h.svc.SubmitOTP(context.Background(), id, goodCode)
	require.NoError(t, err)
	require.Equal(t, "Verification already in progress. Please wait.", s.Error)

	h.provider.release()
	s = awaitWithin(t, h.svc, id)
	require.Equal(t, domain.StepConfirmed, s.Step)
}

func TestWaitlistServiceLedgerFailureStillConfirms(t *testing.T) {
	h := newHarness(t, failingLedger{})
	id := h.atOTPStep(t)

	_, err := h.svc.SubmitOTP(context.Background(), id, goodCode)
	require.NoError(t, err)

	s := awaitWithin(t, h.svc, id)
	require.Equal(t, domain.StepConfirmed, s.Step)
	require.Empty(t, h.publisher.published())
}

func TestWaitlistServiceStartReusesSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.svc.Start(ctx, "")
	require.NoError(t, err)
	require.Equal(t, domain.StepCollectProfile, first.Step)

	again, err := h.svc.Start(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	fresh, err := h.svc.Start(ctx, "expired-id")
	require.NoError(t, err)
	require.NotEqual(t, "expired-id", fresh.ID)
}

func TestWaitlistServiceUnknownSession(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.SubmitProfile(context.Background(), "missing", "Asha", "Gurgaon")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = h.svc.Await(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestWaitlistServiceFinishDiscardsSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s, err := h.svc.Start(ctx, "")
	require.NoError(t, err)

	require.NoError(t, h.svc.Finish(ctx, s.ID))
	_, err = h.svc.Get(ctx, s.ID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestWaitlistServiceBack(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s, err := h.svc.Start(ctx, "")
	require.NoError(t, err)
	_, err = h.svc.SubmitProfile(ctx, s.ID, "Asha", "Gurgaon")
	require.NoError(t, err)

	s, err = h.svc.Back(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StepCollectProfile, s.Step)
	require.Equal(t, "Asha", s.Draft.Name)
}
