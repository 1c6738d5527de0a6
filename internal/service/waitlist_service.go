package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heysouravv/social-hour/internal/domain"
	"github.com/heysouravv/social-hour/internal/events"
	"github.com/heysouravv/social-hour/internal/flow"
	"github.com/heysouravv/social-hour/internal/otp"
	"github.com/heysouravv/social-hour/internal/repository"
)

const (
	// maxConcurrentRecords bounds ledger and event writes in flight. Once it
	// is reached the dispatcher waits for a slot.
	maxConcurrentRecords = 8
	recordTimeout        = 15 * time.Second
)

// WaitlistService owns waitlist sessions. It serializes every mutation of a
// session, applies asynchronous verification results and records confirmed
// signups.
type WaitlistService struct {
	sessions   repository.SessionStore
	entries    repository.WaitlistRepository
	publisher  events.Publisher
	controller *flow.Controller
	results    <-chan otp.Result
	ttl        time.Duration
	logger     *zap.Logger
	tracer     trace.Tracer
	newID      func() string

	locks keyedMutex

	waitMu  sync.Mutex
	waiters map[string]map[chan struct{}]struct{}
}

// NewWaitlistService wires dependencies. results is the channel the OTP
// provider was constructed with.
func NewWaitlistService(
	sessions repository.SessionStore,
	entries repository.WaitlistRepository,
	publisher events.Publisher,
	controller *flow.Controller,
	results <-chan otp.Result,
	ttl time.Duration,
	logger *zap.Logger,
) *WaitlistService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &WaitlistService{
		sessions:   sessions,
		entries:    entries,
		publisher:  publisher,
		controller: controller,
		results:    results,
		ttl:        ttl,
		logger:     logger,
		tracer:     otel.Tracer("github.com/heysouravv/social-hour/internal/service"),
		newID:      uuid.NewString,
		locks:      keyedMutex{locks: make(map[string]*keyLock)},
		waiters:    make(map[string]map[chan struct{}]struct{}),
	}
}

// Rules exposes the input constraints for rendering.
func (s *WaitlistService) Rules() flow.Rules {
	return s.controller.Rules()
}

// Start loads the session for id, creating a fresh one at the first step
// when id is empty or unknown. The returned session's ID may differ from id.
func (s *WaitlistService) Start(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := s.startSpan(ctx, "WaitlistService.Start")
	defer span.End()

	if id != "" {
		session, err := s.sessions.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("load session: %w", err)
		}
		if session != nil {
			return session, nil
		}
	}

	session := domain.NewSession(s.newID(), time.Now().UTC())
	if err := s.sessions.Save(ctx, session, s.ttl); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.audit("waitlist.session.started", "session_id", session.ID)
	return session, nil
}

// Get returns the session or ErrSessionNotFound.
func (s *WaitlistService) Get(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *WaitlistService) SubmitProfile(ctx context.Context, id, name, area string) (*domain.Session, error) {
	return s.mutate(ctx, "WaitlistService.SubmitProfile", id, "waitlist.profile.accepted", func(_ context.Context, session *domain.Session) bool {
		return s.controller.SubmitProfile(session, name, area)
	})
}

func (s *WaitlistService) SubmitPhone(ctx context.Context, id, phone string) (*domain.Session, error) {
	return s.mutate(ctx, "WaitlistService.SubmitPhone", id, "waitlist.otp.sent", func(ctx context.Context, session *domain.Session) bool {
		return s.controller.SubmitPhone(ctx, session, phone)
	})
}

func (s *WaitlistService) Resend(ctx context.Context, id string) (*domain.Session, error) {
	return s.mutate(ctx, "WaitlistService.Resend", id, "waitlist.otp.resent", func(ctx context.Context, session *domain.Session) bool {
		return s.controller.Resend(ctx, session)
	})
}

// SubmitOTP starts verification. The returned session is Pending on success;
// use Await to observe the outcome.
func (s *WaitlistService) SubmitOTP(ctx context.Context, id, code string) (*domain.Session, error) {
	return s.mutate(ctx, "WaitlistService.SubmitOTP", id, "waitlist.otp.submitted", func(ctx context.Context, session *domain.Session) bool {
		return s.controller.SubmitOTP(ctx, session, code)
	})
}

func (s *WaitlistService) ChangeNumber(ctx context.Context, id string) (*domain.Session, error) {
	return s.mutate(ctx, "WaitlistService.ChangeNumber", id, "waitlist.number.changed", func(_ context.Context, session *domain.Session) bool {
		return s.controller.ChangeNumber(session)
	})
}

func (s *WaitlistService) Back(ctx context.Context, id string) (*domain.Session, error) {
	return s.mutate(ctx, "WaitlistService.Back", id, "waitlist.back", func(_ context.Context, session *domain.Session) bool {
		return s.controller.Back(session)
	})
}

// Finish discards the session.
func (s *WaitlistService) Finish(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "WaitlistService.Finish")
	defer span.End()

	unlock := s.locks.Lock(id)
	err := s.sessions.Delete(ctx, id)
	unlock()
	s.notify(id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete session: %w", err)
	}
	s.audit("waitlist.finished", "session_id", id)
	return nil
}

// Await blocks until the session has no verification in flight or ctx ends,
// then returns the latest session state.
func (s *WaitlistService) Await(ctx context.Context, id string) (*domain.Session, error) {
	ch := s.register(id)
	defer s.unregister(id, ch)

	session, err := s.Get(ctx, id)
	if err != nil || !session.Pending {
		return session, err
	}

	select {
	case <-ch:
	case <-ctx.Done():
	}
	return s.Get(context.WithoutCancel(ctx), id)
}

// Run consumes verification results until ctx ends or the channel closes.
// Confirmed signups are recorded off the dispatch loop; Run returns once
// those writes have finished.
func (s *WaitlistService) Run(ctx context.Context) error {
	var recorders errgroup.Group
	recorders.SetLimit(maxConcurrentRecords)
	defer func() { _ = recorders.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-s.results:
			if !ok {
				return nil
			}
			s.handleResult(ctx, r, &recorders)
		}
	}
}

func (s *WaitlistService) handleResult(ctx context.Context, r otp.Result, recorders *errgroup.Group) {
	ctx, span := s.startSpan(ctx, "WaitlistService.handleResult")
	defer span.End()
	span.SetAttributes(
		attribute.String("waitlist.session_id", r.Session),
		attribute.Int64("waitlist.attempt", r.Attempt),
		attribute.Int("otp.status_code", r.StatusCode),
	)

	unlock := s.locks.Lock(r.Session)
	session, err := s.sessions.Get(ctx, r.Session)
	if err != nil || session == nil {
		unlock()
		if err != nil {
			span.RecordError(err)
		}
		s.log().Warn("verification result for unknown session", zap.String("session_id", r.Session), zap.Error(err))
		return
	}
	if !s.controller.Apply(session, r) {
		unlock()
		s.log().Debug("stale verification result ignored",
			zap.String("session_id", r.Session),
			zap.Int64("attempt", r.Attempt),
			zap.Int64("current_attempt", session.Attempt),
		)
		return
	}
	err = s.sessions.Save(ctx, session, s.ttl)
	unlock()
	s.notify(r.Session)
	if err != nil {
		span.RecordError(err)
		s.log().Error("save session after verification", zap.String("session_id", r.Session), zap.Error(err))
		return
	}

	if session.Step != domain.StepConfirmed {
		s.audit("waitlist.otp.rejected", "session_id", session.ID, "status_code", r.StatusCode)
		return
	}
	s.audit("waitlist.confirmed", "session_id", session.ID, "area", session.Draft.Area)

	recordCtx := context.WithoutCancel(ctx)
	recorders.Go(func() error {
		ctx, cancel := context.WithTimeout(recordCtx, recordTimeout)
		defer cancel()
		s.record(ctx, session)
		return nil
	})
}

func (s *WaitlistService) record(ctx context.Context, session *domain.Session) {
	ctx, span := s.startSpan(ctx, "WaitlistService.record")
	defer span.End()

	rules := s.controller.Rules()
	entry, err := s.entries.Upsert(ctx, domain.WaitlistEntry{
		Name:        session.Draft.Name,
		Area:        session.Draft.Area,
		CountryCode: rules.CountryCode,
		Phone:       session.Draft.PhoneNumber,
		UserInfo:    session.UserInfo,
		VerifiedAt:  session.UpdatedAt,
	})
	if err != nil {
		span.RecordError(err)
		s.log().Error("record waitlist entry", zap.String("session_id", session.ID), zap.Error(err))
		return
	}

	err = s.publisher.Publish(ctx, events.Event{
		Type:        events.TypeWaitlistJoined,
		EntryID:     entry.ID,
		SessionID:   session.ID,
		Name:        entry.Name,
		Area:        entry.Area,
		CountryCode: entry.CountryCode,
		Phone:       entry.Phone,
		VerifiedAt:  entry.VerifiedAt,
	})
	if err != nil {
		span.RecordError(err)
		s.log().Error("publish waitlist event", zap.Int64("entry_id", entry.ID), zap.Error(err))
	}
}

func (s *WaitlistService) mutate(ctx context.Context, spanName, id, event string, fn func(context.Context, *domain.Session) bool) (*domain.Session, error) {
	ctx, span := s.startSpan(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("waitlist.session_id", id))

	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	ok := fn(ctx, session)
	if err := s.sessions.Save(ctx, session, s.ttl); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save session: %w", err)
	}
	span.SetAttributes(attribute.String("waitlist.step", session.Step.String()))
	if ok {
		s.audit(event, "session_id", session.ID, "step", session.Step.String())
	} else {
		span.RecordError(errors.New(session.Error))
	}
	return session, nil
}

func (s *WaitlistService) register(id string) chan struct{} {
	ch := make(chan struct{})
	s.waitMu.Lock()
	set, ok := s.waiters[id]
	if !ok {
		set = make(map[chan struct{}]struct{})
		s.waiters[id] = set
	}
	set[ch] = struct{}{}
	s.waitMu.Unlock()
	return ch
}

func (s *WaitlistService) unregister(id string, ch chan struct{}) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	set, ok := s.waiters[id]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(s.waiters, id)
	}
}

func (s *WaitlistService) notify(id string) {
	s.waitMu.Lock()
	set := s.waiters[id]
	delete(s.waiters, id)
	s.waitMu.Unlock()
	for ch := range set {
		close(ch)
	}
}

func (s *WaitlistService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *WaitlistService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *WaitlistService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
