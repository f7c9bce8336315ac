package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/domain/fingerprint"
	"github.com/ExamTrust/ProctorGate/pkg/domain/securityevent"
	"github.com/ExamTrust/ProctorGate/pkg/domain/session"
	"github.com/ExamTrust/ProctorGate/pkg/infra/abuse"
	"github.com/ExamTrust/ProctorGate/pkg/infra/admission"
	"github.com/ExamTrust/ProctorGate/pkg/infra/notify"
	"github.com/ExamTrust/ProctorGate/pkg/infra/portpool"
	"github.com/ExamTrust/ProctorGate/pkg/infra/prometheus"
	"github.com/ExamTrust/ProctorGate/pkg/risk"
	"github.com/sirupsen/logrus"
)

var (
	ErrRateLimited     = errors.New("request rate limited")
	ErrIdentityBanned  = errors.New("identity banned")
	ErrInvalidCategory = errors.New("invalid event category")
)

// Rejection reasons carried on a refused connection.
const (
	RejectUnknownPort = "unknown-port"
	RejectRateLimited = "rate-limited"
	RejectBanned      = "banned"
	RejectAutomation  = "automation-suspected"
)

// AbuseGuard is the slice of the limiter the registry depends on.
type AbuseGuard interface {
	CheckAndRecord(ctx context.Context, identity string, action abuse.Action) (abuse.Outcome, error)
}

// AdmissionScorer scores a client fingerprint for automation likelihood.
type AdmissionScorer interface {
	Score(fp *fingerprint.Client) admission.Result
}

// Admission is the outcome of routing one inbound connection.
type Admission struct {
	Accepted   bool
	SessionID  string
	Reason     string
	Score      float64
	Flags      []string
	RetryAfter time.Duration
}

type RegistryConfig struct {
	AdmissionThreshold float64
	IdleTimeout        time.Duration
	SweepInterval      time.Duration
}

func (c *RegistryConfig) withDefaults() {
	if c.AdmissionThreshold == 0 {
		c.AdmissionThreshold = 60
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
}

type workItem struct {
	event  *securityevent.Event
	result chan float64
	decay  bool
}

// Accumulator is the per-session risk surface the worker drives.
// Satisfied by *risk.Accumulator.
type Accumulator interface {
	Observe(ev *securityevent.Event) risk.Assessment
	Decay()
	Score() float64
	Tally() int
	Flags() []string
}

// AccumulatorFactory builds a fresh risk state per session.
type AccumulatorFactory func() Accumulator

// liveSession pairs a session with its dedicated endpoint and risk
// state. All mutation flows through the inbox so the worker is the
// only goroutine touching the accumulator.
type liveSession struct {
	mu       sync.RWMutex
	sess     *session.Session
	acc      Accumulator
	endpoint Endpoint
	inbox    chan workItem
	done     chan struct{}
	endOnce  sync.Once
	alerted  bool
}

// Registry owns the full session lifecycle: port binding, endpoint
// launch, connection admission, event ingestion, and teardown. One
// session exists per (attempt, subject) pair at any time.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*liveSession
	byAttempt map[string]*liveSession
	byPort    map[int]*liveSession

	pool       *portpool.Pool
	factory    EndpointFactory
	guard      AbuseGuard
	scorer     AdmissionScorer
	newAcc     AccumulatorFactory
	publisher  notify.EventPublisher
	writer     *notify.DurableWriter
	events     securityevent.Repository
	summaries  session.SummaryRepository
	liveMirror session.Repository
	logger     *logrus.Logger
	cfg        RegistryConfig
	alertLevel float64
	panicLevel float64
}

func NewRegistry(
	pool *portpool.Pool,
	factory EndpointFactory,
	guard AbuseGuard,
	scorer AdmissionScorer,
	newAcc AccumulatorFactory,
	publisher notify.EventPublisher,
	writer *notify.DurableWriter,
	events securityevent.Repository,
	summaries session.SummaryRepository,
	liveMirror session.Repository,
	logger *logrus.Logger,
	cfg RegistryConfig,
	alertThreshold, suspendThreshold float64,
) *Registry {
	cfg.withDefaults()
	if alertThreshold == 0 {
		alertThreshold = 30
	}
	if suspendThreshold == 0 {
		suspendThreshold = 85
	}
	return &Registry{
		sessions:   make(map[string]*liveSession),
		byAttempt:  make(map[string]*liveSession),
		byPort:     make(map[int]*liveSession),
		pool:       pool,
		factory:    factory,
		guard:      guard,
		scorer:     scorer,
		newAcc:     newAcc,
		publisher:  publisher,
		writer:     writer,
		events:     events,
		summaries:  summaries,
		liveMirror: liveMirror,
		logger:     logger,
		cfg:        cfg,
		alertLevel: alertThreshold,
		panicLevel: suspendThreshold,
	}
}

func attemptKey(attemptID, subjectID string) string {
	return attemptID + "|" + subjectID
}

// StartSession binds a port and launches a dedicated endpoint for the
// attempt. Calling it again for the same (attempt, subject) pair
// returns the existing session without binding anything new. The
// boolean reports whether a session was created by this call.
func (r *Registry) StartSession(ctx context.Context, attemptID, subjectID string) (*session.Session, bool, error) {
	if attemptID == "" || subjectID == "" {
		return nil, false, fmt.Errorf("attempt and subject identifiers are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ls, ok := r.byAttempt[attemptKey(attemptID, subjectID)]; ok {
		return ls.snapshot(), false, nil
	}

	port, err := r.pool.Acquire()
	if err != nil {
		return nil, false, err
	}

	sess := session.NewSession(attemptID, subjectID, port)

	endpoint, err := r.factory.Launch(sess)
	if err != nil {
		r.pool.Release(port)
		return nil, false, fmt.Errorf("failed to launch session endpoint: %w", err)
	}
	sess.EndpointURI = endpoint.URI()
	sess.State = session.StateActive

	ls := &liveSession{
		sess:     sess,
		acc:      r.newAcc(),
		endpoint: endpoint,
		inbox:    make(chan workItem, 256),
		done:     make(chan struct{}),
	}

	r.sessions[sess.ID] = ls
	r.byAttempt[attemptKey(attemptID, subjectID)] = ls
	r.byPort[port] = ls

	go r.work(ls)

	prometheus.ActiveSessions.Set(float64(len(r.sessions)))
	prometheus.PortsInUse.Set(float64(r.pool.InUse()))

	r.mirrorLive(ls)
	r.announce(notify.SessionFactsChannel, notify.SessionStartedEvent{
		SessionID:   sess.ID,
		AttemptID:   attemptID,
		SubjectID:   subjectID,
		Port:        port,
		EndpointURI: sess.EndpointURI,
		At:          sess.CreatedAt,
	})

	r.logger.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"attempt_id": attemptID,
		"port":       port,
	}).Info("session started")

	return ls.snapshot(), true, nil
}

// RouteConnection admits or refuses a client connecting to a
// session's endpoint port. Refusals are ordinary outcomes; the error
// return is reserved for internal faults.
func (r *Registry) RouteConnection(ctx context.Context, port int, identity string, fp *fingerprint.Client) (*Admission, error) {
	ls := r.lookupPort(port)
	if ls == nil {
		prometheus.ConnectionsRejected.WithLabelValues(RejectUnknownPort).Inc()
		return &Admission{Reason: RejectUnknownPort}, nil
	}

	outcome, err := r.guard.CheckAndRecord(ctx, identity, abuse.ActionConnect)
	if err != nil {
		return nil, err
	}
	switch outcome.Decision {
	case abuse.DecisionBanned:
		prometheus.ConnectionsRejected.WithLabelValues(RejectBanned).Inc()
		return &Admission{Reason: RejectBanned, RetryAfter: outcome.RetryAfter}, nil
	case abuse.DecisionRateLimited:
		prometheus.ConnectionsRejected.WithLabelValues(RejectRateLimited).Inc()
		return &Admission{Reason: RejectRateLimited, RetryAfter: outcome.RetryAfter}, nil
	}

	result := r.scorer.Score(fp)
	if result.Score >= r.cfg.AdmissionThreshold {
		prometheus.ConnectionsRejected.WithLabelValues(RejectAutomation).Inc()
		r.logger.WithFields(logrus.Fields{
			"identity": identity,
			"score":    result.Score,
			"flags":    result.Flags,
		}).Warn("connection refused on admission score")
		return &Admission{Reason: RejectAutomation, Score: result.Score, Flags: result.Flags}, nil
	}

	ls.mu.Lock()
	ls.sess.Touch()
	sessionID := ls.sess.ID
	ls.mu.Unlock()

	return &Admission{
		Accepted:  true,
		SessionID: sessionID,
		Score:     result.Score,
		Flags:     result.Flags,
	}, nil
}

// IngestEvent feeds one security event into the session's risk
// pipeline and returns the score after it lands. Events racing with
// session teardown get ErrSessionNotFound rather than a hang.
func (r *Registry) IngestEvent(ctx context.Context, sessionID, identity string, category securityevent.Category, payload securityevent.Payload, clientTimestamp int64) (float64, error) {
	if !category.Valid() {
		return 0, ErrInvalidCategory
	}

	r.mu.Lock()
	ls, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return 0, session.ErrSessionNotFound
	}

	outcome, err := r.guard.CheckAndRecord(ctx, identity, abuse.ActionEvent)
	if err != nil {
		return 0, err
	}
	switch outcome.Decision {
	case abuse.DecisionBanned:
		return 0, ErrIdentityBanned
	case abuse.DecisionRateLimited:
		return 0, ErrRateLimited
	}

	ev := securityevent.New(sessionID, category, payload, clientTimestamp)
	result := make(chan float64, 1)

	select {
	case ls.inbox <- workItem{event: ev, result: result}:
	case <-ls.done:
		return 0, session.ErrSessionNotFound
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	prometheus.EventsIngested.WithLabelValues(string(category)).Inc()

	select {
	case score := <-result:
		return score, nil
	case <-ls.done:
		return 0, session.ErrSessionNotFound
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// EndSession tears a session down: worker stopped, endpoint closed,
// port released exactly once, summary flushed. Ending an unknown or
// already-ended session is a no-op.
func (r *Registry) EndSession(ctx context.Context, sessionID, reason string) error {
	r.mu.Lock()
	ls, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
		delete(r.byAttempt, attemptKey(ls.sess.AttemptID, ls.sess.SubjectID))
		delete(r.byPort, ls.sess.Port)
		prometheus.ActiveSessions.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	ls.endOnce.Do(func() {
		close(ls.done)

		ls.mu.Lock()
		ls.sess.State = session.StateTerminated
		summary := session.Summary{
			SessionID:      ls.sess.ID,
			AttemptID:      ls.sess.AttemptID,
			SubjectID:      ls.sess.SubjectID,
			RiskScore:      ls.acc.Score(),
			ViolationTally: ls.acc.Tally(),
			Flags:          ls.acc.Flags(),
			Reason:         reason,
			StartedAt:      ls.sess.CreatedAt,
			EndedAt:        time.Now(),
		}
		port := ls.sess.Port
		endpoint := ls.endpoint
		ls.mu.Unlock()

		r.pool.Release(port)
		prometheus.PortsInUse.Set(float64(r.pool.InUse()))
		prometheus.SessionsEnded.WithLabelValues(reason).Inc()

		go func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := endpoint.Shutdown(shutdownCtx); err != nil {
				r.logger.WithError(err).WithField("session_id", sessionID).Warn("endpoint shutdown failed")
			}
		}()

		if r.writer != nil {
			r.writer.Submit("session_summary", func(ctx context.Context) error {
				return r.summaries.Save(ctx, &summary)
			})
			if r.liveMirror != nil {
				r.writer.Submit("session_mirror_delete", func(ctx context.Context) error {
					return r.liveMirror.Delete(ctx, sessionID)
				})
			}
		}

		r.announce(notify.SessionFactsChannel, notify.SessionEndedEvent{
			SessionID: sessionID,
			Summary:   summary,
			At:        summary.EndedAt,
		})

		r.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"reason":     reason,
			"risk_score": summary.RiskScore,
		}).Info("session ended")
	})

	return nil
}

// SweepIdle warns sessions idle for half the timeout and ends those
// past the full timeout, then applies one decay tick to every survivor.
func (r *Registry) SweepIdle(ctx context.Context) {
	now := time.Now()

	r.mu.Lock()
	candidates := make([]*liveSession, 0, len(r.sessions))
	for _, ls := range r.sessions {
		candidates = append(candidates, ls)
	}
	r.mu.Unlock()

	for _, ls := range candidates {
		ls.mu.Lock()
		idle := now.Sub(ls.sess.LastActivity)
		id := ls.sess.ID
		if idle < r.cfg.IdleTimeout && idle >= r.cfg.IdleTimeout/2 && ls.sess.State == session.StateActive {
			ls.sess.State = session.StateIdleWarned
			r.logger.WithField("session_id", id).Info("session idle-warned")
		}
		expired := idle >= r.cfg.IdleTimeout
		ls.mu.Unlock()

		if expired {
			if err := r.EndSession(ctx, id, session.EndReasonIdleTimeout); err != nil {
				r.logger.WithError(err).WithField("session_id", id).Error("failed to end idle session")
			}
			continue
		}

		select {
		case ls.inbox <- workItem{decay: true}:
		default:
		}
	}
}

// RunMaintenance drives the sweep on the configured cadence until the
// context is cancelled.
func (r *Registry) RunMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.SweepIdle(ctx)
		}
	}
}

// ActiveSessions returns a stable snapshot ordered by creation time.
func (r *Registry) ActiveSessions(offset, limit int) []*session.Session {
	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, ls := range r.sessions {
		all = append(all, ls.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// Shutdown ends every live session. Safe to call more than once.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.EndSession(ctx, id, session.EndReasonShutdown); err != nil {
			r.logger.WithError(err).WithField("session_id", id).Error("failed to end session on shutdown")
		}
	}
}

func (r *Registry) lookupPort(port int) *liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byPort[port]
}

// work is the per-session event loop. It is the sole writer of the
// accumulator and of the session's risk profile. Once done is closed
// the loop exits without touching queued inbox items, so a terminated
// session's state never moves after its summary was built.
func (r *Registry) work(ls *liveSession) {
	for {
		select {
		case <-ls.done:
			return
		default:
		}

		select {
		case <-ls.done:
			return
		case item := <-ls.inbox:
			if item.decay {
				ls.mu.Lock()
				if !ls.sess.Terminated() {
					ls.acc.Decay()
					ls.sess.Risk.Score = ls.acc.Score()
				}
				ls.mu.Unlock()
				continue
			}
			score, ok := r.process(ls, item.event)
			if ok && item.result != nil {
				item.result <- score
			}
		}
	}
}

// process returns the score after the event landed, and false when the
// session terminated before the event could be applied.
func (r *Registry) process(ls *liveSession, ev *securityevent.Event) (float64, bool) {
	ls.mu.Lock()
	if ls.sess.Terminated() {
		ls.mu.Unlock()
		return 0, false
	}
	assessment := ls.acc.Observe(ev)
	ls.sess.Touch()
	ls.sess.Risk.Score = assessment.Score
	ls.sess.Risk.Flags = ls.acc.Flags()
	ls.sess.Risk.ViolationTally = ls.acc.Tally()
	for _, f := range assessment.Flags {
		ls.sess.Violations[f]++
	}
	sessionID := ls.sess.ID
	crossedAlert := !ls.alerted && assessment.Score >= r.alertLevel
	if crossedAlert {
		ls.alerted = true
	}
	crossedSuspend := assessment.Score >= r.panicLevel
	ls.mu.Unlock()

	if r.writer != nil && r.events != nil {
		persisted := *ev
		r.writer.Submit("security_event", func(ctx context.Context) error {
			return r.events.Save(ctx, &persisted)
		})
	}

	if crossedAlert {
		prometheus.AlertsRaised.Inc()
		flag := "risk-threshold"
		if len(assessment.Flags) > 0 {
			flag = assessment.Flags[0]
		}
		r.announce(notify.AlertFactsChannel, notify.SecurityAlertEvent{
			SessionID: sessionID,
			Flag:      flag,
			RiskScore: assessment.Score,
			At:        time.Now(),
		})
		r.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"risk_score": assessment.Score,
			"flags":      assessment.Flags,
		}).Warn("security alert raised")
		r.mirrorLive(ls)
	}

	if crossedSuspend {
		if err := r.EndSession(context.Background(), sessionID, session.EndReasonAutoSuspend); err != nil {
			r.logger.WithError(err).WithField("session_id", sessionID).Error("failed to auto-suspend session")
		}
	}

	return assessment.Score, true
}

func (r *Registry) mirrorLive(ls *liveSession) {
	if r.writer == nil || r.liveMirror == nil {
		return
	}
	snapshot := ls.snapshot()
	r.writer.Submit("session_mirror", func(ctx context.Context) error {
		return r.liveMirror.Save(ctx, snapshot)
	})
}

func (r *Registry) announce(channel notify.Channel, ev notify.Event) {
	if r.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.publisher.Publish(ctx, channel, ev); err != nil {
		r.logger.WithError(err).Warn("failed to publish session fact")
	}
}

func (ls *liveSession) snapshot() *session.Session {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	cp := *ls.sess
	cp.Violations = make(map[string]int, len(ls.sess.Violations))
	for k, v := range ls.sess.Violations {
		cp.Violations[k] = v
	}
	cp.Risk.Flags = append([]string(nil), ls.sess.Risk.Flags...)
	return &cp
}
