package abuse

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/cache"
	"github.com/ExamTrust/ProctorGate/pkg/domain/ban"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Action string

const (
	ActionConnect Action = "connect"
	ActionEvent   Action = "event"
)

type Decision int

const (
	DecisionAllowed Decision = iota
	DecisionRateLimited
	DecisionBanned
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionRateLimited:
		return "rate-limited"
	case DecisionBanned:
		return "banned"
	}
	return "unknown"
}

// Outcome is a normal control-flow result, never an application
// fault. RetryAfter is only meaningful for non-permanent states.
type Outcome struct {
	Decision   Decision
	Level      ban.Level
	ExpiresAt  *time.Time
	RetryAfter time.Duration
}

var allowed = Outcome{Decision: DecisionAllowed}

type LimiterConfig struct {
	ConnectionLimit  int
	ConnectionWindow time.Duration
	EventLimit       int
	EventWindow      time.Duration
	Whitelist        []string
}

func (c *LimiterConfig) withDefaults() {
	if c.ConnectionLimit == 0 {
		c.ConnectionLimit = 10
	}
	if c.ConnectionWindow == 0 {
		c.ConnectionWindow = time.Minute
	}
	if c.EventLimit == 0 {
		c.EventLimit = 600
	}
	if c.EventWindow == 0 {
		c.EventWindow = time.Minute
	}
}

// Limiter gates all inbound traffic per network identity. Two
// independent sliding windows are kept per identity: connection
// attempts and event volume. Breaching either is a violation that the
// ban registry escalates.
type Limiter struct {
	redis        *redis.Client
	bans         *BanRegistry
	logger       *logrus.Logger
	cfg          LimiterConfig
	whitelist    []*net.IPNet
	exact        map[string]struct{}
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

type LimiterOpts struct {
	TimeProvider func() time.Time
	UuidProvider func() uuid.UUID
}

func NewLimiter(
	redisClient *redis.Client,
	bans *BanRegistry,
	logger *logrus.Logger,
	cfg LimiterConfig,
	opts *LimiterOpts,
) *Limiter {
	cfg.withDefaults()

	timeProvider := time.Now
	uuidProvider := uuid.New
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	if opts != nil && opts.UuidProvider != nil {
		uuidProvider = opts.UuidProvider
	}

	l := &Limiter{
		redis:        redisClient,
		bans:         bans,
		logger:       logger,
		cfg:          cfg,
		exact:        make(map[string]struct{}),
		timeProvider: timeProvider,
		uuidProvider: uuidProvider,
	}

	for _, entry := range cfg.Whitelist {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			l.whitelist = append(l.whitelist, network)
			continue
		}
		l.exact[entry] = struct{}{}
	}

	return l
}

// CheckAndRecord applies the ban check and the sliding window for one
// action. Whitelisted identities bypass everything. A redis outage
// fails open with a warning so client traffic is never hard-failed by
// infrastructure trouble.
func (l *Limiter) CheckAndRecord(ctx context.Context, identity string, action Action) (Outcome, error) {
	if l.whitelisted(identity) {
		return allowed, nil
	}

	active, err := l.bans.ActiveBan(ctx, identity)
	if err != nil {
		l.logger.WithError(err).WithField("identity", identity).Warn("ban lookup failed, failing open")
		return allowed, nil
	}
	if active != nil && active.Active(l.timeProvider()) {
		return l.bannedOutcome(active), nil
	}

	limit, window, key := l.windowFor(identity, action)

	now := l.timeProvider()
	windowStart := now.Add(-window).Unix()

	count, err := l.redis.ZCount(ctx, key,
		strconv.FormatInt(windowStart, 10),
		strconv.FormatInt(now.Unix(), 10)).Result()
	if err != nil {
		l.logger.WithError(err).WithField("identity", identity).Warn("rate window lookup failed, failing open")
		return allowed, nil
	}

	if count >= int64(limit) {
		record, err := l.bans.RecordViolation(ctx, identity)
		if err != nil {
			l.logger.WithError(err).WithField("identity", identity).Error("failed to escalate ban")
			return Outcome{Decision: DecisionRateLimited, RetryAfter: window}, nil
		}
		out := Outcome{
			Decision:   DecisionRateLimited,
			Level:      record.Level,
			ExpiresAt:  record.ExpiresAt,
			RetryAfter: window,
		}
		return out, nil
	}

	member := fmt.Sprintf("%d:%s", now.Unix(), l.uuidProvider().String())
	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: member,
	})
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.WithError(err).WithField("identity", identity).Warn("failed to record in rate window")
	}

	return allowed, nil
}

func (l *Limiter) windowFor(identity string, action Action) (int, time.Duration, string) {
	if action == ActionEvent {
		return l.cfg.EventLimit, l.cfg.EventWindow, fmt.Sprintf(cache.EventWindowKeyPattern, identity)
	}
	return l.cfg.ConnectionLimit, l.cfg.ConnectionWindow, fmt.Sprintf(cache.ConnWindowKeyPattern, identity)
}

func (l *Limiter) bannedOutcome(record *ban.Record) Outcome {
	out := Outcome{
		Decision:  DecisionBanned,
		Level:     record.Level,
		ExpiresAt: record.ExpiresAt,
	}
	if record.ExpiresAt != nil {
		out.RetryAfter = time.Until(*record.ExpiresAt)
	}
	return out
}

func (l *Limiter) whitelisted(identity string) bool {
	if _, ok := l.exact[identity]; ok {
		return true
	}
	ip := net.ParseIP(identity)
	if ip == nil {
		return false
	}
	for _, network := range l.whitelist {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
