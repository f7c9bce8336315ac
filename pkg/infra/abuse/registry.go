package abuse

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/cache"
	"github.com/ExamTrust/ProctorGate/pkg/common"
	"github.com/ExamTrust/ProctorGate/pkg/domain/ban"
	"github.com/ExamTrust/ProctorGate/pkg/infra/notify"
	"github.com/ExamTrust/ProctorGate/pkg/infra/prometheus"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RegistryConfig carries the escalation schedule. Durations index by
// ban level; LevelPermanent has no duration because it never expires.
type RegistryConfig struct {
	ShortBan        time.Duration
	MediumBan       time.Duration
	LongBan         time.Duration
	ViolationMemory time.Duration
}

func (c *RegistryConfig) withDefaults() {
	if c.ShortBan == 0 {
		c.ShortBan = 5 * time.Minute
	}
	if c.MediumBan == 0 {
		c.MediumBan = time.Hour
	}
	if c.LongBan == 0 {
		c.LongBan = 24 * time.Hour
	}
	if c.ViolationMemory == 0 {
		c.ViolationMemory = 7 * 24 * time.Hour
	}
}

func (c *RegistryConfig) durationFor(level ban.Level) time.Duration {
	switch level {
	case ban.LevelShort:
		return c.ShortBan
	case ban.LevelMedium:
		return c.MediumBan
	case ban.LevelLong:
		return c.LongBan
	}
	return 0
}

// BanRegistry tracks escalating bans per network identity. The live
// enforcement state lives in redis with TTL expiry; the violation
// count is kept on a longer TTL so escalation resumes from the prior
// peak instead of restarting after a ban lapses.
type BanRegistry struct {
	redis        *redis.Client
	repo         ban.Repository
	writer       *notify.DurableWriter
	publisher    notify.EventPublisher
	logger       *logrus.Logger
	cfg          RegistryConfig
	localBans    *common.TTLMap
	timeProvider func() time.Time
}

type BanRegistryOpts struct {
	TimeProvider func() time.Time

	// LocalBans keeps recently seen active bans in process so the hot
	// connection path does not round-trip to redis on every check. The
	// map's TTL bounds how stale an enforcement decision can be.
	LocalBans *common.TTLMap
}

func NewBanRegistry(
	redisClient *redis.Client,
	repo ban.Repository,
	writer *notify.DurableWriter,
	publisher notify.EventPublisher,
	logger *logrus.Logger,
	cfg RegistryConfig,
	opts *BanRegistryOpts,
) *BanRegistry {
	cfg.withDefaults()

	timeProvider := time.Now
	var localBans *common.TTLMap
	if opts != nil {
		if opts.TimeProvider != nil {
			timeProvider = opts.TimeProvider
		}
		localBans = opts.LocalBans
	}

	return &BanRegistry{
		redis:        redisClient,
		repo:         repo,
		writer:       writer,
		publisher:    publisher,
		logger:       logger,
		cfg:          cfg,
		localBans:    localBans,
		timeProvider: timeProvider,
	}
}

// ActiveBan returns the current ban record for an identity, or nil
// when the identity is clear.
func (r *BanRegistry) ActiveBan(ctx context.Context, identity string) (*ban.Record, error) {
	if r.localBans != nil {
		if cached, ok := r.localBans.Get(identity); ok {
			if record, ok := cached.(*ban.Record); ok && record.Active(r.timeProvider()) {
				cp := *record
				return &cp, nil
			}
			r.localBans.Delete(identity)
		}
	}

	key := fmt.Sprintf(cache.BanKeyPattern, identity)

	levelStr, err := r.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ban state: %w", err)
	}

	levelInt, err := strconv.Atoi(levelStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt ban state for %s: %w", identity, err)
	}
	level := ban.Level(levelInt)

	record := &ban.Record{
		Identity: identity,
		Level:    level,
	}
	if level != ban.LevelPermanent {
		ttl, err := r.redis.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read ban expiry: %w", err)
		}
		if ttl > 0 {
			expiry := r.timeProvider().Add(ttl)
			record.ExpiresAt = &expiry
		}
	}
	r.cacheLocally(record)
	return record, nil
}

// RecordViolation advances the identity's ban state by exactly one
// level and applies the new ban. The cumulative violation count is
// preserved across expired bans, which is what makes escalation
// progressively harsher rather than cyclic.
func (r *BanRegistry) RecordViolation(ctx context.Context, identity string) (*ban.Record, error) {
	now := r.timeProvider()
	countKey := fmt.Sprintf(cache.BanCountKeyPattern, identity)

	count, err := r.redis.Incr(ctx, countKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to record violation: %w", err)
	}
	if err := r.redis.Expire(ctx, countKey, r.cfg.ViolationMemory).Err(); err != nil {
		r.logger.WithError(err).WithField("identity", identity).Warn("failed to refresh violation memory")
	}

	level := ban.LevelForViolations(int(count))
	duration := r.cfg.durationFor(level)

	key := fmt.Sprintf(cache.BanKeyPattern, identity)
	if err := r.redis.Set(ctx, key, int(level), duration).Err(); err != nil {
		return nil, fmt.Errorf("failed to apply ban: %w", err)
	}

	record := &ban.Record{
		Identity:       identity,
		Level:          level,
		ViolationCount: int(count),
		LastViolation:  now,
	}
	if level != ban.LevelPermanent {
		expiry := now.Add(duration)
		record.ExpiresAt = &expiry
	}

	prometheus.BansApplied.WithLabelValues(level.String()).Inc()
	r.logger.WithFields(logrus.Fields{
		"identity":   identity,
		"level":      level.String(),
		"violations": count,
	}).Warn("identity banned")

	r.cacheLocally(record)
	r.mirrorAndAnnounce(record)

	return record, nil
}

// Lift removes an active ban administratively. The violation count is
// left intact.
func (r *BanRegistry) Lift(ctx context.Context, identity string) error {
	key := fmt.Sprintf(cache.BanKeyPattern, identity)
	if err := r.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to lift ban: %w", err)
	}
	if r.localBans != nil {
		r.localBans.Delete(identity)
	}

	if r.writer != nil && r.repo != nil {
		r.writer.Submit("ban_delete", func(ctx context.Context) error {
			return r.repo.Delete(ctx, identity)
		})
	}
	if r.publisher != nil {
		ev := notify.ClientUnbannedEvent{Identity: identity, At: r.timeProvider()}
		if err := r.publisher.Publish(ctx, notify.BanFactsChannel, ev); err != nil {
			r.logger.WithError(err).Warn("failed to publish unban fact")
		}
	}
	return nil
}

// List serves the read-only query surface from the durable mirror.
func (r *BanRegistry) List(ctx context.Context, offset, limit int) ([]*ban.Record, error) {
	if r.repo == nil {
		return nil, nil
	}
	return r.repo.List(ctx, offset, limit)
}

func (r *BanRegistry) cacheLocally(record *ban.Record) {
	if r.localBans == nil || !record.Active(r.timeProvider()) {
		return
	}
	cp := *record
	r.localBans.Set(record.Identity, &cp)
}

func (r *BanRegistry) mirrorAndAnnounce(record *ban.Record) {
	if r.writer != nil && r.repo != nil {
		mirrored := *record
		r.writer.Submit("ban_upsert", func(ctx context.Context) error {
			return r.repo.Upsert(ctx, &mirrored)
		})
	}
	if r.publisher != nil {
		ev := notify.ClientBannedEvent{
			Identity:  record.Identity,
			Level:     record.Level.String(),
			ExpiresAt: record.ExpiresAt,
			At:        record.LastViolation,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.publisher.Publish(ctx, notify.BanFactsChannel, ev); err != nil {
			r.logger.WithError(err).Warn("failed to publish ban fact")
		}
	}
}
