package abuse_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/domain/ban"
	"github.com/ExamTrust/ProctorGate/pkg/infra/abuse"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, whitelist []string) (*abuse.Limiter, redismock.ClientMock, uuid.UUID) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	uid := uuid.New()

	bans := abuse.NewBanRegistry(client, nil, nil, nil, logrus.New(), abuse.RegistryConfig{
		ShortBan:        5 * time.Minute,
		MediumBan:       time.Hour,
		LongBan:         24 * time.Hour,
		ViolationMemory: 7 * 24 * time.Hour,
	}, &abuse.BanRegistryOpts{
		TimeProvider: func() time.Time { return fixedNow },
	})

	limiter := abuse.NewLimiter(client, bans, logrus.New(), abuse.LimiterConfig{
		ConnectionLimit:  10,
		ConnectionWindow: time.Minute,
		EventLimit:       600,
		EventWindow:      time.Minute,
		Whitelist:        whitelist,
	}, &abuse.LimiterOpts{
		TimeProvider: func() time.Time { return fixedNow },
		UuidProvider: func() uuid.UUID { return uid },
	})

	return limiter, mock, uid
}

func TestCheckAndRecord_WhitelistedIdentityBypasses(t *testing.T) {
	limiter, mock, _ := newTestLimiter(t, []string{"127.0.0.1", "10.0.0.0/8"})

	outcome, err := limiter.CheckAndRecord(context.Background(), "127.0.0.1", abuse.ActionConnect)
	require.NoError(t, err)
	assert.Equal(t, abuse.DecisionAllowed, outcome.Decision)

	outcome, err = limiter.CheckAndRecord(context.Background(), "10.42.7.9", abuse.ActionEvent)
	require.NoError(t, err)
	assert.Equal(t, abuse.DecisionAllowed, outcome.Decision)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndRecord_UnderLimitRecordsInWindow(t *testing.T) {
	limiter, mock, uid := newTestLimiter(t, nil)

	key := "abuse:conn:1.2.3.4"
	windowStart := fixedNow.Add(-time.Minute).Unix()

	mock.ExpectGet("ban:1.2.3.4").RedisNil()
	mock.ExpectZCount(key,
		strconv.FormatInt(windowStart, 10),
		strconv.FormatInt(fixedNow.Unix(), 10)).SetVal(5)
	mock.ExpectTxPipeline()
	mock.ExpectZRemRangeByScore(key, "0", strconv.FormatInt(windowStart, 10)).SetVal(1)
	mock.ExpectZAdd(key, &redis.Z{
		Score:  float64(fixedNow.Unix()),
		Member: strconv.FormatInt(fixedNow.Unix(), 10) + ":" + uid.String(),
	}).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectTxPipelineExec()

	outcome, err := limiter.CheckAndRecord(context.Background(), "1.2.3.4", abuse.ActionConnect)

	require.NoError(t, err)
	assert.Equal(t, abuse.DecisionAllowed, outcome.Decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndRecord_BreachRecordsViolation(t *testing.T) {
	limiter, mock, _ := newTestLimiter(t, nil)

	key := "abuse:conn:1.2.3.4"
	windowStart := fixedNow.Add(-time.Minute).Unix()

	mock.ExpectGet("ban:1.2.3.4").RedisNil()
	mock.ExpectZCount(key,
		strconv.FormatInt(windowStart, 10),
		strconv.FormatInt(fixedNow.Unix(), 10)).SetVal(10)
	mock.ExpectIncr("ban:1.2.3.4:violations").SetVal(1)
	mock.ExpectExpire("ban:1.2.3.4:violations", 7*24*time.Hour).SetVal(true)
	mock.ExpectSet("ban:1.2.3.4", 1, 5*time.Minute).SetVal("OK")

	outcome, err := limiter.CheckAndRecord(context.Background(), "1.2.3.4", abuse.ActionConnect)

	require.NoError(t, err)
	assert.Equal(t, abuse.DecisionRateLimited, outcome.Decision)
	assert.Equal(t, ban.LevelShort, outcome.Level)
	require.NotNil(t, outcome.ExpiresAt)
	assert.Equal(t, fixedNow.Add(5*time.Minute), *outcome.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndRecord_ActiveBanShortCircuits(t *testing.T) {
	limiter, mock, _ := newTestLimiter(t, nil)

	mock.ExpectGet("ban:1.2.3.4").SetVal("3")
	mock.ExpectTTL("ban:1.2.3.4").SetVal(12 * time.Hour)

	outcome, err := limiter.CheckAndRecord(context.Background(), "1.2.3.4", abuse.ActionEvent)

	require.NoError(t, err)
	assert.Equal(t, abuse.DecisionBanned, outcome.Decision)
	assert.Equal(t, ban.LevelLong, outcome.Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndRecord_EventActionUsesEventWindow(t *testing.T) {
	limiter, mock, uid := newTestLimiter(t, nil)

	key := "abuse:events:1.2.3.4"
	windowStart := fixedNow.Add(-time.Minute).Unix()

	mock.ExpectGet("ban:1.2.3.4").RedisNil()
	mock.ExpectZCount(key,
		strconv.FormatInt(windowStart, 10),
		strconv.FormatInt(fixedNow.Unix(), 10)).SetVal(17)
	mock.ExpectTxPipeline()
	mock.ExpectZRemRangeByScore(key, "0", strconv.FormatInt(windowStart, 10)).SetVal(1)
	mock.ExpectZAdd(key, &redis.Z{
		Score:  float64(fixedNow.Unix()),
		Member: strconv.FormatInt(fixedNow.Unix(), 10) + ":" + uid.String(),
	}).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectTxPipelineExec()

	outcome, err := limiter.CheckAndRecord(context.Background(), "1.2.3.4", abuse.ActionEvent)

	require.NoError(t, err)
	assert.Equal(t, abuse.DecisionAllowed, outcome.Decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAndRecord_RedisOutageFailsOpen(t *testing.T) {
	limiter, mock, _ := newTestLimiter(t, nil)

	mock.ExpectGet("ban:1.2.3.4").SetErr(assert.AnError)

	outcome, err := limiter.CheckAndRecord(context.Background(), "1.2.3.4", abuse.ActionConnect)

	require.NoError(t, err)
	assert.Equal(t, abuse.DecisionAllowed, outcome.Decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}
