package abuse_test

import (
	"context"
	"testing"
	"time"

	"github.com/ExamTrust/ProctorGate/pkg/common"
	"github.com/ExamTrust/ProctorGate/pkg/domain/ban"
	"github.com/ExamTrust/ProctorGate/pkg/infra/abuse"
	"github.com/go-redis/redismock/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1756500000, 0)

func newTestRegistry(t *testing.T) (*abuse.BanRegistry, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	registry := abuse.NewBanRegistry(client, nil, nil, nil, logrus.New(), abuse.RegistryConfig{
		ShortBan:        5 * time.Minute,
		MediumBan:       time.Hour,
		LongBan:         24 * time.Hour,
		ViolationMemory: 7 * 24 * time.Hour,
	}, &abuse.BanRegistryOpts{
		TimeProvider: func() time.Time { return fixedNow },
	})
	return registry, mock
}

func TestActiveBan_ClearIdentity(t *testing.T) {
	registry, mock := newTestRegistry(t)
	mock.ExpectGet("ban:1.2.3.4").RedisNil()

	record, err := registry.ActiveBan(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveBan_TimedBanCarriesExpiry(t *testing.T) {
	registry, mock := newTestRegistry(t)
	mock.ExpectGet("ban:1.2.3.4").SetVal("2")
	mock.ExpectTTL("ban:1.2.3.4").SetVal(30 * time.Minute)

	record, err := registry.ActiveBan(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, ban.LevelMedium, record.Level)
	require.NotNil(t, record.ExpiresAt)
	assert.Equal(t, fixedNow.Add(30*time.Minute), *record.ExpiresAt)
	assert.True(t, record.Active(fixedNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveBan_PermanentBanNeverExpires(t *testing.T) {
	registry, mock := newTestRegistry(t)
	mock.ExpectGet("ban:1.2.3.4").SetVal("4")

	record, err := registry.ActiveBan(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, ban.LevelPermanent, record.Level)
	assert.Nil(t, record.ExpiresAt)
	assert.True(t, record.Active(fixedNow.Add(10*365*24*time.Hour)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordViolation_FirstViolationIsShortBan(t *testing.T) {
	registry, mock := newTestRegistry(t)
	mock.ExpectIncr("ban:1.2.3.4:violations").SetVal(1)
	mock.ExpectExpire("ban:1.2.3.4:violations", 7*24*time.Hour).SetVal(true)
	mock.ExpectSet("ban:1.2.3.4", 1, 5*time.Minute).SetVal("OK")

	record, err := registry.RecordViolation(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	assert.Equal(t, ban.LevelShort, record.Level)
	assert.Equal(t, 1, record.ViolationCount)
	require.NotNil(t, record.ExpiresAt)
	assert.Equal(t, fixedNow.Add(5*time.Minute), *record.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The violation count lives on its own longer-TTL key, so a violation
// recorded after earlier bans have lapsed still escalates from the
// historical count instead of restarting at short.
func TestRecordViolation_EscalatesAcrossExpiredBans(t *testing.T) {
	registry, mock := newTestRegistry(t)
	mock.ExpectIncr("ban:1.2.3.4:violations").SetVal(3)
	mock.ExpectExpire("ban:1.2.3.4:violations", 7*24*time.Hour).SetVal(true)
	mock.ExpectSet("ban:1.2.3.4", 3, 24*time.Hour).SetVal("OK")

	record, err := registry.RecordViolation(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	assert.Equal(t, ban.LevelLong, record.Level)
	assert.Equal(t, 3, record.ViolationCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Four episodes whose bans each lapsed leave the identity at long,
// not permanent; the ladder only goes terminal on the fifth.
func TestRecordViolation_FourthViolationRepeatsLongBan(t *testing.T) {
	registry, mock := newTestRegistry(t)
	mock.ExpectIncr("ban:1.2.3.4:violations").SetVal(4)
	mock.ExpectExpire("ban:1.2.3.4:violations", 7*24*time.Hour).SetVal(true)
	mock.ExpectSet("ban:1.2.3.4", 3, 24*time.Hour).SetVal("OK")

	record, err := registry.RecordViolation(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	assert.Equal(t, ban.LevelLong, record.Level)
	assert.Equal(t, 4, record.ViolationCount)
	require.NotNil(t, record.ExpiresAt)
	assert.Equal(t, fixedNow.Add(24*time.Hour), *record.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordViolation_FifthViolationIsPermanent(t *testing.T) {
	registry, mock := newTestRegistry(t)
	mock.ExpectIncr("ban:1.2.3.4:violations").SetVal(5)
	mock.ExpectExpire("ban:1.2.3.4:violations", 7*24*time.Hour).SetVal(true)
	mock.ExpectSet("ban:1.2.3.4", 4, 0).SetVal("OK")

	record, err := registry.RecordViolation(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	assert.Equal(t, ban.LevelPermanent, record.Level)
	assert.Nil(t, record.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newLocallyCachedRegistry(t *testing.T) (*abuse.BanRegistry, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	registry := abuse.NewBanRegistry(client, nil, nil, nil, logrus.New(), abuse.RegistryConfig{
		ShortBan:        5 * time.Minute,
		MediumBan:       time.Hour,
		LongBan:         24 * time.Hour,
		ViolationMemory: 7 * 24 * time.Hour,
	}, &abuse.BanRegistryOpts{
		TimeProvider: func() time.Time { return fixedNow },
		LocalBans:    common.NewTTLMap(time.Minute),
	})
	return registry, mock
}

func TestActiveBan_LocalCacheSkipsRedisOnRepeatLookups(t *testing.T) {
	registry, mock := newLocallyCachedRegistry(t)
	mock.ExpectGet("ban:1.2.3.4").SetVal("2")
	mock.ExpectTTL("ban:1.2.3.4").SetVal(30 * time.Minute)

	first, err := registry.ActiveBan(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, first)

	// No further expectations queued: the second lookup must be served
	// from the in-process map.
	second, err := registry.ActiveBan(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLift_InvalidatesLocalCache(t *testing.T) {
	registry, mock := newLocallyCachedRegistry(t)
	mock.ExpectGet("ban:1.2.3.4").SetVal("2")
	mock.ExpectTTL("ban:1.2.3.4").SetVal(30 * time.Minute)
	mock.ExpectDel("ban:1.2.3.4").SetVal(1)
	mock.ExpectGet("ban:1.2.3.4").RedisNil()

	_, err := registry.ActiveBan(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.NoError(t, registry.Lift(context.Background(), "1.2.3.4"))

	record, err := registry.ActiveBan(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLift_RemovesLiveBan(t *testing.T) {
	registry, mock := newTestRegistry(t)
	mock.ExpectDel("ban:1.2.3.4").SetVal(1)

	err := registry.Lift(context.Background(), "1.2.3.4")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLevelForViolations_Mapping(t *testing.T) {
	assert.Equal(t, ban.LevelNone, ban.LevelForViolations(0))
	assert.Equal(t, ban.LevelShort, ban.LevelForViolations(1))
	assert.Equal(t, ban.LevelMedium, ban.LevelForViolations(2))
	assert.Equal(t, ban.LevelLong, ban.LevelForViolations(3))
	assert.Equal(t, ban.LevelLong, ban.LevelForViolations(4))
	assert.Equal(t, ban.LevelPermanent, ban.LevelForViolations(5))
	assert.Equal(t, ban.LevelPermanent, ban.LevelForViolations(17))
}
