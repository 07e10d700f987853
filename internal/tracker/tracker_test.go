package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oracle-alpha/oracle-ledger/internal/dao"
	"github.com/oracle-alpha/oracle-ledger/internal/ledger"
	"github.com/oracle-alpha/oracle-ledger/internal/models"
)

const testAuthority = "0xfeed0001"

func setupTracker(t *testing.T) (*Tracker, *ledger.Ledger) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OracleState{}, &models.OracleSignal{}))
	dao.InitDAO(db)

	ldg := ledger.New()
	require.NoError(t, ldg.Bootstrap(testAuthority))

	trk, err := NewTracker(ldg, nil, time.Minute, 4)
	require.NoError(t, err)
	t.Cleanup(trk.Stop)
	return trk, ldg
}

func publish(t *testing.T, ldg *ledger.Ledger, token string, entry uint64) *models.OracleSignal {
	t.Helper()

	sig, err := ldg.Publish(testAuthority, ledger.PublishParams{
		Token:      token,
		Symbol:     "PEPE",
		Score:      60,
		EntryPrice: entry,
	})
	require.NoError(t, err)
	return sig
}

func athOf(t *testing.T, id uint64) uint64 {
	t.Helper()

	sig, err := dao.Signal().Get(id)
	require.NoError(t, err)
	return sig.ATHPrice
}

func TestTracker_RebuildIndex(t *testing.T) {
	trk, ldg := setupTracker(t)

	a := publish(t, ldg, "0xaaa", 1000)
	b := publish(t, ldg, "0xaaa", 1000)
	c := publish(t, ldg, "0xbbb", 1000)

	// 已关闭的不进索引
	_, err := ldg.Close(testAuthority, c.ID, 2000)
	require.NoError(t, err)

	require.NoError(t, trk.rebuildIndex())

	ids, ok := trk.index.Load("0xaaa")
	require.True(t, ok)
	assert.ElementsMatch(t, []uint64{a.ID, b.ID}, ids)

	_, ok = trk.index.Load("0xbbb")
	assert.False(t, ok)
}

func TestTracker_OnTick(t *testing.T) {
	trk, ldg := setupTracker(t)

	a := publish(t, ldg, "0xaaa", 1000)
	b := publish(t, ldg, "0xaaa", 1000)
	other := publish(t, ldg, "0xbbb", 1000)
	require.NoError(t, trk.rebuildIndex())

	// 同一 token 的所有未关闭信号都被推进
	trk.onTick([]byte(`{"token":"0xaaa","price":1800}`))

	assert.Eventually(t, func() bool {
		sa, errA := dao.Signal().Get(a.ID)
		sb, errB := dao.Signal().Get(b.ID)
		return errA == nil && errB == nil && sa.ATHPrice == 1800 && sb.ATHPrice == 1800
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1000), athOf(t, other.ID))

	// 低于当前最高价的行情无操作
	trk.onTick([]byte(`{"token":"0xaaa","price":1500}`))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1800), athOf(t, a.ID))
}

func TestTracker_OnTickIgnoresGarbage(t *testing.T) {
	trk, ldg := setupTracker(t)

	sig := publish(t, ldg, "0xaaa", 1000)
	require.NoError(t, trk.rebuildIndex())

	// 未知 token、缺字段、零价格都被忽略
	trk.onTick([]byte(`{"token":"0xunknown","price":9000}`))
	trk.onTick([]byte(`{"price":9000}`))
	trk.onTick([]byte(`{"token":"0xaaa"}`))
	trk.onTick([]byte(`not json`))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1000), athOf(t, sig.ID))
}
