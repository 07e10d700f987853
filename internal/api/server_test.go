package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oracle-alpha/oracle-ledger/config"
	"github.com/oracle-alpha/oracle-ledger/internal/dao"
	"github.com/oracle-alpha/oracle-ledger/internal/ledger"
	"github.com/oracle-alpha/oracle-ledger/internal/models"
)

const testAuthority = "0xfeed0001"

func setupServer(t *testing.T) *Server {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OracleState{}, &models.OracleSignal{}))
	dao.InitDAO(db)

	ldg := ledger.New()
	require.NoError(t, ldg.Bootstrap(testAuthority))

	return NewServer(config.API{
		Addr:      "127.0.0.1:0",
		CacheTTL:  50 * time.Millisecond,
		PageLimit: 100,
	}, ldg, nil)
}

func doRequest(s *Server, method, path, authority, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if authority != "" {
		req.Header.Set("X-Authority", authority)
	}

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func publishSignal(t *testing.T, s *Server, symbol string, score int) uint64 {
	t.Helper()

	body := fmt.Sprintf(`{"token":"0xtoken","symbol":%q,"score":%d,"entry_price":1000}`, symbol, score)
	rec := doRequest(s, http.MethodPost, "/api/signals", testAuthority, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return gjson.Get(rec.Body.String(), "id").Uint()
}

func TestAPI_PublishAndGet(t *testing.T) {
	s := setupServer(t)

	id := publishSignal(t, s, "PEPE", 80)
	assert.Equal(t, uint64(0), id)

	rec := doRequest(s, http.MethodGet, "/api/signals/0", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "PEPE", gjson.Get(body, "symbol").String())
	assert.Equal(t, "open", gjson.Get(body, "status").String())
	assert.Equal(t, int64(1000), gjson.Get(body, "ath_price").Int())

	// 未知 id 与非法 id
	rec = doRequest(s, http.MethodGet, "/api/signals/99", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequest(s, http.MethodGet, "/api/signals/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_WriteAuthorization(t *testing.T) {
	s := setupServer(t)

	// 无身份头
	rec := doRequest(s, http.MethodPost, "/api/signals", "", `{"symbol":"PEPE","score":80}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 错误身份
	rec = doRequest(s, http.MethodPost, "/api/signals", "0xintruder", `{"symbol":"PEPE","score":80}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 参数非法
	rec = doRequest(s, http.MethodPost, "/api/signals", testAuthority, `{"symbol":"ELEVENCHARS"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doRequest(s, http.MethodPost, "/api/signals", testAuthority, `{"symbol":"PEPE","score":101}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ListFilters(t *testing.T) {
	s := setupServer(t)
	publishSignal(t, s, "AAA", 40)
	publishSignal(t, s, "BBB", 70)
	publishSignal(t, s, "CCC", 90)

	rec := doRequest(s, http.MethodGet, "/api/signals", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), gjson.Get(rec.Body.String(), "count").Int())

	// 评分过滤，两种参数名都接受
	rec = doRequest(s, http.MethodGet, "/api/signals?min_score=70", "", "")
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "count").Int())
	rec = doRequest(s, http.MethodGet, "/api/signals?minScore=90", "", "")
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "count").Int())

	// 条数限制，新发布的在前
	rec = doRequest(s, http.MethodGet, "/api/signals?limit=1", "", "")
	body := rec.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "count").Int())
	assert.Equal(t, "CCC", gjson.Get(body, "signals.0.symbol").String())

	// 状态过滤
	rec = doRequest(s, http.MethodGet, "/api/signals?status=open", "", "")
	assert.Equal(t, int64(3), gjson.Get(rec.Body.String(), "count").Int())
	rec = doRequest(s, http.MethodGet, "/api/signals?status=bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CloseFlow(t *testing.T) {
	s := setupServer(t)
	id := publishSignal(t, s, "PEPE", 80)
	path := fmt.Sprintf("/api/signals/%d", id)

	// 推进最高价
	rec := doRequest(s, http.MethodPost, path+"/ath", testAuthority, `{"ath_price":2500}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, path, "", "")
	assert.Equal(t, int64(2500), gjson.Get(rec.Body.String(), "ath_price").Int())

	// 关闭为胜利
	rec = doRequest(s, http.MethodPost, path+"/close", testAuthority, `{"exit_price":1500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "win", gjson.Get(body, "status").String())
	assert.Equal(t, int64(5000), gjson.Get(body, "roi_bps").Int())

	// 重复关闭
	rec = doRequest(s, http.MethodPost, path+"/close", testAuthority, `{"exit_price":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// 未知信号
	rec = doRequest(s, http.MethodPost, "/api/signals/99/close", testAuthority, `{"exit_price":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Stats(t *testing.T) {
	s := setupServer(t)

	for i, exit := range []uint64{1500, 900} {
		id := publishSignal(t, s, fmt.Sprintf("T%d", i), 60)
		rec := doRequest(s, http.MethodPost, fmt.Sprintf("/api/signals/%d/close", id), testAuthority,
			fmt.Sprintf(`{"exit_price":%d}`, exit))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(s, http.MethodGet, "/api/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(2), gjson.Get(body, "total_signals").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "total_wins").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "total_losses").Int())
	assert.InDelta(t, 50.0, gjson.Get(body, "win_rate").Float(), 0.01)
	assert.InDelta(t, 60.0, gjson.Get(body, "avg_score").Float(), 0.01)

	// TTL 内命中缓存
	rec = doRequest(s, http.MethodGet, "/api/stats", "", "")
	assert.Equal(t, body, rec.Body.String())
}

func TestAPI_Rankings(t *testing.T) {
	s := setupServer(t)

	first := publishSignal(t, s, "AAA", 60)
	second := publishSignal(t, s, "BBB", 60)
	publishSignal(t, s, "CCC", 60)

	rec := doRequest(s, http.MethodPost, fmt.Sprintf("/api/signals/%d/close", first), testAuthority, `{"exit_price":3000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(s, http.MethodPost, fmt.Sprintf("/api/signals/%d/close", second), testAuthority, `{"exit_price":500}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/leaderboard", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, int64(2), gjson.Get(body, "count").Int())
	assert.Equal(t, "AAA", gjson.Get(body, "signals.0.symbol").String())

	rec = doRequest(s, http.MethodGet, "/api/gainers", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "count").Int())
	assert.Equal(t, "CCC", gjson.Get(body, "signals.0.symbol").String())
}
