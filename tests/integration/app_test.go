package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody-vault/internal/adapter/custody"
	httpHandler "custody-vault/internal/adapter/http/handler"
	"custody-vault/internal/adapter/oracle"
	memStorage "custody-vault/internal/adapter/storage/memory"
	redisStorage "custody-vault/internal/adapter/storage/redis"
	"custody-vault/internal/core/ports"
	"custody-vault/internal/service"
	"custody-vault/pkg/fixedpoint"
	"custody-vault/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const eventsChannel = "vault_events"

var (
	adminAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	aliceAddr   = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bobAddr     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	nativeFeed  = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	tokenAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	tokenFeed   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	oneEther    = "1000000000000000000"
	tenthEther  = "100000000000000000"
	fiveTokens  = "5000000000000000000"
	tokenDigits = uint8(18)
)

// testApp runs the full stack over memory storage, a static price feed, the
// in-process custody gateway and miniredis.
//
// Prices: native 2000 USD with 8 feed decimals, so 1 ether = 2000 USD.
// The token feed answers 1 with 6 decimals, so 1 token (18 decimals) = 1 USD.
// Bank cap 5000 USD; native withdrawals are limited to 1 ether per call.
type testApp struct {
	server   *httptest.Server
	redis    *miniredis.Miniredis
	rdb      *goredis.Client
	store    *memStorage.Store
	audits   *memStorage.AuditRepo
	gateway  *custody.MemoryGateway
	feed     *oracle.StaticFeed
	events   *service.EventDispatcher
	vault    *service.VaultServiceImpl
	tokenSvc *service.JWTTokenService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	log := logger.New("error", false)

	store := memStorage.NewStore()
	audits := memStorage.NewAuditRepo(store)

	feed := oracle.NewStaticFeed()
	feed.Set(nativeFeed, uint256.NewInt(2000_00000000), 8)
	feed.Set(tokenFeed, uint256.NewInt(1), 6)

	gateway := custody.NewMemoryGateway(map[common.Address]uint8{tokenAddr: tokenDigits})

	bankCap, err := fixedpoint.ParseUnits("5000", fixedpoint.USDDecimals)
	require.NoError(t, err)
	limit, err := fixedpoint.Parse(oneEther)
	require.NoError(t, err)

	events := service.NewEventDispatcher(log, redisStorage.NewEventPublisher(rdb, eventsChannel))

	vault := service.NewVaultService(
		service.VaultParams{
			BankCapUSD:               bankCap,
			WithdrawLimitPerTxNative: limit,
			NativeOracle:             nativeFeed,
		},
		service.NewAssetRegistry(memStorage.NewAssetRepo(store)),
		service.NewValuation(service.NewPriceOracle(feed, time.Hour)),
		service.NewLedger(memStorage.NewBalanceRepo(store), memStorage.NewTotalsRepo(store), bankCap),
		memStorage.NewEventRepo(store),
		gateway,
		service.NewStaticAdminPolicy([]common.Address{adminAddr}),
		store,
		events,
		log,
	)
	require.NoError(t, vault.Bootstrap(t.Context()))

	tokenSvc := service.NewJWTTokenService("integration-secret", time.Hour, "custody-vault")

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		VaultSvc:       vault,
		TokenSvc:       tokenSvc,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		Idempotency:    redisStorage.NewIdempotencyCache(rdb),
		HealthCheckers: []ports.HealthChecker{store, redisStorage.NewHealthCheck(rdb)},
		AuditSvc:       service.NewAuditService(audits, log),
		Logger:         log,
	})

	app := &testApp{
		server:   httptest.NewServer(router),
		redis:    mr,
		rdb:      rdb,
		store:    store,
		audits:   audits,
		gateway:  gateway,
		feed:     feed,
		events:   events,
		vault:    vault,
		tokenSvc: tokenSvc,
	}
	t.Cleanup(app.close)
	return app
}

func (a *testApp) close() {
	a.server.Close()
	a.events.Wait()
	a.rdb.Close()
}

func (a *testApp) token(t *testing.T, who common.Address) string {
	t.Helper()
	role := service.RoleUser
	if who == adminAddr {
		role = service.RoleAdmin
	}
	tok, _, err := a.tokenSvc.Generate(who, role)
	require.NoError(t, err)
	return tok
}

// do sends a request as who and returns the status and the raw body.
func (a *testApp) do(t *testing.T, who common.Address, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token(t, who))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// envelope is the success/error body shape shared by every endpoint.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	RequestID string          `json:"request_id"`
}

func decode(t *testing.T, raw []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return env
}

type usdValue struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

type receipt struct {
	Event struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Actor    string `json:"actor"`
		Asset    string `json:"asset"`
		Amount   string `json:"amount"`
		USDValue string `json:"usd_value"`
	} `json:"event"`
	USD        usdValue `json:"usd"`
	BalanceUSD usdValue `json:"balance_usd"`
	TotalUSD   usdValue `json:"total_usd"`
}

type totals struct {
	TotalUSD      usdValue `json:"total_usd"`
	BankCapUSD    usdValue `json:"bank_cap_usd"`
	HeadroomUSD   usdValue `json:"headroom_usd"`
	DepositCount  uint64   `json:"deposit_count"`
	WithdrawCount uint64   `json:"withdraw_count"`
}

func dataAs[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(decode(t, raw).Data, &out), string(raw))
	return out
}

func (a *testApp) totals(t *testing.T) totals {
	t.Helper()
	status, raw := a.do(t, aliceAddr, http.MethodGet, "/api/v1/totals", nil, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	return dataAs[totals](t, raw)
}

func (a *testApp) enableToken(t *testing.T) {
	t.Helper()
	status, raw := a.do(t, adminAddr, http.MethodPut, "/api/v1/admin/assets/"+tokenAddr.Hex(),
		map[string]any{"oracle": tokenFeed.Hex(), "enabled": true}, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
}
