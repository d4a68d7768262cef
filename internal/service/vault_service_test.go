package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"custody-vault/internal/adapter/custody"
	"custody-vault/internal/adapter/oracle"
	"custody-vault/internal/adapter/storage/memory"
	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/internal/core/ports/mocks"
	"custody-vault/pkg/apperror"
	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	testAdmin        = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testOtherUser    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testNativeOracle = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	testToken6       = common.HexToAddress("0x00000000000000000000000000000000000000c6")
	testFeed8        = common.HexToAddress("0x00000000000000000000000000000000000000f8")
)

// recordingSink captures dispatched events.
type recordingSink struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (s *recordingSink) Dispatch(_ context.Context, event *domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) Types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type vaultFixture struct {
	svc     *VaultServiceImpl
	store   *memory.Store
	gateway *custody.MemoryGateway
	feed    *oracle.StaticFeed
	sink    *recordingSink
}

// newVaultFixture builds a vault on in-memory adapters: cap 1000 USD,
// native withdraw limit 0.1 native, native at 2000.00000000 USD.
func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()

	store := memory.NewStore()
	feed := oracle.NewStaticFeed()
	feed.Set(testNativeOracle, fixedpoint.MustParse("200000000000"), 8)
	feed.Set(testFeed, uint256.NewInt(1), 6)
	feed.Set(testFeed8, fixedpoint.MustParse("1000000000"), 8)
	gw := custody.NewMemoryGateway(map[common.Address]uint8{testToken: 18, testToken6: 6})
	sink := &recordingSink{}

	params := VaultParams{
		BankCapUSD:               uint256.NewInt(1_000_000_000),
		WithdrawLimitPerTxNative: fixedpoint.MustParse("100000000000000000"),
		NativeOracle:             testNativeOracle,
	}
	svc := NewVaultService(
		params,
		NewAssetRegistry(memory.NewAssetRepo(store)),
		NewValuation(NewPriceOracle(feed, 0)),
		NewLedger(memory.NewBalanceRepo(store), memory.NewTotalsRepo(store), params.BankCapUSD),
		memory.NewEventRepo(store),
		gw,
		NewStaticAdminPolicy([]common.Address{testAdmin}),
		store,
		sink,
		newTestLogger(),
	)
	require.NoError(t, svc.Bootstrap(context.Background()))

	return &vaultFixture{svc: svc, store: store, gateway: gw, feed: feed, sink: sink}
}

func wei(s string) *uint256.Int { return fixedpoint.MustParse(s) }

func (f *vaultFixture) balance(t *testing.T, asset, user common.Address) string {
	t.Helper()
	bal, err := f.svc.GetBalance(context.Background(), asset, user)
	require.NoError(t, err)
	return fixedpoint.String(bal)
}

func (f *vaultFixture) totals(t *testing.T) *domain.Totals {
	t.Helper()
	tot, err := f.svc.GetTotals(context.Background())
	require.NoError(t, err)
	return tot
}

func TestVault_Bootstrap(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	cfg, err := f.svc.GetAsset(ctx, domain.NativeAsset)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, testNativeOracle, cfg.Oracle)

	// Already registered: nothing new is written.
	require.NoError(t, f.svc.Bootstrap(ctx))
	events, total, err := f.svc.ListEvents(ctx, ports.EventListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, domain.EventAssetConfigured, events[0].Type)
	assert.False(t, f.svc.Guard().Locked())
}

func TestVault_Bootstrap_KeepsStoredNativeConfig(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetAssetConfig(ctx, testAdmin, domain.NativeAsset, testNativeOracle, false)
	require.NoError(t, err)
	dispatched := len(f.sink.Types())

	// A restart must not re-enable what an admin disabled.
	require.NoError(t, f.svc.Bootstrap(ctx))
	cfg, err := f.svc.GetAsset(ctx, domain.NativeAsset)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Len(t, f.sink.Types(), dispatched)

	_, err = f.svc.DepositNative(ctx, testCaller, wei("1000000000000000"))
	assertAppError(t, err, "VLT_003")

	// A re-pointed oracle is kept as well.
	_, err = f.svc.SetAssetConfig(ctx, testAdmin, domain.NativeAsset, testFeed, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.Bootstrap(ctx))
	cfg, err = f.svc.GetAsset(ctx, domain.NativeAsset)
	require.NoError(t, err)
	assert.Equal(t, testFeed, cfg.Oracle)
	assert.True(t, cfg.Enabled)

	_, total, err := f.svc.ListEvents(ctx, ports.EventListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestVault_DepositNative_FillsCapThenRejects(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	receipt, err := f.svc.DepositNative(ctx, testCaller, wei("500000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1000000000", fixedpoint.String(receipt.BalanceUSD))
	assert.Equal(t, "1000000000", fixedpoint.String(receipt.TotalUSD))
	assert.Equal(t, domain.EventDepositedNative, receipt.Event.Type)
	assert.Equal(t, "1000000000", fixedpoint.String(receipt.Event.USDValue))

	_, err = f.svc.DepositNative(ctx, testOtherUser, wei("1000000000000000"))
	assertAppError(t, err, "VLT_002")
	appErr := asAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "1000000000", appErr.Details["total_usd"])
	assert.Equal(t, "2000000", appErr.Details["attempted_usd"])

	// Nothing moved for the rejected deposit.
	assert.Equal(t, "0", f.balance(t, domain.NativeAsset, testOtherUser))
	assert.Equal(t, "500000000000000000", fixedpoint.String(f.gateway.Holdings(domain.NativeAsset)))
	tot := f.totals(t)
	assert.Equal(t, "1000000000", fixedpoint.String(tot.TotalUSD))
	assert.Equal(t, uint64(1), tot.DepositCount)
}

func TestVault_DepositNative_DustValuedAtZeroStillRecorded(t *testing.T) {
	f := newVaultFixture(t)

	receipt, err := f.svc.DepositNative(context.Background(), testCaller, uint256.NewInt(1))
	require.NoError(t, err)
	assert.True(t, receipt.BalanceUSD.IsZero())
	assert.Equal(t, uint64(1), f.totals(t).DepositCount)
}

func TestVault_ZeroAmountRejected(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, testCaller, new(uint256.Int))
	assertAppError(t, err, "VAL_001")
	_, err = f.svc.WithdrawNative(ctx, testCaller, nil)
	assertAppError(t, err, "VAL_001")
	_, err = f.svc.DepositToken(ctx, testCaller, testToken6, new(uint256.Int))
	assertAppError(t, err, "VAL_001")
}

func TestVault_WithdrawNative(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, testCaller, wei("500000000000000000"))
	require.NoError(t, err)

	receipt, err := f.svc.WithdrawNative(ctx, testCaller, wei("100000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "800000000", fixedpoint.String(receipt.BalanceUSD))
	assert.Equal(t, "800000000", fixedpoint.String(receipt.TotalUSD))
	assert.Equal(t, domain.EventWithdrawnNative, receipt.Event.Type)
	assert.Equal(t, "400000000000000000", fixedpoint.String(f.gateway.Holdings(domain.NativeAsset)))
	assert.Equal(t, uint64(1), f.totals(t).WithdrawCount)
}

func TestVault_WithdrawNative_LimitCheckedBeforeBalance(t *testing.T) {
	f := newVaultFixture(t)

	// No balance at all, yet the limit is what fails.
	_, err := f.svc.WithdrawNative(context.Background(), testCaller, wei("200000000000000000"))
	assertAppError(t, err, "VLT_006")
	appErr := asAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "100000000000000000", appErr.Details["limit"])
	assert.Equal(t, "200000000000000000", appErr.Details["requested"])
}

func TestVault_WithdrawNative_InsufficientBalance(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, testCaller, wei("10000000000000000")) // 20 USD
	require.NoError(t, err)

	_, err = f.svc.WithdrawNative(ctx, testCaller, wei("100000000000000000")) // 200 USD
	assertAppError(t, err, "VLT_005")
	appErr := asAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "20000000", appErr.Details["available_usd"])
	assert.Equal(t, "200000000", appErr.Details["requested_usd"])

	// Balances are per user.
	_, err = f.svc.WithdrawNative(ctx, testOtherUser, wei("1000000000000000"))
	assertAppError(t, err, "VLT_005")
}

func TestVault_WithdrawNative_ZeroUSDRejected(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, testCaller, wei("500000000000000000"))
	require.NoError(t, err)

	// 1 wei is worth 0 USD units; it must not leave custody for free.
	_, err = f.svc.WithdrawNative(ctx, testOtherUser, uint256.NewInt(1))
	assertAppError(t, err, "VLT_008")
	appErr := asAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, domain.NativeAsset.Hex(), appErr.Details["asset"])
	assert.Equal(t, "1", appErr.Details["amount"])

	_, err = f.svc.WithdrawNative(ctx, testCaller, uint256.NewInt(1))
	assertAppError(t, err, "VLT_008")

	assert.Equal(t, "500000000000000000", fixedpoint.String(f.gateway.Holdings(domain.NativeAsset)))
	assert.Equal(t, uint64(0), f.totals(t).WithdrawCount)
	assert.False(t, f.svc.Guard().Locked())
}

func TestVault_WithdrawToken_ZeroUSDRejected(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	// Price 10.00000000: 2 whole tokens value to 0 USD units.
	_, err := f.svc.SetAssetConfig(ctx, testAdmin, testToken, testFeed8, true)
	require.NoError(t, err)
	_, err = f.svc.DepositToken(ctx, testCaller, testToken, wei("2000000000000000000"))
	require.NoError(t, err)

	assert.Equal(t, "0", f.balance(t, testToken, testOtherUser))
	_, err = f.svc.WithdrawToken(ctx, testOtherUser, testToken, wei("2000000000000000000"))
	assertAppError(t, err, "VLT_008")

	assert.Equal(t, "2000000000000000000", fixedpoint.String(f.gateway.Holdings(testToken)))
	assert.Equal(t, uint64(0), f.totals(t).WithdrawCount)
}

func TestVault_Token_RequiresEnabledAsset(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.DepositToken(ctx, testCaller, testToken6, uint256.NewInt(1_000_000))
	assertAppError(t, err, "VLT_003")

	_, err = f.svc.SetAssetConfig(ctx, testAdmin, testToken6, common.Address{}, true)
	require.NoError(t, err)
	_, err = f.svc.DepositToken(ctx, testCaller, testToken6, uint256.NewInt(1_000_000))
	assertAppError(t, err, "VLT_004")

	_, err = f.svc.SetAssetConfig(ctx, testAdmin, testToken6, testFeed, true)
	require.NoError(t, err)
	receipt, err := f.svc.DepositToken(ctx, testCaller, testToken6, uint256.NewInt(250_000_000))
	require.NoError(t, err)
	assert.Equal(t, "250000000", fixedpoint.String(receipt.BalanceUSD))
	assert.Equal(t, domain.EventDepositedToken, receipt.Event.Type)
	assert.Equal(t, "250000000", fixedpoint.String(f.gateway.Holdings(testToken6)))

	receipt, err = f.svc.WithdrawToken(ctx, testCaller, testToken6, uint256.NewInt(50_000_000))
	require.NoError(t, err)
	assert.Equal(t, "200000000", fixedpoint.String(receipt.BalanceUSD))
	assert.Equal(t, domain.EventWithdrawnToken, receipt.Event.Type)

	// Disabling blocks both directions; the balance stays on the books.
	_, err = f.svc.SetAssetConfig(ctx, testAdmin, testToken6, testFeed, false)
	require.NoError(t, err)
	_, err = f.svc.WithdrawToken(ctx, testCaller, testToken6, uint256.NewInt(1))
	assertAppError(t, err, "VLT_003")
	assert.Equal(t, "200000000", f.balance(t, testToken6, testCaller))
}

func TestVault_Token_NativeAddressRejected(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.DepositToken(ctx, testCaller, domain.NativeAsset, uint256.NewInt(1))
	assertAppError(t, err, "VAL_002")
	_, err = f.svc.WithdrawToken(ctx, testCaller, domain.NativeAsset, uint256.NewInt(1))
	assertAppError(t, err, "VAL_002")
}

func TestVault_Token_UnknownDecimals(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()
	unknown := common.HexToAddress("0xdd")

	_, err := f.svc.SetAssetConfig(ctx, testAdmin, unknown, testFeed, true)
	require.NoError(t, err)
	_, err = f.svc.DepositToken(ctx, testCaller, unknown, uint256.NewInt(1))
	assertAppError(t, err, "SYS_001")
}

func TestVault_DisabledNative(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetAssetConfig(ctx, testAdmin, domain.NativeAsset, testNativeOracle, false)
	require.NoError(t, err)

	_, err = f.svc.DepositNative(ctx, testCaller, wei("1000000000000000"))
	assertAppError(t, err, "VLT_003")
}

func TestVault_SetAssetConfig_RequiresAdmin(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetAssetConfig(ctx, testCaller, testToken, testFeed, true)
	assertAppError(t, err, "AUTH_002")

	cfg, err := f.svc.GetAsset(ctx, testToken)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	cfg, err = f.svc.SetAssetConfig(ctx, testAdmin, testToken, testFeed, true)
	require.NoError(t, err)
	assert.Equal(t, testFeed, cfg.Oracle)

	events, _, err := f.svc.ListEvents(ctx, ports.EventListParams{Actor: &testAdmin})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAssetConfigured, events[0].Type)
	assert.True(t, events[0].Enabled)
}

func TestVault_NativeAlwaysPricedByConstructionOracle(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	// Re-pointing the native registry entry only matters for enablement.
	_, err := f.svc.SetAssetConfig(ctx, testAdmin, domain.NativeAsset, testFeed, true)
	require.NoError(t, err)

	receipt, err := f.svc.DepositNative(ctx, testCaller, wei("500000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1000000000", fixedpoint.String(receipt.BalanceUSD))
}

func TestVault_Reentrancy(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	var (
		reentered   bool
		reentryErrs []error
	)
	f.gateway.SetHook(func(hctx context.Context, tr custody.Transfer) error {
		if reentered {
			return nil
		}
		reentered = true
		assert.True(t, f.svc.Guard().Locked())

		_, err := f.svc.DepositNative(hctx, testCaller, wei("1000000000000000"))
		reentryErrs = append(reentryErrs, err)
		_, err = f.svc.WithdrawNative(hctx, testCaller, wei("1000000000000000"))
		reentryErrs = append(reentryErrs, err)
		_, err = f.svc.SetAssetConfig(hctx, testAdmin, testToken, testFeed, true)
		reentryErrs = append(reentryErrs, err)
		return nil
	})

	receipt, err := f.svc.DepositNative(ctx, testCaller, wei("100000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "200000000", fixedpoint.String(receipt.BalanceUSD))

	require.Len(t, reentryErrs, 3)
	for _, rerr := range reentryErrs {
		assertAppError(t, rerr, "VLT_001")
	}

	// The lock is free again and the nested calls left no trace.
	assert.False(t, f.svc.Guard().Locked())
	assert.Equal(t, uint64(1), f.totals(t).DepositCount)
	cfg, err := f.svc.GetAsset(ctx, testToken)
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	_, err = f.svc.DepositNative(ctx, testCaller, wei("1000000000000000"))
	require.NoError(t, err)
}

func TestVault_TransferFailureRollsBack(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	_, err := f.svc.DepositNative(ctx, testCaller, wei("100000000000000000"))
	require.NoError(t, err)
	dispatched := len(f.sink.Types())

	f.gateway.SetHook(func(context.Context, custody.Transfer) error {
		return errors.New("custodian rejected transfer")
	})

	_, err = f.svc.DepositNative(ctx, testCaller, wei("100000000000000000"))
	assertAppError(t, err, "VLT_007")
	_, err = f.svc.WithdrawNative(ctx, testCaller, wei("50000000000000000"))
	assertAppError(t, err, "VLT_007")

	assert.Equal(t, "200000000", f.balance(t, domain.NativeAsset, testCaller))
	tot := f.totals(t)
	assert.Equal(t, "200000000", fixedpoint.String(tot.TotalUSD))
	assert.Equal(t, uint64(1), tot.DepositCount)
	assert.Equal(t, uint64(0), tot.WithdrawCount)
	assert.Len(t, f.sink.Types(), dispatched)
	assert.False(t, f.svc.Guard().Locked())

	_, total, err := f.svc.ListEvents(ctx, ports.EventListParams{Actor: &testCaller})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestVault_Previews(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	usd, err := f.svc.PreviewNativeToUSD(ctx, wei("500000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1000000000", fixedpoint.String(usd))

	usd, err = f.svc.PreviewTokenToUSD(ctx, domain.NativeAsset, wei("500000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1000000000", fixedpoint.String(usd))

	_, err = f.svc.PreviewTokenToUSD(ctx, testToken6, uint256.NewInt(1))
	assertAppError(t, err, "VLT_004")

	// A feed is enough; the asset may stay disabled.
	_, err = f.svc.SetAssetConfig(ctx, testAdmin, testToken6, testFeed, false)
	require.NoError(t, err)
	usd, err = f.svc.PreviewTokenToUSD(ctx, testToken6, uint256.NewInt(42_000_000))
	require.NoError(t, err)
	assert.Equal(t, "42000000", fixedpoint.String(usd))

	// Previews never touch the ledger.
	assert.Equal(t, uint64(0), f.totals(t).DepositCount)
}

func TestVault_ListEvents(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.DepositNative(ctx, testCaller, wei("1000000000000000"))
		require.NoError(t, err)
	}
	_, err := f.svc.DepositNative(ctx, testOtherUser, wei("1000000000000000"))
	require.NoError(t, err)

	events, total, err := f.svc.ListEvents(ctx, ports.EventListParams{Actor: &testCaller, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, events, 2)

	typ := domain.EventDepositedNative
	_, total, err = f.svc.ListEvents(ctx, ports.EventListParams{Type: &typ, PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	assert.Equal(t, []domain.EventType{
		domain.EventAssetConfigured,
		domain.EventDepositedNative,
		domain.EventDepositedNative,
		domain.EventDepositedNative,
		domain.EventDepositedNative,
	}, f.sink.Types())
}

func TestVault_ConcurrentDeposits(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	const workers = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.DepositNative(ctx, testCaller, wei("1000000000000000")) // 2 USD
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	tot := f.totals(t)
	assert.Equal(t, "50000000", fixedpoint.String(tot.TotalUSD))
	assert.Equal(t, uint64(workers), tot.DepositCount)
	assert.Equal(t, "50000000", f.balance(t, domain.NativeAsset, testCaller))
}

func TestVault_ConcurrentDepositsNeverPassCap(t *testing.T) {
	f := newVaultFixture(t)
	ctx := context.Background()

	// 30 x 40 USD against a 1000 USD cap: exactly 25 fit.
	const workers = 30
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.DepositNative(ctx, testOtherUser, wei("20000000000000000"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case apperror.HasCode(err, "VLT_002"):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 25, accepted)
	assert.Equal(t, 5, rejected)
	assert.Equal(t, "1000000000", fixedpoint.String(f.totals(t).TotalUSD))
}

// ---- failure paths with mocked collaborators ----

type mockedVault struct {
	svc        *VaultServiceImpl
	assets     *mocks.MockAssetRepository
	balances   *mocks.MockBalanceRepository
	totals     *mocks.MockTotalsRepository
	events     *mocks.MockEventRepository
	gateway    *mocks.MockTransferGateway
	transactor *mocks.MockDBTransactor
	feed       *mocks.MockPriceFeed
	logs       *bytes.Buffer
}

func newMockedVault(t *testing.T) *mockedVault {
	ctrl := gomock.NewController(t)
	m := &mockedVault{
		assets:     mocks.NewMockAssetRepository(ctrl),
		balances:   mocks.NewMockBalanceRepository(ctrl),
		totals:     mocks.NewMockTotalsRepository(ctrl),
		events:     mocks.NewMockEventRepository(ctrl),
		gateway:    mocks.NewMockTransferGateway(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		feed:       mocks.NewMockPriceFeed(ctrl),
		logs:       &bytes.Buffer{},
	}
	admins := mocks.NewMockAdminPolicy(ctrl)
	admins.EXPECT().IsAdmin(gomock.Any()).Return(true).AnyTimes()

	params := VaultParams{
		BankCapUSD:               uint256.NewInt(1_000_000_000),
		WithdrawLimitPerTxNative: fixedpoint.MustParse("100000000000000000"),
		NativeOracle:             testNativeOracle,
	}
	m.svc = NewVaultService(
		params,
		NewAssetRegistry(m.assets),
		NewValuation(NewPriceOracle(m.feed, 0)),
		NewLedger(m.balances, m.totals, params.BankCapUSD),
		m.events,
		m.gateway,
		admins,
		m.transactor,
		nil,
		zerolog.New(m.logs),
	)
	return m
}

func (m *mockedVault) expectNativePriced() {
	m.assets.EXPECT().Get(gomock.Any(), domain.NativeAsset).
		Return(&domain.AssetConfig{Asset: domain.NativeAsset, Oracle: testNativeOracle, Enabled: true}, nil)
	m.feed.EXPECT().LatestRound(gomock.Any(), testNativeOracle).
		Return(&domain.Quote{Price: fixedpoint.MustParse("200000000000"), Decimals: 8}, nil)
}

func TestVault_Deposit_BeginFails(t *testing.T) {
	m := newMockedVault(t)
	m.expectNativePriced()
	m.transactor.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("pool closed"))

	_, err := m.svc.DepositNative(context.Background(), testCaller, wei("1000000000000000"))
	assertAppError(t, err, "SYS_001")
	assert.False(t, m.svc.Guard().Locked())
}

func TestVault_Deposit_EventWriteFails_NoTransfer(t *testing.T) {
	m := newMockedVault(t)
	tx := &mockTx{}
	m.expectNativePriced()
	m.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	m.totals.EXPECT().GetForUpdate(gomock.Any(), tx).Return(domain.NewTotals(), nil)
	m.balances.EXPECT().GetForUpdate(gomock.Any(), tx, domain.NativeAsset, testCaller).Return(new(uint256.Int), nil)
	m.balances.EXPECT().Upsert(gomock.Any(), tx, domain.NativeAsset, testCaller, gomock.Any()).Return(nil)
	m.totals.EXPECT().Update(gomock.Any(), tx, gomock.Any()).Return(nil)
	m.events.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(errors.New("disk full"))
	// gateway: no TransferIn expected

	_, err := m.svc.DepositNative(context.Background(), testCaller, wei("1000000000000000"))
	assertAppError(t, err, "SYS_001")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestVault_Withdraw_TransferFails_RollsBack(t *testing.T) {
	m := newMockedVault(t)
	tx := &mockTx{}
	m.expectNativePriced()
	m.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	m.totals.EXPECT().GetForUpdate(gomock.Any(), tx).Return(&domain.Totals{TotalUSD: uint256.NewInt(5_000_000)}, nil)
	m.balances.EXPECT().GetForUpdate(gomock.Any(), tx, domain.NativeAsset, testCaller).Return(uint256.NewInt(5_000_000), nil)
	m.balances.EXPECT().Upsert(gomock.Any(), tx, domain.NativeAsset, testCaller, uint256.NewInt(3_000_000)).Return(nil)
	m.totals.EXPECT().Update(gomock.Any(), tx, gomock.Any()).Return(nil)
	m.events.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	m.gateway.EXPECT().TransferOut(gomock.Any(), domain.NativeAsset, testCaller, gomock.Any()).Return(errors.New("insufficient gas"))

	_, err := m.svc.WithdrawNative(context.Background(), testCaller, wei("1000000000000000"))
	assertAppError(t, err, "VLT_007")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestVault_Withdraw_CommitFailsAfterTransfer_LogsForReconcile(t *testing.T) {
	m := newMockedVault(t)
	tx := &mockTx{commitErr: errors.New("connection lost")}
	m.expectNativePriced()
	m.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	m.totals.EXPECT().GetForUpdate(gomock.Any(), tx).Return(&domain.Totals{TotalUSD: uint256.NewInt(5_000_000)}, nil)
	m.balances.EXPECT().GetForUpdate(gomock.Any(), tx, domain.NativeAsset, testCaller).Return(uint256.NewInt(5_000_000), nil)
	m.balances.EXPECT().Upsert(gomock.Any(), tx, domain.NativeAsset, testCaller, uint256.NewInt(3_000_000)).Return(nil)
	m.totals.EXPECT().Update(gomock.Any(), tx, gomock.Any()).Return(nil)
	m.events.EXPECT().Create(gomock.Any(), tx, gomock.Any()).Return(nil)
	m.gateway.EXPECT().TransferOut(gomock.Any(), domain.NativeAsset, testCaller, gomock.Any()).Return(nil)

	_, err := m.svc.WithdrawNative(context.Background(), testCaller, wei("1000000000000000"))
	assertAppError(t, err, "SYS_001")
	assert.False(t, tx.committed)

	logged := m.logs.String()
	assert.Contains(t, logged, `"level":"error"`)
	assert.Contains(t, logged, "reconcile custody")
	assert.Contains(t, logged, `"op":"WithdrawnNative"`)
	assert.Contains(t, logged, `"amount":"1000000000000000"`)
	assert.Contains(t, logged, `"usd":"2000000"`)
	assert.Contains(t, logged, testCaller.Hex())
}

func TestVault_Deposit_OracleFailure(t *testing.T) {
	m := newMockedVault(t)
	m.assets.EXPECT().Get(gomock.Any(), domain.NativeAsset).
		Return(&domain.AssetConfig{Asset: domain.NativeAsset, Oracle: testNativeOracle, Enabled: true}, nil)
	m.feed.EXPECT().LatestRound(gomock.Any(), testNativeOracle).Return(nil, errors.New("rpc timeout"))

	_, err := m.svc.DepositNative(context.Background(), testCaller, wei("1000000000000000"))
	assertAppError(t, err, "ORC_001")
}

func TestVault_ListEvents_ClampsPaging(t *testing.T) {
	m := newMockedVault(t)

	m.events.EXPECT().List(gomock.Any(), ports.EventListParams{Page: 1, PageSize: 20}).Return(nil, int64(0), nil)
	m.events.EXPECT().List(gomock.Any(), ports.EventListParams{Page: 3, PageSize: 100}).Return(nil, int64(0), nil)

	_, _, err := m.svc.ListEvents(context.Background(), ports.EventListParams{})
	require.NoError(t, err)
	_, _, err = m.svc.ListEvents(context.Background(), ports.EventListParams{Page: 3, PageSize: 5000})
	require.NoError(t, err)
}
