package service

import (
	"context"
	"fmt"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/apperror"
	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

const (
	defaultEventPageSize = 20
	maxEventPageSize     = 100
)

// VaultParams are the construction-time limits of a vault. They never change
// while the service runs.
type VaultParams struct {
	BankCapUSD               *uint256.Int
	WithdrawLimitPerTxNative *uint256.Int
	NativeOracle             common.Address
}

// EventSink receives events after their transaction committed.
type EventSink interface {
	Dispatch(ctx context.Context, event *domain.Event)
}

// VaultServiceImpl implements ports.VaultService.
//
// Every mutating call runs inside the reentrancy guard and one database
// transaction: checks, then the external transfer, then commit. A failure at
// any step rolls the transaction back.
type VaultServiceImpl struct {
	params     VaultParams
	guard      *ReentrancyGuard
	registry   *AssetRegistry
	valuation  *Valuation
	ledger     *Ledger
	eventRepo  ports.EventRepository
	gateway    ports.TransferGateway
	admins     ports.AdminPolicy
	transactor ports.DBTransactor
	sink       EventSink
	log        zerolog.Logger
}

// NewVaultService creates a new VaultServiceImpl. sink may be nil.
func NewVaultService(
	params VaultParams,
	registry *AssetRegistry,
	valuation *Valuation,
	ledger *Ledger,
	eventRepo ports.EventRepository,
	gateway ports.TransferGateway,
	admins ports.AdminPolicy,
	transactor ports.DBTransactor,
	sink EventSink,
	log zerolog.Logger,
) *VaultServiceImpl {
	return &VaultServiceImpl{
		params:     params,
		guard:      NewReentrancyGuard(),
		registry:   registry,
		valuation:  valuation,
		ledger:     ledger,
		eventRepo:  eventRepo,
		gateway:    gateway,
		admins:     admins,
		transactor: transactor,
		sink:       sink,
		log:        log,
	}
}

// Guard exposes the reentrancy guard.
func (s *VaultServiceImpl) Guard() *ReentrancyGuard {
	return s.guard
}

// Bootstrap registers the native asset as enabled with the configured oracle
// the first time the vault starts. A stored native config belongs to the
// admins and is left as is.
func (s *VaultServiceImpl) Bootstrap(ctx context.Context) error {
	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	current, err := s.registry.Find(ctx, domain.NativeAsset)
	if err != nil {
		return err
	}
	if current != nil {
		if current.Oracle != s.params.NativeOracle {
			s.log.Warn().
				Str("stored_oracle", current.Oracle.Hex()).
				Str("configured_oracle", s.params.NativeOracle.Hex()).
				Bool("enabled", current.Enabled).
				Msg("native asset config differs from vault.native_oracle; keeping stored config")
		}
		return nil
	}

	cfg, err := s.configure(ctx, common.Address{}, domain.NativeAsset, s.params.NativeOracle, true)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("oracle", cfg.Oracle.Hex()).
		Str("bank_cap_usd", fixedpoint.FormatUnits(s.params.BankCapUSD, fixedpoint.USDDecimals)).
		Str("withdraw_limit_native", fixedpoint.String(s.params.WithdrawLimitPerTxNative)).
		Msg("native asset registered")
	return nil
}

// DepositNative credits the USD value of the attached native amount.
func (s *VaultServiceImpl) DepositNative(ctx context.Context, caller common.Address, amount *uint256.Int) (*ports.Receipt, error) {
	return s.deposit(ctx, caller, domain.NativeAsset, amount)
}

// DepositToken credits the USD value of amount and pulls the tokens in.
func (s *VaultServiceImpl) DepositToken(ctx context.Context, caller, asset common.Address, amount *uint256.Int) (*ports.Receipt, error) {
	if domain.IsNative(asset) {
		return nil, apperror.Validation("native currency must be deposited through the native route")
	}
	return s.deposit(ctx, caller, asset, amount)
}

// WithdrawNative debits the USD value of amount and pays the native currency out.
func (s *VaultServiceImpl) WithdrawNative(ctx context.Context, caller common.Address, amount *uint256.Int) (*ports.Receipt, error) {
	return s.withdraw(ctx, caller, domain.NativeAsset, amount)
}

// WithdrawToken debits the USD value of amount and pays the tokens out.
func (s *VaultServiceImpl) WithdrawToken(ctx context.Context, caller, asset common.Address, amount *uint256.Int) (*ports.Receipt, error) {
	if domain.IsNative(asset) {
		return nil, apperror.Validation("native currency must be withdrawn through the native route")
	}
	return s.withdraw(ctx, caller, asset, amount)
}

func (s *VaultServiceImpl) deposit(ctx context.Context, caller, asset common.Address, amount *uint256.Int) (*ports.Receipt, error) {
	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if amount == nil || amount.IsZero() {
		return nil, apperror.ErrInvalidValue()
	}

	cfg, err := s.registry.RequireEnabled(ctx, asset)
	if err != nil {
		return nil, err
	}

	usd, err := s.value(ctx, cfg, amount)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := s.ledger.Credit(ctx, dbTx, asset, caller, usd)
	if err != nil {
		return nil, err
	}

	event := domain.NewDepositEvent(caller, asset, amount, usd)
	if err := s.eventRepo.Create(ctx, dbTx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record event: %w", err))
	}

	// Funds move last; only Commit follows.
	if err := s.gateway.TransferIn(ctx, asset, caller, amount); err != nil {
		return nil, apperror.ErrTransferFailed(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		s.logUnrecorded(err, event)
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.dispatch(ctx, event)

	s.log.Info().
		Str("op", string(event.Type)).
		Str("asset", asset.Hex()).
		Str("user", caller.Hex()).
		Str("amount", fixedpoint.String(amount)).
		Str("usd", fixedpoint.String(usd)).
		Msg("deposit committed")

	return &ports.Receipt{Event: event, BalanceUSD: entry.Balance, TotalUSD: entry.Totals.TotalUSD}, nil
}

func (s *VaultServiceImpl) withdraw(ctx context.Context, caller, asset common.Address, amount *uint256.Int) (*ports.Receipt, error) {
	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if amount == nil || amount.IsZero() {
		return nil, apperror.ErrInvalidValue()
	}
	if domain.IsNative(asset) && amount.Gt(s.params.WithdrawLimitPerTxNative) {
		return nil, apperror.ErrWithdrawLimitExceeded(
			fixedpoint.String(s.params.WithdrawLimitPerTxNative), fixedpoint.String(amount))
	}

	cfg, err := s.registry.RequireEnabled(ctx, asset)
	if err != nil {
		return nil, err
	}

	usd, err := s.value(ctx, cfg, amount)
	if err != nil {
		return nil, err
	}
	// A debit of 0 USD would pay out funds without touching any balance.
	if usd.IsZero() {
		return nil, apperror.ErrDustWithdrawal(asset.Hex(), fixedpoint.String(amount))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry, err := s.ledger.Debit(ctx, dbTx, asset, caller, usd)
	if err != nil {
		return nil, err
	}

	event := domain.NewWithdrawEvent(caller, asset, amount, usd)
	if err := s.eventRepo.Create(ctx, dbTx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record event: %w", err))
	}

	// Funds move last; only Commit follows.
	if err := s.gateway.TransferOut(ctx, asset, caller, amount); err != nil {
		return nil, apperror.ErrTransferFailed(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		s.logUnrecorded(err, event)
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.dispatch(ctx, event)

	s.log.Info().
		Str("op", string(event.Type)).
		Str("asset", asset.Hex()).
		Str("user", caller.Hex()).
		Str("amount", fixedpoint.String(amount)).
		Str("usd", fixedpoint.String(usd)).
		Msg("withdrawal committed")

	return &ports.Receipt{Event: event, BalanceUSD: entry.Balance, TotalUSD: entry.Totals.TotalUSD}, nil
}

// SetAssetConfig lets an admin insert or overwrite an asset's config.
func (s *VaultServiceImpl) SetAssetConfig(ctx context.Context, caller, asset, oracle common.Address, enabled bool) (*domain.AssetConfig, error) {
	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if !s.admins.IsAdmin(caller) {
		return nil, apperror.ErrForbidden()
	}

	cfg, err := s.configure(ctx, caller, asset, oracle, enabled)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("op", string(domain.EventAssetConfigured)).
		Str("asset", asset.Hex()).
		Str("oracle", oracle.Hex()).
		Bool("enabled", enabled).
		Str("admin", caller.Hex()).
		Msg("asset configured")
	return cfg, nil
}

// configure writes the config and its event in one transaction. The guard
// must be held.
func (s *VaultServiceImpl) configure(ctx context.Context, actor, asset, oracle common.Address, enabled bool) (*domain.AssetConfig, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	cfg, err := s.registry.Configure(ctx, dbTx, asset, oracle, enabled)
	if err != nil {
		return nil, err
	}

	event := domain.NewAssetConfiguredEvent(actor, cfg)
	if err := s.eventRepo.Create(ctx, dbTx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record event: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.dispatch(ctx, event)
	return cfg, nil
}

// value prices amount of the asset described by cfg. The native currency is
// always priced through the construction-time oracle.
func (s *VaultServiceImpl) value(ctx context.Context, cfg *domain.AssetConfig, amount *uint256.Int) (*uint256.Int, error) {
	if domain.IsNative(cfg.Asset) {
		return s.valuation.ValueNative(ctx, s.params.NativeOracle, amount)
	}

	decimals, err := s.gateway.Decimals(ctx, cfg.Asset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("token decimals: %w", err))
	}
	return s.valuation.ValueToken(ctx, cfg.Oracle, amount, decimals)
}

// logUnrecorded reports a transfer that completed while its ledger write did
// not. Custody and the ledger disagree until an operator reconciles them.
func (s *VaultServiceImpl) logUnrecorded(err error, event *domain.Event) {
	s.log.Error().
		Err(err).
		Str("op", string(event.Type)).
		Str("event_id", event.ID.String()).
		Str("asset", event.Asset.Hex()).
		Str("user", event.Actor.Hex()).
		Str("amount", fixedpoint.String(event.Amount)).
		Str("usd", fixedpoint.String(event.USDValue)).
		Msg("transfer completed but ledger commit failed; reconcile custody")
}

func (s *VaultServiceImpl) dispatch(ctx context.Context, event *domain.Event) {
	if s.sink != nil {
		s.sink.Dispatch(ctx, event)
	}
}

// ---- Queries ----

// GetBalance returns the committed USD balance of user for asset.
func (s *VaultServiceImpl) GetBalance(ctx context.Context, asset, user common.Address) (*uint256.Int, error) {
	return s.ledger.Balance(ctx, asset, user)
}

// PreviewNativeToUSD values a native amount without touching state.
func (s *VaultServiceImpl) PreviewNativeToUSD(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	return s.valuation.ValueNative(ctx, s.params.NativeOracle, amount)
}

// PreviewTokenToUSD values a token amount without touching state. The asset
// needs a price feed but does not have to be enabled.
func (s *VaultServiceImpl) PreviewTokenToUSD(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if domain.IsNative(asset) {
		return s.PreviewNativeToUSD(ctx, amount)
	}

	cfg, err := s.registry.Lookup(ctx, asset)
	if err != nil {
		return nil, err
	}
	if !cfg.HasFeed() {
		return nil, apperror.ErrMissingPriceFeed(asset.Hex())
	}
	return s.value(ctx, cfg, amount)
}

// GetAsset returns the registry entry for asset (zero config if unknown).
func (s *VaultServiceImpl) GetAsset(ctx context.Context, asset common.Address) (*domain.AssetConfig, error) {
	return s.registry.Lookup(ctx, asset)
}

// GetTotals returns the committed vault totals.
func (s *VaultServiceImpl) GetTotals(ctx context.Context) (*domain.Totals, error) {
	return s.ledger.Totals(ctx)
}

// BankCap returns the construction-time cap.
func (s *VaultServiceImpl) BankCap() *uint256.Int {
	return s.params.BankCapUSD.Clone()
}

// ListEvents returns a page of recorded events.
func (s *VaultServiceImpl) ListEvents(ctx context.Context, params ports.EventListParams) ([]domain.Event, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultEventPageSize
	}
	if params.PageSize > maxEventPageSize {
		params.PageSize = maxEventPageSize
	}

	events, total, err := s.eventRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list events: %w", err))
	}
	return events, total, nil
}
