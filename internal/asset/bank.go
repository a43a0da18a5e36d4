// Package asset is a fungible asset ledger. It plays the asset transfer
// collaborator for the staking ledger: holders opt in before they can
// receive, transfers return receipts, and receipts can be checked for
// settlement. Bank keeps holdings in memory; store/postgres persists them.
package asset

import (
	"context"
	"errors"
	"sync"

	"ccms/internal/ledger"
	"ccms/pkg/domain"
)

var (
	ErrUnknownAsset      = errors.New("asset does not exist")
	ErrAssetExists       = errors.New("asset already exists")
	ErrNotOptedIn        = errors.New("receiver has not opted in to the asset")
	ErrInsufficientFunds = errors.New("sender holds less than the transfer amount")
	ErrInvalidAmount     = errors.New("transfer amount must be positive")
	ErrSelfTransfer      = errors.New("sender and receiver must differ")
	ErrSupplyOverflow    = errors.New("holding would overflow")
)

// Transfer is a settled movement of an asset between two holders.
type Transfer struct {
	ID      domain.TransferID `json:"id"`
	AssetID domain.AssetID    `json:"asset_id"`
	From    domain.AccountID  `json:"from"`
	To      domain.AccountID  `json:"to"`
	Amount  uint64            `json:"amount"`
}

// Ledger is implemented by the in-process Bank and the Postgres store.
type Ledger interface {
	Mint(ctx context.Context, asset domain.AssetID, issuer domain.AccountID, supply uint64) error
	OptIn(ctx context.Context, asset domain.AssetID, holder domain.AccountID) error
	Transfer(ctx context.Context, asset domain.AssetID, from, to domain.AccountID, amount uint64) (Transfer, error)
	Settled(ctx context.Context, t Transfer) (bool, error)
	Balance(ctx context.Context, asset domain.AssetID, holder domain.AccountID) (uint64, error)
}

var _ Ledger = (*Bank)(nil)

type holdings map[domain.AccountID]uint64

// Bank holds every asset's balances. The zero value is not usable; call
// NewBank.
type Bank struct {
	mu        sync.RWMutex
	issuers   map[domain.AssetID]domain.AccountID
	balances  map[domain.AssetID]holdings
	transfers map[domain.TransferID]Transfer
}

func NewBank() *Bank {
	return &Bank{
		issuers:   make(map[domain.AssetID]domain.AccountID),
		balances:  make(map[domain.AssetID]holdings),
		transfers: make(map[domain.TransferID]Transfer),
	}
}

// Mint creates asset with supply held by issuer. The issuer is opted in.
func (b *Bank) Mint(_ context.Context, asset domain.AssetID, issuer domain.AccountID, supply uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.issuers[asset]; ok {
		return ErrAssetExists
	}
	b.issuers[asset] = issuer
	b.balances[asset] = holdings{issuer: supply}
	return nil
}

// OptIn lets holder receive asset. Opting in twice is a no-op.
func (b *Bank) OptIn(_ context.Context, asset domain.AssetID, holder domain.AccountID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.balances[asset]
	if !ok {
		return ErrUnknownAsset
	}
	if _, opted := h[holder]; !opted {
		h[holder] = 0
	}
	return nil
}

// Transfer moves amount of asset from one holder to another and returns the
// receipt.
func (b *Bank) Transfer(_ context.Context, asset domain.AssetID, from, to domain.AccountID, amount uint64) (Transfer, error) {
	if amount == 0 {
		return Transfer{}, ErrInvalidAmount
	}
	if from == to {
		return Transfer{}, ErrSelfTransfer
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.balances[asset]
	if !ok {
		return Transfer{}, ErrUnknownAsset
	}
	toBalance, opted := h[to]
	if !opted {
		return Transfer{}, ErrNotOptedIn
	}
	fromBalance, err := ledger.SubUint64(h[from], amount)
	if err != nil {
		return Transfer{}, ErrInsufficientFunds
	}
	if toBalance, err = ledger.AddUint64(toBalance, amount); err != nil {
		return Transfer{}, ErrSupplyOverflow
	}
	h[from] = fromBalance
	h[to] = toBalance

	t := Transfer{
		ID:      domain.NewTransferID(),
		AssetID: asset,
		From:    from,
		To:      to,
		Amount:  amount,
	}
	b.transfers[t.ID] = t
	return t, nil
}

// Settled reports whether t matches a transfer this bank executed, field for
// field.
func (b *Bank) Settled(_ context.Context, t Transfer) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	recorded, ok := b.transfers[t.ID]
	return ok && recorded == t, nil
}

// Balance returns holder's holding of asset. Holders that never opted in
// hold zero.
func (b *Bank) Balance(_ context.Context, asset domain.AssetID, holder domain.AccountID) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.balances[asset]
	if !ok {
		return 0, ErrUnknownAsset
	}
	return h[holder], nil
}
