package handler

import (
	"ccms/internal/asset"
	"ccms/internal/staking/models"
	dErrors "ccms/pkg/domain-errors"
)

// InitializeRequest is the body of POST /staking/initialize. An omitted
// threshold keeps the default.
type InitializeRequest struct {
	AssetID             uint64  `json:"asset_id"`
	GovernanceThreshold *uint64 `json:"governance_threshold"`
}

// Validate implements httputil.Validatable.
func (r *InitializeRequest) Validate() error {
	if r == nil || r.AssetID == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "asset_id is required")
	}
	return nil
}

func (r *InitializeRequest) threshold() uint64 {
	if r.GovernanceThreshold == nil {
		return models.DefaultGovernanceThreshold
	}
	return *r.GovernanceThreshold
}

// StakeRequest is the body of POST /staking/stake: the receipt of a transfer
// the caller already sent to the escrow.
type StakeRequest struct {
	Transfer *asset.Transfer `json:"transfer"`
}

// Validate implements httputil.Validatable. Only presence is checked here;
// the ledger decides whether the receipt is a valid deposit.
func (r *StakeRequest) Validate() error {
	if r == nil || r.Transfer == nil {
		return dErrors.New(dErrors.CodeBadRequest, "transfer receipt is required")
	}
	if r.Transfer.ID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "transfer id is required")
	}
	return nil
}

// WithdrawRequest is the body of POST /staking/withdraw.
type WithdrawRequest struct {
	Amount uint64 `json:"amount"`
}

// Validate implements httputil.Validatable.
func (r *WithdrawRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}
