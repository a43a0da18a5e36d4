package handler

import (
	"time"

	"ccms/internal/staking/models"
	"ccms/pkg/domain"
)

type AccountResponse struct {
	Account       domain.AccountID `json:"account"`
	StakedBalance uint64           `json:"staked_balance"`
	RegisteredAt  time.Time        `json:"registered_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func toAccountResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		Account:       a.ID,
		StakedBalance: a.StakedBalance,
		RegisteredAt:  a.RegisteredAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type StakeResponse struct {
	Account       domain.AccountID `json:"account"`
	StakedBalance uint64           `json:"staked_balance"`
}

type VoteWeightResponse struct {
	Account    domain.AccountID `json:"account"`
	VoteWeight uint64           `json:"vote_weight"`
}

type ConfigResponse struct {
	Controller          domain.AccountID `json:"controller"`
	Escrow              domain.AccountID `json:"escrow"`
	Initialized         bool             `json:"initialized"`
	AssetID             domain.AssetID   `json:"asset_id"`
	GovernanceThreshold uint64           `json:"governance_threshold"`
	TotalStaked         uint64           `json:"total_staked"`
	TotalUsers          uint64           `json:"total_users"`
}

func toConfigResponse(c *models.Config) ConfigResponse {
	return ConfigResponse{
		Controller:          c.Controller,
		Escrow:              c.Escrow,
		Initialized:         c.Initialized,
		AssetID:             c.AssetID,
		GovernanceThreshold: c.GovernanceThreshold,
		TotalStaked:         c.TotalStaked,
		TotalUsers:          c.TotalUsers,
	}
}

type ReconcileResponse struct {
	AssetID       domain.AssetID   `json:"asset_id"`
	Escrow        domain.AccountID `json:"escrow"`
	TotalStaked   uint64           `json:"total_staked"`
	EscrowHolding uint64           `json:"escrow_holding"`
	Balanced      bool             `json:"balanced"`
	Covered       bool             `json:"covered"`
}

func toReconcileResponse(r models.Reconciliation) ReconcileResponse {
	return ReconcileResponse{
		AssetID:       r.AssetID,
		Escrow:        r.Escrow,
		TotalStaked:   r.TotalStaked,
		EscrowHolding: r.EscrowHolding,
		Balanced:      r.Balanced(),
		Covered:       r.Covered(),
	}
}
