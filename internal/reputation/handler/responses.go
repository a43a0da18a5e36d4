package handler

import (
	"time"

	"ccms/internal/reputation/models"
	"ccms/pkg/domain"
)

type AccountResponse struct {
	Account      domain.AccountID `json:"account"`
	Scores       models.Scores    `json:"scores"`
	Composite    uint64           `json:"composite"`
	RegisteredAt time.Time        `json:"registered_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func toAccountResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		Account:      a.ID,
		Scores:       a.Scores,
		Composite:    a.Composite,
		RegisteredAt: a.RegisteredAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type CompositeResponse struct {
	Account   domain.AccountID `json:"account"`
	Composite uint64           `json:"composite"`
}

type CompositesResponse struct {
	Composites map[domain.AccountID]uint64 `json:"composites"`
}

type ConfigResponse struct {
	Controller  domain.AccountID `json:"controller"`
	Initialized bool             `json:"initialized"`
	Weights     models.Weights   `json:"weights"`
	TotalUsers  uint64           `json:"total_users"`
}

func toConfigResponse(c *models.Config) ConfigResponse {
	return ConfigResponse{
		Controller:  c.Controller,
		Initialized: c.Initialized,
		Weights:     c.Weights,
		TotalUsers:  c.TotalUsers,
	}
}
