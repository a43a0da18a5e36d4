package handler

import (
	"ccms/internal/reputation/models"
	dErrors "ccms/pkg/domain-errors"
)

// maxBatchAccounts bounds GET /reputation/composites.
const maxBatchAccounts = 100

// InitializeRequest is the body of POST /reputation/initialize.
type InitializeRequest struct {
	Weights *models.Weights `json:"weights"`
}

// Validate implements httputil.Validatable.
func (r *InitializeRequest) Validate() error {
	if r == nil || r.Weights == nil {
		return dErrors.New(dErrors.CodeBadRequest, "weights are required")
	}
	return nil
}

// UpdateScoresRequest is the body of POST /reputation/accounts/{account}/scores.
// Omitted pillars are zero.
type UpdateScoresRequest struct {
	Attendance    uint64 `json:"attendance"`
	Voting        uint64 `json:"voting"`
	Feedback      uint64 `json:"feedback"`
	Certification uint64 `json:"certification"`
}

// Validate implements httputil.Validatable. Every non-negative delta,
// including all-zero, is accepted.
func (r *UpdateScoresRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

func (r *UpdateScoresRequest) delta() models.Delta {
	return models.Delta{
		Attendance:    r.Attendance,
		Voting:        r.Voting,
		Feedback:      r.Feedback,
		Certification: r.Certification,
	}
}
