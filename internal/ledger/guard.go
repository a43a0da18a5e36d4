// Package ledger holds the building blocks shared by the reputation and
// staking ledgers: the lifecycle guard, the account registry, the
// copy-then-swap state holder and overflow-checked arithmetic.
package ledger

import (
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
)

// Guard enforces the single-controller, initialize-once lifecycle.
// Controller is fixed when the ledger is created; Initialized flips to true
// exactly once and never back.
type Guard struct {
	Controller  domain.AccountID
	Initialized bool
}

// NewGuard returns an uninitialized guard owned by controller.
func NewGuard(controller domain.AccountID) Guard {
	return Guard{Controller: controller}
}

// RequireController fails with CodeUnauthorized unless caller is the controller.
func (g Guard) RequireController(caller domain.AccountID) error {
	if caller.IsZero() || caller != g.Controller {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the ledger controller")
	}
	return nil
}

// RequireInitialized fails with CodeNotInitialized before initialization.
func (g Guard) RequireInitialized() error {
	if !g.Initialized {
		return dErrors.New(dErrors.CodeNotInitialized, "ledger is not initialized")
	}
	return nil
}

// RequirePrivileged checks a controller-only mutation: Unauthorized first,
// then NotInitialized.
func (g Guard) RequirePrivileged(caller domain.AccountID) error {
	if err := g.RequireController(caller); err != nil {
		return err
	}
	return g.RequireInitialized()
}

// CanInitialize checks Unauthorized then AlreadyInitialized.
func (g Guard) CanInitialize(caller domain.AccountID) error {
	if err := g.RequireController(caller); err != nil {
		return err
	}
	if g.Initialized {
		return dErrors.New(dErrors.CodeAlreadyInitialized, "ledger is already initialized")
	}
	return nil
}

// ApplyInitialization marks the ledger initialized. Call only after
// CanInitialize succeeded and the configuration payload was stored.
func (g *Guard) ApplyInitialization() {
	g.Initialized = true
}
