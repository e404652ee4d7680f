// Package access implements the single-owner privileged-operation gate used
// by the wager registry and its administrative surface.
package access

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alta-labs/wagerd/internal/domain"
)

// Controller holds the owner and fee addresses. It starts uninitialized;
// Init may be called exactly once, after which owner-gated operations are
// available and a second Init fails.
type Controller struct {
	mu      sync.RWMutex
	inited  bool
	owner   common.Address
	feeAddr common.Address
}

// NewController returns an uninitialized Controller.
func NewController() *Controller {
	return &Controller{}
}

// Init performs the one-time setup, assigning the fee recipient and owner.
func (c *Controller) Init(feeAddr, owner common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inited {
		return domain.ErrAlreadyInit
	}
	c.inited = true
	c.feeAddr = feeAddr
	c.owner = owner
	return nil
}

// Initialized reports whether Init has run.
func (c *Controller) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inited
}

// Require returns nil when caller is the owner, domain.ErrNotOwner otherwise.
// An uninitialized controller rejects every caller.
func (c *Controller) Require(caller common.Address) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.inited {
		return domain.ErrNotInitialized
	}
	if caller != c.owner {
		return domain.ErrNotOwner
	}
	return nil
}

// Owner returns the current owner address.
func (c *Controller) Owner() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

// FeeAddress returns the protocol fee recipient.
func (c *Controller) FeeAddress() common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feeAddr
}

// TransferOwnership hands the owner role to newOwner. Only the current owner
// may call it.
func (c *Controller) TransferOwnership(caller, newOwner common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inited {
		return domain.ErrNotInitialized
	}
	if caller != c.owner {
		return domain.ErrNotOwner
	}
	c.owner = newOwner
	return nil
}
