package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Access control.
	ErrNotOwner       = errors.New("caller is not the owner")
	ErrNotInitialized = errors.New("registry not initialized")
	ErrAlreadyInit    = errors.New("registry already initialized")

	// Wager validation.
	ErrUnknownWagerToken   = errors.New("token not on wager allow-list")
	ErrUnknownPaymentToken = errors.New("token not on payment allow-list")
	ErrDurationTooShort    = errors.New("wager duration must be at least 1 day")
	ErrWagerTooSmall       = errors.New("wager amount less than $10")
	ErrLockupTooLong       = errors.New("lockup must be 50 years or less")

	// Wager state machine.
	ErrCannotFillOwnWager = errors.New("cannot fill own wager")
	ErrP2PRestricted      = errors.New("p2p restricted")
	ErrAlreadyFilled      = errors.New("wager already filled")
	ErrNotFilled          = errors.New("wager not filled")
	ErrAlreadyRedeemed    = errors.New("wager already redeemed")
	ErrWagerClosed        = errors.New("wager closed")
	ErrNotRedeemable      = errors.New("wager deadline not reached")
	ErrStillLocked        = errors.New("lockup period not elapsed")

	// Escrow.
	ErrValueMismatch     = errors.New("native value does not match amount")
	ErrInsufficientFunds = errors.New("insufficient balance or allowance")

	// Oracle resolution.
	ErrNoRoundForTimestamp = errors.New("no oracle round at or before timestamp")
	ErrRoundNotFound       = errors.New("oracle round has no data")
)
