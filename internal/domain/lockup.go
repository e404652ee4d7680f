package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxLockupDuration caps lockups at 50 years.
const MaxLockupDuration = 50 * 365 * 24 * time.Hour

// Lockup is a time-locked escrow entry with no settlement logic. Index is
// the position within the owner's lockup list.
type Lockup struct {
	ID        int64
	Index     int
	Owner     common.Address
	Token     common.Address
	Amount    *big.Int
	LockedAt  time.Time
	ReleaseAt time.Time
	Unlocked  bool
}
