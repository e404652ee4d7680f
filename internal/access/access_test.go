package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alta-labs/wagerd/internal/domain"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	feeAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000c2")
)

func TestInitOnce(t *testing.T) {
	c := NewController()
	require.False(t, c.Initialized())

	require.NoError(t, c.Init(feeAddr, owner))
	assert.True(t, c.Initialized())
	assert.Equal(t, owner, c.Owner())
	assert.Equal(t, feeAddr, c.FeeAddress())

	err := c.Init(feeAddr, stranger)
	assert.ErrorIs(t, err, domain.ErrAlreadyInit)
	assert.Equal(t, owner, c.Owner())
}

func TestRequire(t *testing.T) {
	c := NewController()
	assert.ErrorIs(t, c.Require(owner), domain.ErrNotInitialized)

	require.NoError(t, c.Init(feeAddr, owner))
	assert.NoError(t, c.Require(owner))
	assert.ErrorIs(t, c.Require(stranger), domain.ErrNotOwner)
}

func TestTransferOwnership(t *testing.T) {
	c := NewController()
	require.NoError(t, c.Init(feeAddr, owner))

	assert.ErrorIs(t, c.TransferOwnership(stranger, stranger), domain.ErrNotOwner)

	require.NoError(t, c.TransferOwnership(owner, stranger))
	assert.Equal(t, stranger, c.Owner())
	assert.NoError(t, c.Require(stranger))
	assert.ErrorIs(t, c.Require(owner), domain.ErrNotOwner)
}
