package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Operator signs escrow transactions with the custody account's key. The
// custody account both receives collected escrow and pays out settlements.
type Operator struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewOperator creates an Operator from a hex-encoded secp256k1 private key
// and the target chain ID.
func NewOperator(privateKeyHex string, chainID int64) (*Operator, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/operator: invalid private key: %w", err)
	}
	return &Operator{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    big.NewInt(chainID),
	}, nil
}

// Address returns the custody account address.
func (o *Operator) Address() common.Address {
	return o.address
}

// ChainID returns the configured chain id.
func (o *Operator) ChainID() *big.Int {
	return new(big.Int).Set(o.chainID)
}

// TransactOpts builds bind transact options signing with the operator key.
func (o *Operator) TransactOpts() (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(o.privateKey, o.chainID)
	if err != nil {
		return nil, fmt.Errorf("crypto/operator: transactor: %w", err)
	}
	return opts, nil
}

// SignTx signs a raw transaction (used for native-currency payouts, which
// have no contract binding).
func (o *Operator) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(o.chainID), o.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/operator: sign tx: %w", err)
	}
	return signed, nil
}
