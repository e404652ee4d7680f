package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alta-labs/wagerd/internal/crypto"
	"github.com/alta-labs/wagerd/internal/domain"
)

// erc20ABI covers the transfer surface the adapter needs.
const erc20ABI = `[
  {"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// nativeTransferGas is the gas limit for a plain value transfer.
const nativeTransferGas = 21_000

// ChainAdapter implements Adapter against live token contracts. Escrow is
// custodied by the operator account: Collect pulls ERC20 funds with
// transferFrom (callers must have approved the custody address), Payout
// transfers out of custody. Native-currency escrow is delivered by
// value-carrying deposits to the custody address; Collect verifies the
// attached value and the on-chain custody balance before accepting it.
type ChainAdapter struct {
	client   *ethclient.Client
	operator *crypto.Operator
	parsed   abi.ABI
	logger   *slog.Logger

	mu            sync.Mutex
	nativeTracked *big.Int // native escrow accepted so far
}

// NewChainAdapter builds a ChainAdapter over the given RPC client and
// operator key.
func NewChainAdapter(client *ethclient.Client, operator *crypto.Operator, logger *slog.Logger) (*ChainAdapter, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("escrow: parse erc20 abi: %w", err)
	}
	return &ChainAdapter{
		client:        client,
		operator:      operator,
		parsed:        parsed,
		logger:        logger.With(slog.String("component", "escrow")),
		nativeTracked: new(big.Int),
	}, nil
}

// Collect implements Adapter.
func (a *ChainAdapter) Collect(ctx context.Context, token, from common.Address, amount, value *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("escrow: non-positive amount: %w", domain.ErrInsufficientFunds)
	}

	if token == domain.NativeToken {
		return a.collectNative(ctx, from, amount, value)
	}
	if value != nil && value.Sign() != 0 {
		return fmt.Errorf("escrow: token collect carries native value: %w", domain.ErrValueMismatch)
	}

	contract := bind.NewBoundContract(token, a.parsed, a.client, a.client, a.client)

	// Fail fast on missing allowance; the transferFrom would revert anyway
	// but this surfaces a typed error instead of a raw execution failure.
	var out []any
	err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", from, a.operator.Address())
	if err != nil {
		return fmt.Errorf("escrow: allowance %s: %w", token.Hex(), err)
	}
	if allowance, ok := out[0].(*big.Int); ok && allowance.Cmp(amount) < 0 {
		return fmt.Errorf("escrow: allowance %s below %s: %w", allowance, amount, domain.ErrInsufficientFunds)
	}

	opts, err := a.operator.TransactOpts()
	if err != nil {
		return err
	}
	opts.Context = ctx

	tx, err := contract.Transact(opts, "transferFrom", from, a.operator.Address(), amount)
	if err != nil {
		return fmt.Errorf("escrow: transferFrom %s: %w", token.Hex(), err)
	}
	return a.waitMined(ctx, tx)
}

// Payout implements Adapter.
func (a *ChainAdapter) Payout(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	if token == domain.NativeToken {
		return a.payoutNative(ctx, to, amount)
	}

	contract := bind.NewBoundContract(token, a.parsed, a.client, a.client, a.client)
	opts, err := a.operator.TransactOpts()
	if err != nil {
		return err
	}
	opts.Context = ctx

	tx, err := contract.Transact(opts, "transfer", to, amount)
	if err != nil {
		return fmt.Errorf("escrow: transfer %s: %w", token.Hex(), err)
	}
	return a.waitMined(ctx, tx)
}

func (a *ChainAdapter) collectNative(ctx context.Context, from common.Address, amount, value *big.Int) error {
	if value == nil || value.Cmp(amount) != 0 {
		return fmt.Errorf("escrow: collect native from %s: %w", from.Hex(), domain.ErrValueMismatch)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	balance, err := a.client.BalanceAt(ctx, a.operator.Address(), nil)
	if err != nil {
		return fmt.Errorf("escrow: custody balance: %w", err)
	}
	need := new(big.Int).Add(a.nativeTracked, amount)
	if balance.Cmp(need) < 0 {
		return fmt.Errorf("escrow: native deposit not received: %w", domain.ErrInsufficientFunds)
	}
	a.nativeTracked = need
	return nil
}

func (a *ChainAdapter) payoutNative(ctx context.Context, to common.Address, amount *big.Int) error {
	nonce, err := a.client.PendingNonceAt(ctx, a.operator.Address())
	if err != nil {
		return fmt.Errorf("escrow: nonce: %w", err)
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("escrow: gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, amount, nativeTransferGas, gasPrice, nil)
	signed, err := a.operator.SignTx(tx)
	if err != nil {
		return err
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("escrow: send native payout: %w", err)
	}

	a.mu.Lock()
	if a.nativeTracked.Cmp(amount) >= 0 {
		a.nativeTracked.Sub(a.nativeTracked, amount)
	}
	a.mu.Unlock()

	return a.waitMined(ctx, signed)
}

func (a *ChainAdapter) waitMined(ctx context.Context, tx *types.Transaction) error {
	receipt, err := bind.WaitMined(ctx, a.client, tx)
	if err != nil {
		return fmt.Errorf("escrow: wait mined %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("escrow: transaction %s reverted", tx.Hash().Hex())
	}
	a.logger.Debug("escrow transfer mined",
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}

// Compile-time interface check.
var _ Adapter = (*ChainAdapter)(nil)
