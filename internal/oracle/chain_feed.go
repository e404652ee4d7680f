package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alta-labs/wagerd/internal/domain"
)

// aggregatorABI is the read surface of a price feed aggregator proxy.
const aggregatorABI = `[
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"name":"latestRoundData","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]},
  {"name":"getRoundData","type":"function","stateMutability":"view","inputs":[{"name":"_roundId","type":"uint80"}],"outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]}
]`

var (
	parseAggregatorOnce sync.Once
	parsedAggregator    abi.ABI
	parseAggregatorErr  error
)

func aggregatorParsed() (abi.ABI, error) {
	parseAggregatorOnce.Do(func() {
		parsedAggregator, parseAggregatorErr = abi.JSON(strings.NewReader(aggregatorABI))
	})
	return parsedAggregator, parseAggregatorErr
}

// ChainFeed adapts an on-chain aggregator proxy to domain.PriceFeed.
type ChainFeed struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewChainFeed binds the aggregator at address over the given RPC client.
func NewChainFeed(client *ethclient.Client, address common.Address) (*ChainFeed, error) {
	parsed, err := aggregatorParsed()
	if err != nil {
		return nil, fmt.Errorf("oracle: parse aggregator abi: %w", err)
	}
	return &ChainFeed{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
	}, nil
}

// Decimals implements domain.PriceFeed.
func (f *ChainFeed) Decimals(ctx context.Context) (uint8, error) {
	var out []any
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("oracle: decimals %s: %w", f.address.Hex(), err)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("oracle: decimals %s: unexpected type %T", f.address.Hex(), out[0])
	}
	return d, nil
}

// LatestRoundData implements domain.PriceFeed.
func (f *ChainFeed) LatestRoundData(ctx context.Context) (domain.RoundData, error) {
	var out []any
	if err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "latestRoundData"); err != nil {
		return domain.RoundData{}, fmt.Errorf("oracle: latestRoundData %s: %w", f.address.Hex(), err)
	}
	return decodeRound(out)
}

// GetRoundData implements domain.PriceFeed. Aggregator proxies revert with
// "No data present" for unreported round ids; that case is mapped to zeroed
// round data so callers can treat skipped rounds uniformly.
func (f *ChainFeed) GetRoundData(ctx context.Context, roundID *big.Int) (domain.RoundData, error) {
	var out []any
	err := f.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getRoundData", roundID)
	if err != nil {
		if strings.Contains(err.Error(), "No data present") || strings.Contains(err.Error(), "execution reverted") {
			return domain.RoundData{RoundID: new(big.Int).Set(roundID)}, nil
		}
		return domain.RoundData{}, fmt.Errorf("oracle: getRoundData %s round %s: %w", f.address.Hex(), roundID, err)
	}
	return decodeRound(out)
}

func decodeRound(out []any) (domain.RoundData, error) {
	if len(out) != 5 {
		return domain.RoundData{}, fmt.Errorf("oracle: unexpected round tuple length %d", len(out))
	}
	roundID, ok := out[0].(*big.Int)
	if !ok {
		return domain.RoundData{}, fmt.Errorf("oracle: round id type %T", out[0])
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return domain.RoundData{}, fmt.Errorf("oracle: answer type %T", out[1])
	}
	startedAt, ok := out[2].(*big.Int)
	if !ok {
		return domain.RoundData{}, fmt.Errorf("oracle: startedAt type %T", out[2])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return domain.RoundData{}, fmt.Errorf("oracle: updatedAt type %T", out[3])
	}
	answeredIn, ok := out[4].(*big.Int)
	if !ok {
		return domain.RoundData{}, fmt.Errorf("oracle: answeredInRound type %T", out[4])
	}
	return domain.RoundData{
		RoundID:         roundID,
		Price:           answer,
		StartedAt:       startedAt.Int64(),
		UpdatedAt:       updatedAt.Int64(),
		AnsweredInRound: answeredIn,
	}, nil
}

// ChainOpener opens ChainFeeds over a shared RPC client.
type ChainOpener struct {
	client *ethclient.Client
}

// NewChainOpener wraps an RPC client as a FeedOpener.
func NewChainOpener(client *ethclient.Client) *ChainOpener {
	return &ChainOpener{client: client}
}

// Open implements domain.FeedOpener.
func (o *ChainOpener) Open(oracle common.Address) (domain.PriceFeed, error) {
	return NewChainFeed(o.client, oracle)
}

// Compile-time interface checks.
var (
	_ domain.PriceFeed  = (*ChainFeed)(nil)
	_ domain.FeedOpener = (*ChainOpener)(nil)
)
