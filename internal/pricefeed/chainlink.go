package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	aggregatorABIJSON = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`
)

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise one aggregator feed.
type ChainlinkOptions struct {
	RPCURL      string
	FeedAddress string
	Timeout     time.Duration
}

// Chainlink reads latestRoundData from one price feed aggregator contract.
// Each configured asset gets its own Chainlink instance; calls are never
// batched across feeds.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewChainlink builds a feed reader for a single aggregator address.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{
		opts:   opts,
		logger: logger.With().Str("component", "chainlink_feed").Str("feed", opts.FeedAddress).Logger(),
	}
}

// Latest retrieves the current round for this feed.
func (c *Chainlink) Latest(ctx context.Context) (Observation, error) {
	if c.opts.RPCURL == "" {
		return Observation{}, fmt.Errorf("%w: rpc url not configured", ErrPriceUnavailable)
	}
	if c.opts.FeedAddress == "" {
		return Observation{}, fmt.Errorf("%w: feed address not configured", ErrPriceUnavailable)
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: dial rpc: %v", ErrPriceUnavailable, err)
	}

	addr := common.HexToAddress(c.opts.FeedAddress)
	payload, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return Observation{}, fmt.Errorf("%w: pack call: %v", ErrPriceUnavailable, err)
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: call latestRoundData: %v", ErrPriceUnavailable, err)
	}
	if len(res) == 0 {
		return Observation{}, fmt.Errorf("%w: empty call result (no aggregator at %s?)", ErrPriceUnavailable, c.opts.FeedAddress)
	}

	obs, err := decodeRoundData(res)
	if err != nil {
		return Observation{}, err
	}

	c.logger.Debug().
		Str("round", obs.RoundID.String()).
		Str("answer", obs.Answer.String()).
		Time("updated_at", obs.UpdatedTime()).
		Msg("fetched latest round")

	return obs, nil
}

func decodeRoundData(res []byte) (Observation, error) {
	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: decode response: %v", ErrPriceUnavailable, err)
	}
	if len(outputs) != 5 {
		return Observation{}, fmt.Errorf("%w: unexpected latestRoundData response", ErrPriceUnavailable)
	}

	roundID, ok := outputs[0].(*big.Int)
	if !ok {
		return Observation{}, malformedField("roundId")
	}
	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return Observation{}, malformedField("answer")
	}
	startedAt, ok := outputs[2].(*big.Int)
	if !ok {
		return Observation{}, malformedField("startedAt")
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return Observation{}, malformedField("updatedAt")
	}
	answeredInRound, ok := outputs[4].(*big.Int)
	if !ok {
		return Observation{}, malformedField("answeredInRound")
	}

	return Observation{
		RoundID:         roundID,
		Answer:          answer,
		StartedAt:       startedAt.Uint64(),
		UpdatedAt:       updatedAt.Uint64(),
		AnsweredInRound: answeredInRound,
	}, nil
}

func malformedField(name string) error {
	return fmt.Errorf("%w: failed to decode %s", ErrPriceUnavailable, name)
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ Source = (*Chainlink)(nil)
