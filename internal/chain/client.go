package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stablevault-keeper/pkg/utils"
)

var errNoSigner = errors.New("no keeper signer configured")

// Config holds chain connection configuration
type Config struct {
	RPCURL            string        `json:"rpc_url"`
	NetworkID         uint64        `json:"network_id"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	RetryAttempts     int           `json:"retry_attempts"`
	RetryDelay        time.Duration `json:"retry_delay"`
	VaultAddress      string        `json:"vault_address"`
	OracleHubAddress  string        `json:"oracle_hub_address"`
	TwapOracleAddress string        `json:"twap_oracle_address"`
	TokenAddress      string        `json:"stb_token_address"`
	KeeperPrivateKey  string        `json:"-"`
}

// Position mirrors the vault ledger's per-owner view call
type Position struct {
	Collateral           *big.Int
	DebtPrincipal        *big.Int
	AccruedFee           *big.Int
	DebtWithFee          *big.Int
	LastAccruedTimestamp *big.Int
	LastRiskActionBlock  *big.Int
}

// PriceStatus mirrors the oracle hub's combined price view call
type PriceStatus struct {
	EffectivePrice   *big.Int `json:"effective_price"`
	SpotPrice        *big.Int `json:"spot_price"`
	TwapPrice        *big.Int `json:"twap_price"`
	SpotUpdatedAt    uint64   `json:"spot_updated_at"`
	TwapUpdatedAt    uint64   `json:"twap_updated_at"`
	BreakerTriggered bool     `json:"breaker_triggered"`
}

// Client is the read/write boundary to the three protocol contracts.
// All errors returned by a Client are tagged (*Error) with a Kind.
type Client interface {
	// Chain state
	LatestBlock(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, blockNumber uint64) (uint64, error)

	// View calls
	GetPosition(ctx context.Context, owner common.Address) (*Position, error)
	GetCollateralRatioBps(ctx context.Context, owner common.Address) (*big.Int, error)
	IsLiquidatable(ctx context.Context, owner common.Address) (bool, error)
	SystemBadDebt(ctx context.Context) (*big.Int, error)
	ProtocolReserve(ctx context.Context) (*big.Int, error)
	PriceStatus(ctx context.Context) (*PriceStatus, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)

	// Write calls; each submits a transaction and waits for its receipt
	Liquidate(ctx context.Context, owner common.Address, repayAmount *big.Int) error
	Deposit(ctx context.Context, ethAmount *big.Int) error
	Mint(ctx context.Context, stbAmount *big.Int) error
	Approve(ctx context.Context, spender common.Address, amount *big.Int) error
	UpdateTwap(ctx context.Context, priceE18 *big.Int) error

	// Event retrieval
	FilterVaultEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*VaultEvent, error)
	SubscribeVaultEvents(ctx context.Context, sink chan<- *VaultEvent) (ethereum.Subscription, error)

	// Signer info
	HasSigner() bool
	KeeperAddress() common.Address
	VaultAddress() common.Address

	Close() error
}

// EthClient implements Client on top of go-ethereum's ethclient
type EthClient struct {
	cfg    *Config
	eth    *ethclient.Client
	logger *logrus.Logger

	vault *bind.BoundContract
	hub   *bind.BoundContract
	twap  *bind.BoundContract
	token *bind.BoundContract

	vaultAddr common.Address
	hubAddr   common.Address
	twapAddr  common.Address
	tokenAddr common.Address

	vaultABI   abi.ABI
	eventKinds map[common.Hash]EventKind

	signer     *bind.TransactOpts
	keeperAddr common.Address
}

// NewEthClient dials the RPC endpoint with retries and wires the contract
// bindings. The keeper signer is optional; without it all write calls fail
// with a config-tagged error.
func NewEthClient(ctx context.Context, cfg *Config) (*EthClient, error) {
	logger := utils.GetLogger()

	for _, pair := range []struct{ name, addr string }{
		{"vault_address", cfg.VaultAddress},
		{"oracle_hub_address", cfg.OracleHubAddress},
		{"twap_oracle_address", cfg.TwapOracleAddress},
		{"stb_token_address", cfg.TokenAddress},
	} {
		if !common.IsHexAddress(pair.addr) {
			return nil, newError(KindConfig, "NewEthClient",
				fmt.Errorf("invalid address for %s: %q", pair.name, pair.addr))
		}
	}

	eth, err := dialWithRetry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c := &EthClient{
		cfg:       cfg,
		eth:       eth,
		logger:    logger,
		vaultAddr: common.HexToAddress(cfg.VaultAddress),
		hubAddr:   common.HexToAddress(cfg.OracleHubAddress),
		twapAddr:  common.HexToAddress(cfg.TwapOracleAddress),
		tokenAddr: common.HexToAddress(cfg.TokenAddress),
	}

	vaultParsed, err := abi.JSON(strings.NewReader(stableVaultABI))
	if err != nil {
		return nil, newError(KindDecode, "NewEthClient", err)
	}
	hubParsed, err := abi.JSON(strings.NewReader(oracleHubABI))
	if err != nil {
		return nil, newError(KindDecode, "NewEthClient", err)
	}
	twapParsed, err := abi.JSON(strings.NewReader(twapOracleABI))
	if err != nil {
		return nil, newError(KindDecode, "NewEthClient", err)
	}
	tokenParsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, newError(KindDecode, "NewEthClient", err)
	}

	c.vaultABI = vaultParsed
	c.vault = bind.NewBoundContract(c.vaultAddr, vaultParsed, eth, eth, eth)
	c.hub = bind.NewBoundContract(c.hubAddr, hubParsed, eth, eth, eth)
	c.twap = bind.NewBoundContract(c.twapAddr, twapParsed, eth, eth, eth)
	c.token = bind.NewBoundContract(c.tokenAddr, tokenParsed, eth, eth, eth)

	c.eventKinds = map[common.Hash]EventKind{
		vaultParsed.Events[string(EventDeposited)].ID:  EventDeposited,
		vaultParsed.Events[string(EventWithdrawn)].ID:  EventWithdrawn,
		vaultParsed.Events[string(EventMinted)].ID:     EventMinted,
		vaultParsed.Events[string(EventRepaid)].ID:     EventRepaid,
		vaultParsed.Events[string(EventLiquidated)].ID: EventLiquidated,
	}

	if cfg.KeeperPrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.KeeperPrivateKey, "0x"))
		if err != nil {
			return nil, newError(KindConfig, "NewEthClient", fmt.Errorf("invalid keeper private key: %w", err))
		}
		signer, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(cfg.NetworkID))
		if err != nil {
			return nil, newError(KindConfig, "NewEthClient", err)
		}
		// Nonce is left unset so every transaction queries the pending nonce.
		// This survives node restarts and redeployments without tracking state.
		c.signer = signer
		c.keeperAddr = crypto.PubkeyToAddress(key.PublicKey)
		logger.WithField("keeper", c.keeperAddr.Hex()).Info("Keeper signer configured")
	} else {
		logger.Warn("No keeper signer configured, running in detection-only mode")
	}

	return c, nil
}

func dialWithRetry(ctx context.Context, cfg *Config, logger *logrus.Logger) (*ethclient.Client, error) {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
		cancel()
		if err == nil {
			networkID, err := eth.NetworkID(ctx)
			if err != nil {
				eth.Close()
				lastErr = err
			} else if cfg.NetworkID != 0 && networkID.Uint64() != cfg.NetworkID {
				eth.Close()
				return nil, newError(KindConfig, "dialWithRetry",
					fmt.Errorf("network id mismatch: expected %d, got %d", cfg.NetworkID, networkID.Uint64()))
			} else {
				logger.WithFields(logrus.Fields{
					"url":        cfg.RPCURL,
					"network_id": networkID.Uint64(),
				}).Info("Connected to RPC node")
				return eth, nil
			}
		} else {
			lastErr = err
		}

		logger.WithFields(logrus.Fields{
			"url":     cfg.RPCURL,
			"attempt": attempt,
			"error":   lastErr,
		}).Warn("RPC connection failed")

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, newError(KindRPC, "dialWithRetry", ctx.Err())
			case <-time.After(cfg.RetryDelay):
			}
		}
	}

	return nil, newError(KindRPC, "dialWithRetry", lastErr)
}

// call performs a view call and returns the raw output values
func (c *EthClient) call(ctx context.Context, contract *bind.BoundContract, op, method string, args ...interface{}) ([]interface{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: callCtx}, &out, method, args...); err != nil {
		kind := Classify(err)
		if kind == KindUnknown {
			kind = KindRPC
		}
		return nil, newError(kind, op, err)
	}
	return out, nil
}

// transact submits a state-changing call and waits for its receipt
func (c *EthClient) transact(ctx context.Context, contract *bind.BoundContract, op, method string, value *big.Int, args ...interface{}) error {
	if c.signer == nil {
		return newError(KindConfig, op, errNoSigner)
	}

	opts := *c.signer
	opts.Context = ctx
	opts.Value = value

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		kind := Classify(err)
		if kind == KindUnknown {
			kind = KindRPC
		}
		return newError(kind, op, err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return newError(KindRPC, op, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return newError(KindRevert, op, fmt.Errorf("transaction %s reverted", tx.Hash().Hex()))
	}

	c.logger.WithFields(logrus.Fields{
		"tx":     tx.Hash().Hex(),
		"method": method,
		"block":  receipt.BlockNumber.Uint64(),
	}).Debug("Transaction confirmed")

	return nil
}

func bigOut(out []interface{}, idx int, op string) (*big.Int, error) {
	if idx >= len(out) {
		return nil, newError(KindDecode, op, fmt.Errorf("missing output %d", idx))
	}
	v, ok := out[idx].(*big.Int)
	if !ok {
		return nil, newError(KindDecode, op, fmt.Errorf("output %d is not uint256", idx))
	}
	return v, nil
}

// LatestBlock returns the chain head block number
func (c *EthClient) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, newError(KindRPC, "LatestBlock", err)
	}
	return n, nil
}

// BlockTime returns the timestamp of the given block
func (c *EthClient) BlockTime(ctx context.Context, blockNumber uint64) (uint64, error) {
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, newError(KindRPC, "BlockTime", err)
	}
	return header.Time, nil
}

// GetPosition fetches the full position state for an owner
func (c *EthClient) GetPosition(ctx context.Context, owner common.Address) (*Position, error) {
	out, err := c.call(ctx, c.vault, "GetPosition", "getVault", owner)
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, newError(KindDecode, "GetPosition", fmt.Errorf("expected 6 outputs, got %d", len(out)))
	}

	pos := &Position{}
	for i, dst := range []**big.Int{
		&pos.Collateral, &pos.DebtPrincipal, &pos.AccruedFee,
		&pos.DebtWithFee, &pos.LastAccruedTimestamp, &pos.LastRiskActionBlock,
	} {
		v, err := bigOut(out, i, "GetPosition")
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return pos, nil
}

// GetCollateralRatioBps fetches the owner's collateral ratio in basis points
func (c *EthClient) GetCollateralRatioBps(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.vault, "GetCollateralRatioBps", "getCollateralRatioBps", owner)
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0, "GetCollateralRatioBps")
}

// IsLiquidatable checks on-chain liquidation eligibility
func (c *EthClient) IsLiquidatable(ctx context.Context, owner common.Address) (bool, error) {
	out, err := c.call(ctx, c.vault, "IsLiquidatable", "isLiquidatable", owner)
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, newError(KindDecode, "IsLiquidatable", fmt.Errorf("empty output"))
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, newError(KindDecode, "IsLiquidatable", fmt.Errorf("output is not bool"))
	}
	return v, nil
}

// SystemBadDebt returns the protocol-wide bad debt
func (c *EthClient) SystemBadDebt(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.vault, "SystemBadDebt", "getSystemBadDebt")
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0, "SystemBadDebt")
}

// ProtocolReserve returns the protocol stablecoin reserve
func (c *EthClient) ProtocolReserve(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.vault, "ProtocolReserve", "protocolReserveStb")
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0, "ProtocolReserve")
}

// PriceStatus returns the oracle hub's combined price view
func (c *EthClient) PriceStatus(ctx context.Context) (*PriceStatus, error) {
	out, err := c.call(ctx, c.hub, "PriceStatus", "getPriceStatus")
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, newError(KindDecode, "PriceStatus", fmt.Errorf("expected 6 outputs, got %d", len(out)))
	}

	status := &PriceStatus{}
	effective, err := bigOut(out, 0, "PriceStatus")
	if err != nil {
		return nil, err
	}
	spot, err := bigOut(out, 1, "PriceStatus")
	if err != nil {
		return nil, err
	}
	twapPrice, err := bigOut(out, 2, "PriceStatus")
	if err != nil {
		return nil, err
	}
	spotAt, err := bigOut(out, 3, "PriceStatus")
	if err != nil {
		return nil, err
	}
	twapAt, err := bigOut(out, 4, "PriceStatus")
	if err != nil {
		return nil, err
	}
	breaker, ok := out[5].(bool)
	if !ok {
		return nil, newError(KindDecode, "PriceStatus", fmt.Errorf("output 5 is not bool"))
	}

	status.EffectivePrice = effective
	status.SpotPrice = spot
	status.TwapPrice = twapPrice
	status.SpotUpdatedAt = spotAt.Uint64()
	status.TwapUpdatedAt = twapAt.Uint64()
	status.BreakerTriggered = breaker
	return status, nil
}

// Allowance returns the token allowance from owner to spender
func (c *EthClient) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.token, "Allowance", "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0, "Allowance")
}

// BalanceOf returns the token balance of an account
func (c *EthClient) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.token, "BalanceOf", "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return bigOut(out, 0, "BalanceOf")
}

// Liquidate executes a liquidation against an owner
func (c *EthClient) Liquidate(ctx context.Context, owner common.Address, repayAmount *big.Int) error {
	return c.transact(ctx, c.vault, "Liquidate", "liquidate", nil, owner, repayAmount)
}

// Deposit adds ETH collateral to the keeper's own position
func (c *EthClient) Deposit(ctx context.Context, ethAmount *big.Int) error {
	return c.transact(ctx, c.vault, "Deposit", "deposit", ethAmount, ethAmount)
}

// Mint mints stablecoin against the keeper's collateral
func (c *EthClient) Mint(ctx context.Context, stbAmount *big.Int) error {
	return c.transact(ctx, c.vault, "Mint", "mint", nil, stbAmount)
}

// Approve sets the keeper's token allowance for a spender
func (c *EthClient) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	return c.transact(ctx, c.token, "Approve", "approve", nil, spender, amount)
}

// UpdateTwap publishes a new TWAP value on-chain
func (c *EthClient) UpdateTwap(ctx context.Context, priceE18 *big.Int) error {
	return c.transact(ctx, c.twap, "UpdateTwap", "updateTwap", nil, priceE18)
}

// FilterVaultEvents fetches and decodes all tracked vault events in the
// inclusive block range
func (c *EthClient) FilterVaultEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*VaultEvent, error) {
	topics := make([]common.Hash, 0, len(c.eventKinds))
	for id := range c.eventKinds {
		topics = append(topics, id)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.vaultAddr},
		Topics:    [][]common.Hash{topics},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, newError(KindRPC, "FilterVaultEvents", err)
	}

	events := make([]*VaultEvent, 0, len(logs))
	for _, log := range logs {
		event, err := c.decodeVaultLog(log)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"tx_hash": log.TxHash.Hex(),
				"error":   err,
			}).Warn("Failed to decode vault log")
			continue
		}
		if event != nil {
			events = append(events, event)
		}
	}

	return events, nil
}

// SubscribeVaultEvents installs a live log subscription and forwards decoded
// events into sink until the subscription errors or ctx is cancelled
func (c *EthClient) SubscribeVaultEvents(ctx context.Context, sink chan<- *VaultEvent) (ethereum.Subscription, error) {
	topics := make([]common.Hash, 0, len(c.eventKinds))
	for id := range c.eventKinds {
		topics = append(topics, id)
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.vaultAddr},
		Topics:    [][]common.Hash{topics},
	}

	logs := make(chan types.Log, 64)
	sub, err := c.eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, newError(KindRPC, "SubscribeVaultEvents", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					c.logger.WithField("error", err).Warn("Vault event subscription closed")
				}
				return
			case log := <-logs:
				event, err := c.decodeVaultLog(log)
				if err != nil {
					c.logger.WithFields(logrus.Fields{
						"tx_hash": log.TxHash.Hex(),
						"error":   err,
					}).Warn("Failed to decode live vault log")
					continue
				}
				if event == nil {
					continue
				}
				select {
				case sink <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}

// HasSigner reports whether a keeper signer is configured
func (c *EthClient) HasSigner() bool {
	return c.signer != nil
}

// KeeperAddress returns the keeper signer's address (zero without a signer)
func (c *EthClient) KeeperAddress() common.Address {
	return c.keeperAddr
}

// VaultAddress returns the vault contract address
func (c *EthClient) VaultAddress() common.Address {
	return c.vaultAddr
}

// Close releases the underlying RPC connection
func (c *EthClient) Close() error {
	c.eth.Close()
	return nil
}
