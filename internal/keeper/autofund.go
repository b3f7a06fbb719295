package keeper

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stablevault-keeper/internal/models"
)

// maxUint256 is the unlimited ERC-20 approval amount
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// AutoFundConfig controls keeper self-funding
type AutoFundConfig struct {
	Enabled    bool          `json:"enabled"`
	Cooldown   time.Duration `json:"cooldown"`
	DepositEth string        `json:"deposit_eth"`
	MintStb    string        `json:"mint_stb"`
}

// autoFund tops up the keeper's liquidation budget once per tick. The
// cheapest sufficient action wins: an existing balance means "ready", a
// missing allowance is fixed before anything else, and only an empty wallet
// triggers the deposit-and-mint path. On-chain actions arm the cooldown.
func (k *Keeper) autoFund(ctx context.Context) (models.AutoFundOutcome, error) {
	if !k.cfg.AutoFund.Enabled {
		return models.AutoFundDisabled, nil
	}

	if !k.lastFundAt.IsZero() && time.Since(k.lastFundAt) < k.cfg.AutoFund.Cooldown {
		return models.AutoFundCooldown, nil
	}

	keeperAddr := k.client.KeeperAddress()
	vaultAddr := k.client.VaultAddress()

	allowance, err := k.client.Allowance(ctx, keeperAddr, vaultAddr)
	if err != nil {
		return "", err
	}
	if allowance.Cmp(k.maxRepay) < 0 {
		if err := k.client.Approve(ctx, vaultAddr, maxUint256); err != nil {
			return "", err
		}
		k.lastFundAt = time.Now()
		k.logger.WithField("spender", vaultAddr.Hex()).Info("Approved vault to spend keeper stablecoin")
		return models.AutoFundApproved, nil
	}

	balance, err := k.client.BalanceOf(ctx, keeperAddr)
	if err != nil {
		return "", err
	}
	if balance.Cmp(k.maxRepay) >= 0 {
		return models.AutoFundReady, nil
	}

	deposit, ok := new(big.Int).SetString(k.cfg.AutoFund.DepositEth, 10)
	if !ok || deposit.Sign() <= 0 {
		return "", fmt.Errorf("autofund deposit_eth must be a positive integer, got %q", k.cfg.AutoFund.DepositEth)
	}
	mint, ok := new(big.Int).SetString(k.cfg.AutoFund.MintStb, 10)
	if !ok || mint.Sign() <= 0 {
		return "", fmt.Errorf("autofund mint_stb must be a positive integer, got %q", k.cfg.AutoFund.MintStb)
	}

	if err := k.client.Deposit(ctx, deposit); err != nil {
		return "", err
	}
	if err := k.client.Mint(ctx, mint); err != nil {
		return "", err
	}
	k.lastFundAt = time.Now()

	k.logger.WithFields(logrus.Fields{
		"deposit_eth": deposit.String(),
		"mint_stb":    mint.String(),
	}).Info("Keeper position funded")
	return models.AutoFundFunded, nil
}
