package polymarket

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const polygonUSDC = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

const balanceOfABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// walletReader reads on-chain USDC balances on Polygon.
type walletReader struct {
	rpcURL  string
	address string
	logger  *zap.Logger
}

func newWalletReader(rpcURL, address string, logger *zap.Logger) (*walletReader, error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}
	return &walletReader{
		rpcURL:  rpcURL,
		address: address,
		logger:  logger,
	}, nil
}

// usdcBalance returns the USDC balance of owner in whole dollars.
func (w *walletReader) usdcBalance(ctx context.Context, owner string) (float64, error) {
	if owner == "" {
		owner = w.address
	}
	if owner == "" {
		return 0, errors.New("no wallet address configured")
	}

	client, err := ethclient.DialContext(ctx, w.rpcURL)
	if err != nil {
		return 0, fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	parsedABI, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return 0, fmt.Errorf("parse abi: %w", err)
	}

	data, err := parsedABI.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return 0, fmt.Errorf("pack abi: %w", err)
	}

	tokenAddress := common.HexToAddress(polygonUSDC)
	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &tokenAddress,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("call contract: %w", err)
	}

	raw := new(big.Int).SetBytes(result)

	// USDC has 6 decimals.
	value, _ := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		big.NewFloat(1e6),
	).Float64()

	w.logger.Debug("usdc-balance-read",
		zap.String("owner", owner),
		zap.Float64("usdc", value))

	return value, nil
}
