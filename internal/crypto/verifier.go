// Package crypto verifies on-chain ERC20 transfers used to top up an FCID
// when a customer pays in cryptocurrency.
package crypto

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

var transferSigHash = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ReceiptFetcher is the subset of ethclient.Client the verifier needs; an
// interface so tests can supply canned receipts without a live RPC node.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Asset identifies one ERC20 contract the verifier accepts top-ups in.
// The contract and chain are configuration here rather than a hardcoded
// constant — food-court operators may accept several chains.
type Asset struct {
	Method          domain.PaymentMethod
	ContractAddress string
	RPCURL          string
}

// Verifier checks an ERC20 Transfer event log for a matching destination
// address and amount. One ethclient.Client is created lazily per distinct
// RPC URL; a single in-process throttle caps concurrent RPC calls across
// all of them.
type Verifier struct {
	assets map[domain.PaymentMethod]Asset

	mu      sync.Mutex
	clients map[string]ReceiptFetcher
	sem     chan struct{}

	dialFunc func(ctx context.Context, rpcURL string) (ReceiptFetcher, error)
}

func NewVerifier(assets []Asset) *Verifier {
	byMethod := make(map[domain.PaymentMethod]Asset, len(assets))
	for _, a := range assets {
		byMethod[a.Method] = a
	}
	v := &Verifier{
		assets:  byMethod,
		clients: make(map[string]ReceiptFetcher),
		sem:     make(chan struct{}, 20), // throttle concurrent RPC calls
	}
	v.dialFunc = func(ctx context.Context, rpcURL string) (ReceiptFetcher, error) {
		return ethclient.DialContext(ctx, rpcURL)
	}
	return v
}

func (v *Verifier) clientFor(ctx context.Context, rpcURL string) (ReceiptFetcher, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.clients[rpcURL]; ok {
		return c, nil
	}
	c, err := v.dialFunc(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	v.clients[rpcURL] = c
	return c, nil
}

// VerifyTransfer checks that txHash contains an ERC20 Transfer log from the
// asset's contract to destAddress carrying exactly expectedAmount (in the
// token's smallest unit).
func (v *Verifier) VerifyTransfer(ctx context.Context, method domain.PaymentMethod, txHash, destAddress string, expectedAmount *big.Int) (bool, error) {
	asset, ok := v.assets[method]
	if !ok {
		return false, domain.NewValidationError(fmt.Sprintf("no crypto asset configured for payment method %q", method))
	}

	v.sem <- struct{}{}
	defer func() { <-v.sem }()

	client, err := v.clientFor(ctx, asset.RPCURL)
	if err != nil {
		return false, domain.NewGatewayError("dialing RPC endpoint", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return false, domain.NewGatewayError("fetching transaction receipt", err)
	}

	contractAddr := common.HexToAddress(asset.ContractAddress)
	destAddr := common.HexToAddress(destAddress)

	for _, vLog := range receipt.Logs {
		if vLog.Address != contractAddr || len(vLog.Topics) != 3 || vLog.Topics[0] != transferSigHash {
			continue
		}
		to := common.HexToAddress(vLog.Topics[2].Hex())
		amount := new(big.Int).SetBytes(vLog.Data)

		if !strings.EqualFold(to.Hex(), destAddr.Hex()) {
			continue
		}
		if amount.Cmp(expectedAmount) == 0 {
			log.Info().Str("tx_hash", txHash).Str("method", string(method)).Msg("crypto transfer verified")
			return true, nil
		}
	}

	return false, nil
}
