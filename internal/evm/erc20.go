package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20JSON = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = mustParseABI(erc20JSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// erc20 reads a token contract through eth_call.
type erc20 struct {
	reader ChainReader
	token  common.Address
}

func (t erc20) call(ctx context.Context, method string, out any, args ...any) error {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := t.reader.CallContract(ctx, ethereum.CallMsg{To: &t.token, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if err := erc20ABI.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

func (t erc20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var bal *big.Int
	if err := t.call(ctx, "balanceOf", &bal, owner); err != nil {
		return nil, err
	}
	return bal, nil
}

func (t erc20) Decimals(ctx context.Context) (uint8, error) {
	var d uint8
	err := t.call(ctx, "decimals", &d)
	return d, err
}

func (t erc20) Symbol(ctx context.Context) (string, error) {
	var s string
	err := t.call(ctx, "symbol", &s)
	return s, err
}
