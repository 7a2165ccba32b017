package evm

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Approval","type":"event"}
]`

// ApprovalTopic is keccak256("Approval(address,address,uint256)").
var ApprovalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

func packSymbol() ([]byte, error) {
	return erc20ABI.Pack("symbol")
}

func packDecimals() ([]byte, error) {
	return erc20ABI.Pack("decimals")
}

func packBalanceOf(owner common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", owner)
}

func packAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("allowance", owner, spender)
}

// unpackSymbol decodes a string symbol, falling back to the bytes32 layout
// some legacy tokens use.
func unpackSymbol(data []byte) (string, error) {
	out, err := erc20ABI.Unpack("symbol", data)
	if err == nil && len(out) == 1 {
		if s, ok := out[0].(string); ok {
			return s, nil
		}
	}
	if len(data) == 32 {
		trimmed := bytes.TrimRight(data, "\x00")
		if utf8.Valid(trimmed) {
			return string(trimmed), nil
		}
	}
	if err == nil {
		err = fmt.Errorf("unexpected symbol output")
	}
	return "", fmt.Errorf("unpack symbol: %w", err)
}

func unpackDecimals(data []byte) (uint8, error) {
	out, err := erc20ABI.Unpack("decimals", data)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack decimals: unexpected type %T", out[0])
	}
	return d, nil
}

func unpackUint256(method string, data []byte) (*big.Int, error) {
	out, err := erc20ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return v, nil
}

// addressTopic left-pads an address to a 32-byte log topic.
func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
