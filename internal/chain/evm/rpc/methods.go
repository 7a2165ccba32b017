package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockTagLatest is the block tag used for all state reads.
const BlockTagLatest = "latest"

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, fmt.Errorf("unmarshal block number: %w", err)
	}

	blockNumber, err := ParseQuantity(hexNum)
	if err != nil {
		return 0, fmt.Errorf("parse block number: %w", err)
	}
	return blockNumber, nil
}

// Call executes a read-only eth_call and returns the raw return data.
func (c *Client) Call(ctx context.Context, msg CallMsg, blockTag string) ([]byte, error) {
	if blockTag == "" {
		blockTag = BlockTagLatest
	}
	result, err := c.call(ctx, "eth_call", []interface{}{msg, blockTag})
	if err != nil {
		return nil, fmt.Errorf("eth_call(%s): %w", msg.To, err)
	}

	var hexData string
	if err := json.Unmarshal(result, &hexData); err != nil {
		return nil, fmt.Errorf("unmarshal call result: %w", err)
	}
	if hexData == "" || hexData == "0x" {
		return []byte{}, nil
	}

	data, err := hexutil.Decode(hexData)
	if err != nil {
		return nil, fmt.Errorf("decode call result: %w", err)
	}
	return data, nil
}

func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]*Log, error) {
	result, err := c.call(ctx, "eth_getLogs", []interface{}{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs: %w", err)
	}

	var logs []*Log
	if err := json.Unmarshal(result, &logs); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}

	return logs, nil
}

// FormatBlock renders a block number as a JSON-RPC quantity.
func FormatBlock(n uint64) string {
	return hexutil.EncodeUint64(n)
}

// ParseQuantity parses a JSON-RPC hex quantity. Leading zeros are tolerated
// because some providers emit them.
func ParseQuantity(value string) (uint64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	return parsed, nil
}
