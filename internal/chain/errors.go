package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// CallError is returned when a read-only contract call fails.
type CallError struct {
	Method   string
	Contract common.Address
	Cause    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("chain call %s on %s: %v", e.Method, e.Contract.Hex(), e.Cause)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

// QueryError is returned when a historical log query fails.
type QueryError struct {
	Contract  common.Address
	FromBlock uint64
	ToBlock   uint64
	Cause     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("chain log query on %s [%d,%d]: %v", e.Contract.Hex(), e.FromBlock, e.ToBlock, e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewCallError wraps cause as a CallError; nil stays nil.
func NewCallError(method string, contract common.Address, cause error) error {
	if cause == nil {
		return nil
	}
	return &CallError{Method: method, Contract: contract, Cause: cause}
}

// NewQueryError wraps cause as a QueryError; nil stays nil.
func NewQueryError(contract common.Address, fromBlock, toBlock uint64, cause error) error {
	if cause == nil {
		return nil
	}
	return &QueryError{Contract: contract, FromBlock: fromBlock, ToBlock: toBlock, Cause: cause}
}
