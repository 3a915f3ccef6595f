// Package chain implements the read-side contract calls the scrobble
// pipeline depends on: deterministic smart-account addresses, deployed
// code probes, EntryPoint nonces and the EntryPoint's authoritative
// UserOperation hash.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of an Ethereum RPC client the reader needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// PackedUserOperation is the typed ERC-4337 v0.7 operation.
// AccountGasLimits packs (verificationGasLimit, callGasLimit) and
// GasFees packs (maxPriorityFeePerGas, maxFeePerGas), each as two
// 128-bit halves of one 32-byte word.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// Addresses holds the fixed contract deployment for one chain.
type Addresses struct {
	EntryPoint common.Address
	Factory    common.Address
	Registry   common.Address
}

// Reader performs read-only contract calls.
type Reader struct {
	backend Backend
	addrs   Addresses
}

// NewReader creates a Reader over the given backend.
func NewReader(backend Backend, addrs Addresses) *Reader {
	return &Reader{backend: backend, addrs: addrs}
}

// Dial connects an RPC endpoint and returns a Reader over it.
func Dial(ctx context.Context, rpcURL string, addrs Addresses) (*Reader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return NewReader(client, addrs), nil
}

// Addresses returns the configured contract addresses.
func (r *Reader) Addresses() Addresses {
	return r.addrs
}

// SmartAccountAddress returns the deterministic smart-account address
// the factory would deploy for owner and salt.
func (r *Reader) SmartAccountAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error) {
	out, err := r.view(ctx, r.addrs.Factory, "getAddress", owner, salt)
	if err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress: %w", err)
	}
	return out[0].(common.Address), nil
}

// IsDeployed reports whether code exists at addr.
func (r *Reader) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	code, err := r.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("getCode %s: %w", addr, err)
	}
	return len(code) > 0, nil
}

// Nonce returns the EntryPoint nonce for sender under the given key.
func (r *Reader) Nonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error) {
	out, err := r.view(ctx, r.addrs.EntryPoint, "getNonce", sender, key)
	if err != nil {
		return nil, fmt.Errorf("entrypoint getNonce: %w", err)
	}
	return out[0].(*big.Int), nil
}

// UserOpHash asks the EntryPoint for the canonical hash of op. The op
// is hashed with an empty signature; delegating to the contract avoids
// drift against any local re-implementation.
func (r *Reader) UserOpHash(ctx context.Context, op PackedUserOperation) (common.Hash, error) {
	op.Signature = []byte{}
	out, err := r.view(ctx, r.addrs.EntryPoint, "getUserOpHash", op)
	if err != nil {
		return common.Hash{}, fmt.Errorf("entrypoint getUserOpHash: %w", err)
	}
	return common.Hash(out[0].([32]byte)), nil
}

// IsRegistered reports whether the registry already knows trackID.
func (r *Reader) IsRegistered(ctx context.Context, trackID common.Hash) (bool, error) {
	out, err := r.view(ctx, r.addrs.Registry, "isRegistered", [32]byte(trackID))
	if err != nil {
		return false, fmt.Errorf("registry isRegistered: %w", err)
	}
	return out[0].(bool), nil
}

func (r *Reader) view(ctx context.Context, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contracts.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	out, err := contracts.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}
