package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABI fragments for the contracts the pipeline touches: the account
// factory, the ERC-4337 EntryPoint (v0.7 packed operations), the
// smart account's dispatch entrypoint and the scrobble registry.
// These encodings are wire contracts; the chain rejects any deviation.
const contractsABI = `[
	{"type":"function","name":"getAddress","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"createAccount","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getUserOpHash","stateMutability":"view","inputs":[{"name":"userOp","type":"tuple","components":[
		{"name":"sender","type":"address"},
		{"name":"nonce","type":"uint256"},
		{"name":"initCode","type":"bytes"},
		{"name":"callData","type":"bytes"},
		{"name":"accountGasLimits","type":"bytes32"},
		{"name":"preVerificationGas","type":"uint256"},
		{"name":"gasFees","type":"bytes32"},
		{"name":"paymasterAndData","type":"bytes"},
		{"name":"signature","type":"bytes"}
	]}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"isRegistered","stateMutability":"view","inputs":[{"name":"trackId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"scrobbleBatch","stateMutability":"nonpayable","inputs":[{"name":"user","type":"address"},{"name":"trackIds","type":"bytes32[]"},{"name":"timestamps","type":"uint64[]"}],"outputs":[]},
	{"type":"function","name":"registerAndScrobbleBatch","stateMutability":"nonpayable","inputs":[
		{"name":"user","type":"address"},
		{"name":"regKinds","type":"uint8[]"},
		{"name":"regPayloads","type":"bytes32[]"},
		{"name":"titles","type":"string[]"},
		{"name":"artists","type":"string[]"},
		{"name":"albums","type":"string[]"},
		{"name":"durations","type":"uint32[]"},
		{"name":"trackIds","type":"bytes32[]"},
		{"name":"timestamps","type":"uint64[]"}
	],"outputs":[]}
]`

var contracts abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(contractsABI))
	if err != nil {
		panic(fmt.Sprintf("chain: parse contracts abi: %v", err))
	}
	contracts = parsed
}

// PackCreateAccount encodes factory.createAccount(owner, salt).
func PackCreateAccount(owner common.Address, salt *big.Int) ([]byte, error) {
	return contracts.Pack("createAccount", owner, salt)
}

// PackExecute encodes the smart account's execute(dest, value, data)
// dispatch call.
func PackExecute(dest common.Address, value *big.Int, data []byte) ([]byte, error) {
	return contracts.Pack("execute", dest, value, data)
}

// PackScrobbleBatch encodes a scrobble-only batch for tracks that are
// already registered.
func PackScrobbleBatch(user common.Address, trackIDs [][32]byte, timestamps []uint64) ([]byte, error) {
	return contracts.Pack("scrobbleBatch", user, trackIDs, timestamps)
}

// RegistrationBatch carries the registry call arguments for a batch of
// scrobbles, including registration entries for unknown tracks.
type RegistrationBatch struct {
	User       common.Address
	Kinds      []uint8
	Payloads   [][32]byte
	Titles     []string
	Artists    []string
	Albums     []string
	Durations  []uint32
	TrackIDs   [][32]byte
	Timestamps []uint64
}

// PackRegisterAndScrobbleBatch encodes registry.registerAndScrobbleBatch.
func PackRegisterAndScrobbleBatch(b RegistrationBatch) ([]byte, error) {
	return contracts.Pack("registerAndScrobbleBatch",
		b.User, b.Kinds, b.Payloads, b.Titles, b.Artists, b.Albums,
		b.Durations, b.TrackIDs, b.Timestamps)
}
