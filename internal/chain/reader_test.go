package chain

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var testAddrs = Addresses{
	EntryPoint: common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"),
	Factory:    common.HexToAddress("0xB66BF4066F40b36Da0da34916799a069CBc79408"),
	Registry:   common.HexToAddress("0xBcD4EbBb964182ffC5EA03FF70761770a326Ccf1"),
}

// fakeBackend answers CallContract from a selector-keyed table and
// records the calls it saw.
type fakeBackend struct {
	responses map[[4]byte][]byte
	code      map[common.Address][]byte
	calls     []ethereum.CallMsg
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	if resp, ok := f.responses[sel]; ok {
		return resp, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return f.code[account], nil
}

func selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// addressWord left-pads an address into a 32-byte return word.
func addressWord(addr common.Address) []byte {
	word := make([]byte, 32)
	copy(word[12:], addr.Bytes())
	return word
}

func TestSmartAccountAddress(t *testing.T) {
	account := common.HexToAddress("0x9999999999999999999999999999999999999999")
	backend := &fakeBackend{responses: map[[4]byte][]byte{
		selector("getAddress(address,uint256)"): addressWord(account),
	}}

	reader := NewReader(backend, testAddrs)
	owner := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")

	got, err := reader.SmartAccountAddress(context.Background(), owner, big.NewInt(0))
	if err != nil {
		t.Fatalf("SmartAccountAddress: %v", err)
	}
	if got != account {
		t.Errorf("got %s, want %s", got, account)
	}

	// The call must target the factory with the canonical selector.
	call := backend.calls[0]
	if *call.To != testAddrs.Factory {
		t.Errorf("called %s, want factory %s", call.To, testAddrs.Factory)
	}
	want := selector("getAddress(address,uint256)")
	if !bytes.Equal(call.Data[:4], want[:]) {
		t.Errorf("selector %x, want %x", call.Data[:4], want)
	}
}

func TestNonce(t *testing.T) {
	nonceWord := make([]byte, 32)
	nonceWord[31] = 7
	backend := &fakeBackend{responses: map[[4]byte][]byte{
		selector("getNonce(address,uint192)"): nonceWord,
	}}

	reader := NewReader(backend, testAddrs)
	nonce, err := reader.Nonce(context.Background(), common.HexToAddress("0x1"), big.NewInt(0))
	if err != nil {
		t.Fatalf("Nonce: %v", err)
	}
	if nonce.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("nonce = %s, want 7", nonce)
	}
	if *backend.calls[0].To != testAddrs.EntryPoint {
		t.Errorf("called %s, want entrypoint", backend.calls[0].To)
	}
}

func TestIsDeployed(t *testing.T) {
	deployed := common.HexToAddress("0xaa")
	backend := &fakeBackend{code: map[common.Address][]byte{
		deployed: {0x60, 0x80},
	}}

	reader := NewReader(backend, testAddrs)

	got, err := reader.IsDeployed(context.Background(), deployed)
	if err != nil || !got {
		t.Errorf("IsDeployed(deployed) = %v, %v", got, err)
	}

	got, err = reader.IsDeployed(context.Background(), common.HexToAddress("0xbb"))
	if err != nil || got {
		t.Errorf("IsDeployed(empty) = %v, %v", got, err)
	}
}

func TestUserOpHash(t *testing.T) {
	hash := crypto.Keccak256Hash([]byte("userop"))
	backend := &fakeBackend{responses: map[[4]byte][]byte{
		selector("getUserOpHash((address,uint256,bytes,bytes,bytes32,uint256,bytes32,bytes,bytes))"): hash.Bytes(),
	}}

	reader := NewReader(backend, testAddrs)
	op := PackedUserOperation{
		Sender:             common.HexToAddress("0x1"),
		Nonce:              big.NewInt(1),
		InitCode:           []byte{},
		CallData:           []byte{0xde, 0xad},
		PreVerificationGas: big.NewInt(100000),
		PaymasterAndData:   []byte{0x01},
		Signature:          []byte{0xff}, // must be hashed as empty
	}

	got, err := reader.UserOpHash(context.Background(), op)
	if err != nil {
		t.Fatalf("UserOpHash: %v", err)
	}
	if got != hash {
		t.Errorf("got %s, want %s", got, hash)
	}
}

func TestIsRegistered(t *testing.T) {
	trueWord := make([]byte, 32)
	trueWord[31] = 1
	backend := &fakeBackend{responses: map[[4]byte][]byte{
		selector("isRegistered(bytes32)"): trueWord,
	}}

	reader := NewReader(backend, testAddrs)
	got, err := reader.IsRegistered(context.Background(), [32]byte{0xab})
	if err != nil {
		t.Fatalf("IsRegistered: %v", err)
	}
	if !got {
		t.Error("expected registered")
	}
	if *backend.calls[0].To != testAddrs.Registry {
		t.Errorf("called %s, want registry", backend.calls[0].To)
	}
}

func TestPackRegisterAndScrobbleBatch(t *testing.T) {
	batch := RegistrationBatch{
		User:       common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678"),
		Kinds:      []uint8{3},
		Payloads:   [][32]byte{{0x01}},
		Titles:     []string{"Song"},
		Artists:    []string{"Artist"},
		Albums:     []string{"Album"},
		Durations:  []uint32{240},
		TrackIDs:   [][32]byte{{0x02}},
		Timestamps: []uint64{1700000000},
	}

	data, err := PackRegisterAndScrobbleBatch(batch)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	want := selector("registerAndScrobbleBatch(address,uint8[],bytes32[],string[],string[],string[],uint32[],bytes32[],uint64[])")
	if !bytes.Equal(data[:4], want[:]) {
		t.Errorf("selector %x, want %x", data[:4], want)
	}
}

func TestPackExecute(t *testing.T) {
	inner, err := PackScrobbleBatch(common.HexToAddress("0x1"), [][32]byte{{0xab}}, []uint64{1700000000})
	if err != nil {
		t.Fatalf("pack inner: %v", err)
	}

	data, err := PackExecute(testAddrs.Registry, big.NewInt(0), inner)
	if err != nil {
		t.Fatalf("pack execute: %v", err)
	}

	want := selector("execute(address,uint256,bytes)")
	if !bytes.Equal(data[:4], want[:]) {
		t.Errorf("selector %x, want %x", data[:4], want)
	}
	if !bytes.Contains(data, inner) {
		t.Error("execute calldata must embed the inner call")
	}
}
