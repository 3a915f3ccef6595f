package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/heavenlabs/scrobbled/internal/chain"
	"github.com/heavenlabs/scrobbled/internal/signer"
	"github.com/heavenlabs/scrobbled/pkg/aa"
)

// State tracks where a submission attempt is in its lifecycle.
type State int

const (
	StateUnsent State = iota
	StateQuoteRequested
	StateQuoted
	StateHashComputed
	StateSigned
	StateSubmitted
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnsent:
		return "unsent"
	case StateQuoteRequested:
		return "quote_requested"
	case StateQuoted:
		return "quoted"
	case StateHashComputed:
		return "hash_computed"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ChainReader is the subset of chain.Reader the pipeline needs.
type ChainReader interface {
	Addresses() chain.Addresses
	SmartAccountAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error)
	IsDeployed(ctx context.Context, account common.Address) (bool, error)
	Nonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error)
	UserOpHash(ctx context.Context, op chain.PackedUserOperation) (common.Hash, error)
	IsRegistered(ctx context.Context, trackID common.Hash) (bool, error)
}

// Gateway is the subset of aa.Client the pipeline needs.
type Gateway interface {
	CheckEntryPoint(ctx context.Context, entryPoint string) error
	QuotePaymaster(ctx context.Context, op aa.UserOperation) (aa.PaymasterQuote, error)
	SendUserOp(ctx context.Context, op aa.UserOperation, userOpHash string) (aa.SubmissionResult, error)
}

// RegistrationCache remembers which track ids are registered on-chain
// so later batches can use the cheaper scrobble-only call.
type RegistrationCache interface {
	IsRegistered(ctx context.Context, trackID string) (bool, error)
	MarkRegistered(ctx context.Context, trackIDs ...string) error
}

// Config carries the pipeline's chain identity.
type Config struct {
	// Owner is the EOA that owns the smart account and that every
	// signature must recover to.
	Owner common.Address

	// OnState, when set, observes every state transition of an attempt.
	OnState func(State)
}

// Pipeline turns batches of scrobbles into submitted user operations.
// Submit serializes: the smart account has a single nonce sequence, so
// concurrent flushes for the same sender would race each other.
type Pipeline struct {
	reader   ChainReader
	gateway  Gateway
	signer   signer.Signer
	regCache RegistrationCache
	cfg      Config
	logger   zerolog.Logger

	mu sync.Mutex
}

func New(reader ChainReader, gateway Gateway, sgn signer.Signer, regCache RegistrationCache, cfg Config, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		reader:   reader,
		gateway:  gateway,
		signer:   sgn,
		regCache: regCache,
		cfg:      cfg,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// Result describes a submitted batch.
type Result struct {
	UserOpHash string
	Sender     string
	TrackIDs   []string
}

// Submit builds, sponsors, signs, and sends one user operation for the
// batch. If the gateway rejects the operation because a track in the
// batch was registered by someone else first, the affected tracks are
// cached as registered and the batch is retried once without
// registration entries.
func (p *Pipeline) Submit(ctx context.Context, items []Scrobble) (Result, error) {
	if len(items) == 0 {
		return Result{}, errors.New("empty batch")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.attempt(ctx, items, true)
	if err != nil && aa.IsDuplicateRegistration(err) {
		p.logger.Info().Msg("Batch raced a registration, retrying scrobble-only")
		p.rememberRegistrations(ctx, items)
		res, err = p.attempt(ctx, items, false)
	}
	return res, err
}

// attempt runs one pass of the state machine.
func (p *Pipeline) attempt(ctx context.Context, items []Scrobble, includeRegistrations bool) (Result, error) {
	st := p.newAttempt()

	// The gateway must serve the EntryPoint we hash and sign against.
	// A mismatch here means every downstream step would produce an
	// operation for the wrong contract, so bail before quoting.
	addrs := p.reader.Addresses()
	if err := p.gateway.CheckEntryPoint(ctx, addrs.EntryPoint.Hex()); err != nil {
		return Result{}, st.fail(err)
	}

	b, err := p.buildUserOp(ctx, items, includeRegistrations)
	if err != nil {
		return Result{}, st.fail(fmt.Errorf("build user operation: %w", err))
	}

	st.advance(StateQuoteRequested)
	quote, err := p.gateway.QuotePaymaster(ctx, toWire(b.op))
	if err != nil {
		return Result{}, st.fail(err)
	}
	paymasterData, err := hexutil.Decode(quote.PaymasterAndData)
	if err != nil {
		return Result{}, st.fail(fmt.Errorf("decode paymasterAndData: %w", err))
	}
	b.op.PaymasterAndData = paymasterData
	st.advance(StateQuoted)

	// Hashed after sponsorship is attached; paymasterAndData is part
	// of the digest.
	hash, err := p.reader.UserOpHash(ctx, b.op)
	if err != nil {
		return Result{}, st.fail(fmt.Errorf("compute userOpHash: %w", err))
	}
	st.advance(StateHashComputed)

	sig, err := signer.SignUserOpHash(ctx, p.signer, hash, p.cfg.Owner)
	if err != nil {
		return Result{}, st.fail(fmt.Errorf("sign: %w", err))
	}
	b.op.Signature = sig
	st.advance(StateSigned)

	sub, err := p.gateway.SendUserOp(ctx, toWire(b.op), hash.Hex())
	if err != nil {
		return Result{}, st.fail(err)
	}
	st.advance(StateSubmitted)
	st.advance(StateConfirmed)

	if len(b.registered) > 0 && p.regCache != nil {
		ids := make([]string, len(b.registered))
		for i, id := range b.registered {
			ids[i] = id.Hex()
		}
		if err := p.regCache.MarkRegistered(ctx, ids...); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to cache registrations")
		}
	}

	trackIDs := make([]string, len(b.identities))
	for i, id := range b.identities {
		trackIDs[i] = id.TrackID.Hex()
	}

	p.logger.Info().
		Str("userOpHash", sub.UserOpHash).
		Str("sender", b.op.Sender.Hex()).
		Int("scrobbles", len(items)).
		Int("registrations", len(b.registered)).
		Msg("Batch submitted")

	return Result{
		UserOpHash: sub.UserOpHash,
		Sender:     b.op.Sender.Hex(),
		TrackIDs:   trackIDs,
	}, nil
}

// rememberRegistrations marks every track in the batch as registered.
// Called when the gateway reports a duplicate registration; we cannot
// tell which track collided, and over-marking is harmless.
func (p *Pipeline) rememberRegistrations(ctx context.Context, items []Scrobble) {
	if p.regCache == nil {
		return
	}
	identities, err := resolveIdentities(items)
	if err != nil {
		return
	}
	ids := make([]string, len(identities))
	for i, id := range identities {
		ids[i] = id.TrackID.Hex()
	}
	if err := p.regCache.MarkRegistered(ctx, ids...); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to cache registrations")
	}
}

type attempt struct {
	state   State
	logger  zerolog.Logger
	onState func(State)
}

func (p *Pipeline) newAttempt() *attempt {
	a := &attempt{state: StateUnsent, logger: p.logger, onState: p.cfg.OnState}
	if a.onState != nil {
		a.onState(StateUnsent)
	}
	return a
}

func (a *attempt) advance(s State) {
	a.logger.Debug().Stringer("from", a.state).Stringer("to", s).Msg("State transition")
	a.state = s
	if a.onState != nil {
		a.onState(s)
	}
}

func (a *attempt) fail(err error) error {
	a.advance(StateFailed)
	return err
}

// toWire converts a typed operation into the hex-string form the
// gateway speaks.
func toWire(op chain.PackedUserOperation) aa.UserOperation {
	return aa.UserOperation{
		Sender:             op.Sender.Hex(),
		Nonce:              hexutil.EncodeBig(op.Nonce),
		InitCode:           hexutil.Encode(op.InitCode),
		CallData:           hexutil.Encode(op.CallData),
		AccountGasLimits:   hexutil.Encode(op.AccountGasLimits[:]),
		PreVerificationGas: hexutil.EncodeBig(op.PreVerificationGas),
		GasFees:            hexutil.Encode(op.GasFees[:]),
		PaymasterAndData:   hexutil.Encode(op.PaymasterAndData),
		Signature:          hexutil.Encode(op.Signature),
	}
}
