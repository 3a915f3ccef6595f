package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/heavenlabs/scrobbled/internal/chain"
	"github.com/heavenlabs/scrobbled/internal/config"
	"github.com/heavenlabs/scrobbled/internal/engine"
	"github.com/heavenlabs/scrobbled/internal/pipeline"
	"github.com/heavenlabs/scrobbled/internal/playback"
	"github.com/heavenlabs/scrobbled/internal/signer"
	"github.com/heavenlabs/scrobbled/internal/store"
	"github.com/heavenlabs/scrobbled/pkg/aa"
)

// submitDelay is how long a freshly eligible scrobble sits before a
// flush, so a burst of ready tracks lands in one batch.
const submitDelay = 2 * time.Second

// flushInterval drives periodic retries of scrobbles that failed an
// earlier flush.
const flushInterval = time.Minute

// batchLimit caps how many scrobbles go into one user operation.
const batchLimit = 50

// submitter submits a batch of scrobbles on-chain.
type submitter interface {
	Submit(ctx context.Context, items []pipeline.Scrobble) (pipeline.Result, error)
}

// registryChecker re-verifies registration state after a submission.
type registryChecker interface {
	IsRegistered(ctx context.Context, trackID common.Hash) (bool, error)
}

// coverSubmitter pushes album artwork to the gateway.
type coverSubmitter interface {
	SubmitCover(ctx context.Context, trackID, coverURL string) error
}

// Daemon coordinates the player poller, session engine, local queue,
// and the on-chain submission pipeline.
type Daemon struct {
	cfg      *config.Config
	engine   *engine.Engine
	poller   *playback.Poller
	queue    *store.Store
	pipeline submitter
	registry registryChecker
	covers   coverSubmitter
	artwork  *artworkLookup
	logger   zerolog.Logger

	// flushMu serializes flushes so two triggers cannot pick up the
	// same pending rows.
	flushMu sync.Mutex
}

// New wires up a daemon from configuration.
func New(cfg *config.Config, logger zerolog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reader, err := chain.Dial(context.Background(), cfg.Chain.RPCURL, chain.Addresses{
		EntryPoint: common.HexToAddress(cfg.Chain.EntryPoint),
		Factory:    common.HexToAddress(cfg.Chain.Factory),
		Registry:   common.HexToAddress(cfg.Chain.Registry),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	gateway, err := aa.NewClient(aa.Config{
		GatewayURL: cfg.Gateway.URL,
		APIKey:     cfg.Gateway.APIKey,
		Logger:     zerologAdapter{logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	queue, err := store.Open(config.QueuePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}

	remote := signer.NewRemote(cfg.Signer.URL, cfg.Signer.Token)

	pipe := pipeline.New(reader, gateway, remote, queue, pipeline.Config{
		Owner: common.HexToAddress(cfg.Chain.Owner),
	}, logger)

	eng := engine.New(engine.Config{
		TickInterval: time.Duration(cfg.TickInterval) * time.Second,
	}, logger)

	source := playback.NewMPDSource(cfg.MPD.Addr, cfg.MPD.Password)
	poller := playback.NewPoller(source, eng, time.Duration(cfg.PollInterval)*time.Second, logger)

	return &Daemon{
		cfg:      cfg,
		engine:   eng,
		poller:   poller,
		queue:    queue,
		pipeline: pipe,
		registry: reader,
		covers:   gateway,
		artwork:  newArtworkLookup(),
		logger:   logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		<-sigChan
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := d.run(ctx); err != nil && err != context.Canceled {
		return err
	}

	return nil
}

// run is the main daemon loop
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.poller.Run(ctx); err != nil && err != context.Canceled {
			d.logger.Error().Err(err).Msg("Poller error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.engine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.consumeReady(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.flushLoop(ctx)
	}()

	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// consumeReady drains eligible scrobbles from the engine into the
// queue and arms a short-delay flush for each.
func (d *Daemon) consumeReady(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ready := <-d.engine.Ready():
			d.logger.Info().
				Str("track", ready.Title).
				Str("artist", ready.Artist).
				Msg("Track eligible for scrobble")

			_, err := d.queue.Add(ctx, store.Scrobble{
				Artist:     ready.Artist,
				Title:      ready.Title,
				Album:      ready.Album,
				MBID:       ready.MBID,
				IPID:       ready.IPID,
				DurationMs: ready.DurationMs,
				PlayedAt:   ready.PlayedAt,
			})
			if err != nil {
				d.logger.Error().Err(err).Msg("Failed to queue scrobble")
				continue
			}

			time.AfterFunc(submitDelay, func() {
				d.flush(ctx)
			})
		}
	}
}

// flushLoop retries pending scrobbles on an interval and performs a
// final flush on shutdown.
func (d *Daemon) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	d.flush(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Submitting final scrobbles before shutdown")
			d.flush(context.Background())
			return
		case <-ticker.C:
			d.flush(ctx)
		}
	}
}

// SubmitPending performs a single flush of the queue. Used by the
// one-shot submit command.
func (d *Daemon) SubmitPending(ctx context.Context) (int, error) {
	before, err := d.queue.Count(ctx, false)
	if err != nil {
		return 0, err
	}
	if before == 0 {
		return 0, nil
	}

	d.flush(ctx)

	after, err := d.queue.Count(ctx, false)
	if err != nil {
		return 0, err
	}
	if after > 0 {
		return before - after, fmt.Errorf("%d scrobbles still pending", after)
	}
	return before, nil
}

// flush submits all pending scrobbles as one user operation.
func (d *Daemon) flush(ctx context.Context) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	pending, err := d.queue.GetPending(ctx, batchLimit)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to read pending scrobbles")
		return
	}
	if len(pending) == 0 {
		return
	}

	items := make([]pipeline.Scrobble, len(pending))
	ids := make([]int64, len(pending))
	for i, p := range pending {
		items[i] = pipeline.Scrobble{
			Artist:      p.Artist,
			Title:       p.Title,
			Album:       p.Album,
			MBID:        p.MBID,
			IPID:        p.IPID,
			DurationSec: uint32(p.DurationMs / 1000),
			PlayedAtSec: uint64(p.PlayedAt.Unix()),
		}
		ids[i] = p.ID
	}

	res, err := d.pipeline.Submit(ctx, items)
	if err != nil {
		d.logger.Warn().Err(err).Int("count", len(pending)).Msg("Batch submission failed")
		for _, id := range ids {
			if markErr := d.queue.MarkError(ctx, id, err.Error()); markErr != nil {
				d.logger.Error().Err(markErr).Int64("id", id).Msg("Failed to record scrobble error")
			}
		}
		return
	}

	d.logger.Info().
		Str("userOpHash", res.UserOpHash).
		Int("count", len(pending)).
		Msg("Batch submitted")

	if err := d.queue.MarkSubmitted(ctx, ids, res.UserOpHash); err != nil {
		d.logger.Error().Err(err).Msg("Failed to mark scrobbles submitted")
	}

	d.submitCovers(ctx, pending, res.TrackIDs)
	d.scheduleRegistryRefresh(ctx, res.TrackIDs)
}

// submitCovers pushes album artwork for each submitted track.
// Artwork is decorative; every failure is swallowed.
func (d *Daemon) submitCovers(ctx context.Context, submitted []store.Scrobble, trackIDs []string) {
	if d.covers == nil || len(submitted) != len(trackIDs) {
		return
	}
	for i, s := range submitted {
		coverURL := d.artwork.Lookup(s.Artist, s.Album)
		if coverURL == "" {
			continue
		}
		if err := d.covers.SubmitCover(ctx, trackIDs[i], coverURL); err != nil {
			d.logger.Debug().Err(err).Str("trackId", trackIDs[i]).Msg("Cover submission failed")
		}
	}
}

// scheduleRegistryRefresh re-checks on-chain registration for the
// submitted tracks at staggered delays. Inclusion is asynchronous, so
// the first check often lands before the operation is mined; marking
// happens whenever a check sees the registration.
func (d *Daemon) scheduleRegistryRefresh(ctx context.Context, trackIDs []string) {
	if d.registry == nil {
		return
	}
	for _, delay := range []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second} {
		time.AfterFunc(delay, func() {
			for _, id := range trackIDs {
				registered, err := d.registry.IsRegistered(ctx, common.HexToHash(id))
				if err != nil || !registered {
					continue
				}
				if err := d.queue.MarkRegistered(ctx, id); err != nil {
					d.logger.Debug().Err(err).Str("trackId", id).Msg("Failed to cache registration")
				}
			}
		})
	}
}

// Shutdown gracefully shuts down the daemon
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	ctx := context.Background()

	// Cleanup old records
	if _, err := d.queue.Cleanup(ctx, 7*24*time.Hour); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to cleanup queue")
	}

	if err := d.queue.Close(); err != nil {
		return fmt.Errorf("failed to close queue: %w", err)
	}

	return nil
}

// zerologAdapter lets the gateway client log through zerolog.
type zerologAdapter struct {
	logger zerolog.Logger
}

func (z zerologAdapter) Debugf(format string, args ...interface{}) {
	z.logger.Debug().Msgf(format, args...)
}
