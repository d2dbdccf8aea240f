package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

// Source delivers instruments and candles from the vendor
type Source interface {
	GetInstrument(ctx context.Context, ticker string) (*db.Instrument, error)
	GetCandles(ctx context.Context, figi string, interval db.CandleInterval, from, to time.Time) ([]*db.Candle, error)
}

// Store is the persistence surface the syncer writes to
type Store interface {
	SaveInstrument(ctx context.Context, instrument *db.Instrument) error
	SaveCandles(ctx context.Context, candles []*db.Candle) (int, error)
}

// Syncer pulls hourly candle history for the tracked tickers into local
// storage, consulting the cache before the vendor
type Syncer struct {
	source   Source
	cache    *CandleCache
	store    Store
	tickers  []string
	lookback time.Duration
	stopCh   chan struct{}
	log      zerolog.Logger
}

// NewSyncer creates a candle syncer. cache may be nil.
func NewSyncer(source Source, cache *CandleCache, store Store, tickers []string, lookback time.Duration) *Syncer {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &Syncer{
		source:   source,
		cache:    cache,
		store:    store,
		tickers:  tickers,
		lookback: lookback,
		stopCh:   make(chan struct{}),
		log:      config.NewLogger("market_sync"),
	}
}

// SyncAll syncs every tracked ticker once. Per-ticker failures are
// logged and do not abort the pass.
func (s *Syncer) SyncAll(ctx context.Context) error {
	start := time.Now()
	var failed int

	for _, ticker := range s.tickers {
		if err := s.syncTicker(ctx, ticker); err != nil {
			s.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to sync ticker")
			failed++
		}
	}

	s.log.Info().
		Int("tickers", len(s.tickers)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Candle sync pass complete")

	if failed == len(s.tickers) && failed > 0 {
		return fmt.Errorf("all %d tickers failed to sync", failed)
	}
	return nil
}

// Run performs an initial sync then repeats on the given interval until
// the context is cancelled or Stop is called
func (s *Syncer) Run(ctx context.Context, every time.Duration) error {
	if err := s.SyncAll(ctx); err != nil {
		s.log.Error().Err(err).Msg("Initial sync failed")
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if err := s.SyncAll(ctx); err != nil {
				s.log.Error().Err(err).Msg("Periodic sync failed")
			}
		}
	}
}

// Stop stops a running Run loop
func (s *Syncer) Stop() {
	close(s.stopCh)
}

func (s *Syncer) syncTicker(ctx context.Context, ticker string) error {
	instrument, err := s.source.GetInstrument(ctx, ticker)
	if err != nil {
		return err
	}
	if err := s.store.SaveInstrument(ctx, instrument); err != nil {
		return err
	}

	to := time.Now().UTC().Truncate(time.Hour)
	from := to.Add(-s.lookback)

	candles, hit := s.cache.Get(ctx, instrument.FIGI, db.IntervalHour, from, to)
	if !hit {
		candles, err = s.source.GetCandles(ctx, instrument.FIGI, db.IntervalHour, from, to)
		if err != nil {
			return err
		}
		s.cache.Set(ctx, instrument.FIGI, db.IntervalHour, from, to, candles)
	}

	saved, err := s.store.SaveCandles(ctx, candles)
	if err != nil {
		return err
	}

	s.log.Debug().
		Str("ticker", ticker).
		Str("figi", instrument.FIGI).
		Int("fetched", len(candles)).
		Int("saved", saved).
		Bool("cache_hit", hit).
		Msg("Ticker synced")

	return nil
}
