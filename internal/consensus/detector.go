// Package consensus detects agreement between distinct authors posting
// entry signals for the same ticker and direction inside a time window.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/metrics"
)

// minCandlesForIndicators is the minimum history required before a rule's
// indicator conditions are evaluated. Shorter histories pass the gate.
const minCandlesForIndicators = 30

// Store is the persistence surface the detector needs
type Store interface {
	GetSignal(ctx context.Context, id uuid.UUID) (*db.ParsedSignal, error)
	SignalHasConsensus(ctx context.Context, signalID uuid.UUID) (bool, error)
	GetActiveRules(ctx context.Context) ([]*db.ConsensusRule, error)
	GetEntrySignalsInWindow(ctx context.Context, ticker string, from, to time.Time) ([]*db.ParsedSignal, error)
	GetInstrumentByTicker(ctx context.Context, ticker string) (*db.Instrument, error)
	GetCandlesEndingAt(ctx context.Context, instrumentID string, interval db.CandleInterval, end time.Time, limit int) ([]*db.Candle, error)
	SaveConsensusEvent(ctx context.Context, event *db.ConsensusEvent, members []db.ConsensusMember) error
}

// Notifier announces detected events to human channels. Implementations
// must not block detection; errors are logged and dropped.
type Notifier interface {
	ConsensusDetected(ctx context.Context, event *db.ConsensusEvent)
}

// Publisher pushes detected events onto a message bus
type Publisher interface {
	PublishConsensus(ctx context.Context, event *db.ConsensusEvent) error
}

// window is the resolved parameter set one detection pass runs with
type window struct {
	minutes    int
	minTraders int
	strict     bool
}

// Detector evaluates new signals against active rules and records
// consensus events
type Detector struct {
	store     Store
	notifier  Notifier
	publisher Publisher
	defaults  config.ConsensusConfig
	log       zerolog.Logger
}

// NewDetector creates a detector. notifier and publisher may be nil.
func NewDetector(store Store, cfg config.ConsensusConfig, notifier Notifier, publisher Publisher) *Detector {
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 10
	}
	if cfg.MinTraders < 2 {
		cfg.MinTraders = 2
	}
	if cfg.CandleLookback <= 0 {
		cfg.CandleLookback = 100
	}
	return &Detector{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		defaults:  cfg,
		log:       config.NewLogger("consensus_detector"),
	}
}

// CheckNewSignal evaluates one freshly saved signal. It returns the
// created event, or nil when the signal does not produce consensus.
// A signal already belonging to an event is a no-op.
func (d *Detector) CheckNewSignal(ctx context.Context, signalID uuid.UUID) (*db.ConsensusEvent, error) {
	start := time.Now()
	defer func() {
		metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	}()

	signal, err := d.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal %s: %w", signalID, err)
	}

	if signal.SignalType != db.SignalTypeEntry {
		metrics.ConsensusDetections.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	member, err := d.store.SignalHasConsensus(ctx, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to check consensus membership: %w", err)
	}
	if member {
		metrics.ConsensusDetections.WithLabelValues("duplicate").Inc()
		return nil, nil
	}

	rules, err := d.store.GetActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load consensus rules: %w", err)
	}

	if len(rules) == 0 {
		return d.checkWithDefaults(ctx, signal)
	}

	for _, rule := range rules {
		event, err := d.checkRule(ctx, signal, rule)
		if err != nil {
			return nil, err
		}
		if event != nil {
			return event, nil
		}
	}

	metrics.ConsensusDetections.WithLabelValues("no_consensus").Inc()
	return nil, nil
}

func (d *Detector) checkWithDefaults(ctx context.Context, signal *db.ParsedSignal) (*db.ConsensusEvent, error) {
	w := window{
		minutes:    d.defaults.WindowMinutes,
		minTraders: d.defaults.MinTraders,
		strict:     d.defaults.StrictConsensus,
	}

	cand, err := d.findConsensusWindow(ctx, signal, w)
	if err != nil {
		return nil, err
	}
	if cand == nil {
		metrics.ConsensusDetections.WithLabelValues("no_consensus").Inc()
		return nil, nil
	}

	return d.createEvent(ctx, signal, cand, w, nil)
}

func (d *Detector) checkRule(ctx context.Context, signal *db.ParsedSignal, rule *db.ConsensusRule) (*db.ConsensusEvent, error) {
	if !rule.TickerAllowed(signal.Ticker) {
		return nil, nil
	}
	if !rule.DirectionAllowed(signal.Direction) {
		return nil, nil
	}
	if rule.MinConfidence != nil && signal.ConfidenceScore < *rule.MinConfidence {
		return nil, nil
	}

	w := window{
		minutes:    rule.WindowMinutes,
		minTraders: rule.MinTraders,
		strict:     rule.StrictConsensus,
	}
	if w.minutes <= 0 {
		w.minutes = d.defaults.WindowMinutes
	}
	if w.minTraders < 2 {
		w.minTraders = d.defaults.MinTraders
	}

	cand, err := d.findConsensusWindow(ctx, signal, w)
	if err != nil {
		return nil, err
	}
	if cand == nil {
		return nil, nil
	}

	ok, err := d.checkIndicatorConditions(ctx, signal, rule.IndicatorConditions)
	if err != nil {
		return nil, err
	}
	if !ok {
		d.log.Debug().
			Str("ticker", signal.Ticker).
			Int64("rule_id", rule.ID).
			Msg("Indicator conditions rejected consensus candidate")
		metrics.ConsensusDetections.WithLabelValues("indicator_rejected").Inc()
		return nil, nil
	}

	return d.createEvent(ctx, signal, cand, w, rule)
}

// findConsensusWindow gathers entry signals for the ticker in a window
// centered on the trigger signal's timestamp and checks whether enough
// distinct authors agree on a direction
func (d *Detector) findConsensusWindow(ctx context.Context, signal *db.ParsedSignal, w window) (*Window, error) {
	half := time.Duration(w.minutes) * time.Minute / 2
	from := signal.Timestamp.Add(-half)
	to := signal.Timestamp.Add(half)

	signals, err := d.store.GetEntrySignalsInWindow(ctx, signal.Ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query window signals: %w", err)
	}

	return groupWindow(signals, w.minTraders, w.strict), nil
}

// createEvent assembles the event from the candidate window, persists it
// with all member links in one transaction, and fans out notifications
func (d *Detector) createEvent(ctx context.Context, trigger *db.ParsedSignal, cand *Window, w window, rule *db.ConsensusRule) (*db.ConsensusEvent, error) {
	signals := cand.Signals
	first := cand.First()
	last := cand.Last()

	avg, min, max, spread := priceStats(signals)
	spanMinutes := last.Sub(first).Minutes()
	strength := calculateStrength(cand.AuthorCount, spread, spanMinutes)

	if rule != nil && rule.MinStrength != nil && strength < *rule.MinStrength {
		d.log.Debug().
			Str("ticker", trigger.Ticker).
			Int("strength", strength).
			Int("min_strength", *rule.MinStrength).
			Msg("Consensus candidate below rule strength threshold")
		metrics.ConsensusDetections.WithLabelValues("weak").Inc()
		return nil, nil
	}

	authors := make([]string, 0, cand.AuthorCount)
	seen := make(map[string]struct{}, cand.AuthorCount)
	for _, s := range signals {
		if _, ok := seen[s.Author]; !ok {
			seen[s.Author] = struct{}{}
			authors = append(authors, s.Author)
		}
	}

	event := &db.ConsensusEvent{
		ID:                uuid.New(),
		Ticker:            trigger.Ticker,
		Direction:         cand.Direction,
		TradersCount:      cand.AuthorCount,
		WindowMinutes:     w.minutes,
		FirstSignalAt:     first,
		LastSignalAt:      last,
		DetectedAt:        time.Now().UTC(),
		AvgEntryPrice:     avg,
		MinEntryPrice:     min,
		MaxEntryPrice:     max,
		PriceSpreadPct:    spread,
		ConsensusStrength: strength,
		Status:            db.EventStatusActive,
		Metadata: db.EventMetadata{
			Authors:         authors,
			TriggerSignalID: trigger.ID.String(),
			TotalSignals:    len(signals),
		},
	}
	if rule != nil {
		event.RuleID = &rule.ID
	}

	members := make([]db.ConsensusMember, len(signals))
	for i, s := range signals {
		members[i] = db.ConsensusMember{
			SignalID:    s.ID,
			IsInitiator: s.ID == trigger.ID,
		}
	}

	if err := d.store.SaveConsensusEvent(ctx, event, members); err != nil {
		return nil, fmt.Errorf("failed to save consensus event: %w", err)
	}

	metrics.ConsensusDetections.WithLabelValues("detected").Inc()
	metrics.ConsensusStrength.Observe(float64(strength))

	d.log.Info().
		Str("event_id", event.ID.String()).
		Str("ticker", event.Ticker).
		Str("direction", string(event.Direction)).
		Int("traders", event.TradersCount).
		Int("strength", strength).
		Msg("Consensus detected")

	d.announce(ctx, event, rule)

	return event, nil
}

// announce fans the event out to the configured channels. Delivery
// failures never fail detection.
func (d *Detector) announce(ctx context.Context, event *db.ConsensusEvent, rule *db.ConsensusRule) {
	wantTelegram, wantNATS := true, true
	if rule != nil {
		ns := rule.NotificationSettings
		if !ns.Enabled {
			return
		}
		if len(ns.Channels) > 0 {
			wantTelegram, wantNATS = false, false
			for _, ch := range ns.Channels {
				switch ch {
				case "telegram":
					wantTelegram = true
				case "nats":
					wantNATS = true
				}
			}
		}
	}

	if wantTelegram && d.notifier != nil {
		d.notifier.ConsensusDetected(ctx, event)
	}
	if wantNATS && d.publisher != nil {
		if err := d.publisher.PublishConsensus(ctx, event); err != nil {
			d.log.Error().Str("event_id", event.ID.String()).Err(err).
				Msg("Failed to publish consensus event")
		}
	}
}

// checkIndicatorConditions evaluates a rule's indicator predicate over
// hourly candle history ending at the signal's timestamp. Missing
// instruments or short histories pass the gate.
func (d *Detector) checkIndicatorConditions(ctx context.Context, signal *db.ParsedSignal, cond *db.IndicatorConditions) (bool, error) {
	if cond.IsEmpty() {
		return true, nil
	}

	instrument, err := d.store.GetInstrumentByTicker(ctx, signal.Ticker)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			d.log.Debug().Str("ticker", signal.Ticker).
				Msg("No instrument for ticker, skipping indicator conditions")
			return true, nil
		}
		return false, fmt.Errorf("failed to resolve instrument: %w", err)
	}

	candles, err := d.store.GetCandlesEndingAt(ctx, instrument.FIGI, db.IntervalHour, signal.Timestamp, d.defaults.CandleLookback)
	if err != nil {
		return false, fmt.Errorf("failed to load candles: %w", err)
	}
	if len(candles) < minCandlesForIndicators {
		d.log.Debug().Str("ticker", signal.Ticker).Int("candles", len(candles)).
			Msg("Insufficient candle history, skipping indicator conditions")
		return true, nil
	}

	return evaluateConditions(cond, candles), nil
}

// priceStats computes entry price aggregates over signals carrying a
// target price. All pointers are nil when no signal has one.
func priceStats(signals []*db.ParsedSignal) (avg, min, max, spreadPct *float64) {
	var prices []float64
	for _, s := range signals {
		if s.TargetPrice != nil {
			prices = append(prices, *s.TargetPrice)
		}
	}
	if len(prices) == 0 {
		return nil, nil, nil, nil
	}

	lo, hi, sum := prices[0], prices[0], 0.0
	for _, p := range prices {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
		sum += p
	}
	mean := sum / float64(len(prices))

	var spread float64
	if mean != 0 {
		spread = (hi - lo) / mean * 100
	}
	return &mean, &lo, &hi, &spread
}
