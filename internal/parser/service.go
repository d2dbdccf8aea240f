package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/metrics"
)

// maxBatchSize caps how many messages one page pulls from the database
const maxBatchSize = 100

// Store is the persistence surface the parsing service needs
type Store interface {
	GetUnparsedMessages(ctx context.Context, limit int) ([]*db.RawMessage, error)
	MarkMessageProcessed(ctx context.Context, id int64, parseSuccess bool) error
	SaveSignal(ctx context.Context, s *db.ParsedSignal) error
	UpsertTrader(ctx context.Context, name string, channelID int64, signalAt time.Time) error
	GetParserVersions(ctx context.Context) ([]string, error)
	DeleteAllSignalResults(ctx context.Context) (int64, error)
	DeleteAllSignals(ctx context.Context) (int64, error)
	DeleteSignalsByParserVersions(ctx context.Context, versions []string) (int64, error)
	ResetAllMessages(ctx context.Context) (int64, error)
	ResetMessagesParsedBy(ctx context.Context, versions []string) (int64, error)
}

// Detector is invoked once per saved signal. Failures are logged and
// swallowed: a detection error must never mark a parsed message failed.
type Detector interface {
	CheckNewSignal(ctx context.Context, signalID uuid.UUID) (*db.ConsensusEvent, error)
}

// Stats aggregates one batch run
type Stats struct {
	TotalProcessed   int      `json:"total_processed"`
	SuccessfulParses int      `json:"successful_parses"`
	FailedParses     int      `json:"failed_parses"`
	Trading          int      `json:"trading"`
	NonTrading       int      `json:"non_trading"`
	Errors           []string `json:"errors,omitempty"`
}

// Service orchestrates batch parsing of unprocessed messages
type Service struct {
	store    Store
	parser   *Parser
	detector Detector
	cfg      config.ParsingConfig
	log      zerolog.Logger
}

// NewService creates a parsing service. detector may be nil to disable
// consensus detection (used by tooling that only backfills signals).
func NewService(store Store, p *Parser, detector Detector, cfg config.ParsingConfig) *Service {
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatchSize {
		cfg.BatchSize = maxBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Service{
		store:    store,
		parser:   p,
		detector: detector,
		cfg:      cfg,
		log:      config.NewLogger("parsing_service"),
	}
}

// ParseAllUnprocessed parses unprocessed messages in pages until none
// remain or limit messages have been processed (0 means no limit).
// Per-message failures never abort the run.
func (s *Service) ParseAllUnprocessed(ctx context.Context, limit int) (*Stats, error) {
	stats := &Stats{}
	var mu sync.Mutex

	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("parsing cancelled: %w", err)
		}

		batchSize := s.cfg.BatchSize
		if limit > 0 {
			remaining := limit - stats.TotalProcessed
			if remaining <= 0 {
				break
			}
			if remaining < batchSize {
				batchSize = remaining
			}
		}

		messages, err := s.store.GetUnparsedMessages(ctx, batchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to fetch unparsed messages: %w", err)
		}
		if len(messages) == 0 {
			break
		}

		start := time.Now()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Workers)
		for _, msg := range messages {
			msg := msg
			g.Go(func() error {
				outcome := s.processMessage(gctx, msg)
				mu.Lock()
				outcome.apply(stats)
				mu.Unlock()
				return nil
			})
		}
		// Workers never return errors; Wait only propagates cancellation
		if err := g.Wait(); err != nil {
			return stats, err
		}

		metrics.ParseBatchDuration.Observe(time.Since(start).Seconds())

		s.log.Info().
			Int("batch", len(messages)).
			Int("total_processed", stats.TotalProcessed).
			Int("successful", stats.SuccessfulParses).
			Msg("Parsing batch complete")

		if len(messages) < batchSize {
			break
		}
	}

	return stats, nil
}

type outcome struct {
	success    bool
	trading    bool
	nonTrading bool
	err        string
}

func (o outcome) apply(stats *Stats) {
	stats.TotalProcessed++
	if o.success {
		stats.SuccessfulParses++
	} else {
		stats.FailedParses++
	}
	if o.trading {
		stats.Trading++
	}
	if o.nonTrading {
		stats.NonTrading++
	}
	if o.err != "" {
		stats.Errors = append(stats.Errors, o.err)
	}
}

func (s *Service) processMessage(ctx context.Context, msg *db.RawMessage) outcome {
	signal, err := s.parser.Parse(ctx, msg)
	if err != nil {
		metrics.MessagesParsed.WithLabelValues(parseResultLabel(err)).Inc()
		if markErr := s.store.MarkMessageProcessed(ctx, msg.ID, false); markErr != nil {
			s.log.Error().Int64("message_id", msg.ID).Err(markErr).Msg("Failed to mark message")
			return outcome{err: fmt.Sprintf("message %d: %v", msg.ID, markErr)}
		}

		if errors.Is(err, ErrNotTradingMessage) || errors.Is(err, ErrEmptyMessage) {
			return outcome{nonTrading: true}
		}
		if errors.Is(err, ErrNoTicker) {
			// Trading intent without a recognizable instrument
			return outcome{trading: true}
		}
		return outcome{err: fmt.Sprintf("message %d: %v", msg.ID, err)}
	}

	if err := s.store.SaveSignal(ctx, signal); err != nil {
		s.log.Error().Int64("message_id", msg.ID).Err(err).Msg("Failed to save signal")
		metrics.MessagesParsed.WithLabelValues("error").Inc()
		return outcome{err: fmt.Sprintf("message %d: %v", msg.ID, err)}
	}

	if err := s.store.UpsertTrader(ctx, signal.Author, signal.ChannelID, signal.Timestamp); err != nil {
		// Trader stats are advisory; the signal itself is saved
		s.log.Warn().Str("author", signal.Author).Err(err).Msg("Failed to upsert trader")
	}

	if err := s.store.MarkMessageProcessed(ctx, msg.ID, true); err != nil {
		s.log.Error().Int64("message_id", msg.ID).Err(err).Msg("Failed to mark message")
		return outcome{err: fmt.Sprintf("message %d: %v", msg.ID, err)}
	}

	metrics.MessagesParsed.WithLabelValues("parsed").Inc()
	metrics.SignalsSaved.WithLabelValues(string(signal.Direction)).Inc()

	if s.detector != nil {
		if _, err := s.detector.CheckNewSignal(ctx, signal.ID); err != nil {
			s.log.Error().
				Str("signal_id", signal.ID.String()).
				Err(err).
				Msg("Consensus detection failed for signal")
		}
	}

	return outcome{success: true, trading: true}
}

func parseResultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotTradingMessage), errors.Is(err, ErrEmptyMessage):
		return "non_trading"
	case errors.Is(err, ErrNoTicker):
		return "no_ticker"
	default:
		return "error"
	}
}

// ReparseAll reprocesses message history. With force, every signal is
// deleted and every message reset. Without force, only messages whose
// signals were produced by a parser older than the current Version are
// reset, compared as semantic versions.
func (s *Service) ReparseAll(ctx context.Context, force bool) (*Stats, error) {
	if force {
		// Results reference signals, so they go first
		results, err := s.store.DeleteAllSignalResults(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to delete signal results: %w", err)
		}
		deleted, err := s.store.DeleteAllSignals(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to delete signals: %w", err)
		}
		reset, err := s.store.ResetAllMessages(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to reset messages: %w", err)
		}
		s.log.Info().
			Int64("results_deleted", results).
			Int64("signals_deleted", deleted).
			Int64("messages_reset", reset).
			Msg("Forced full reparse")
	} else {
		outdated, err := s.outdatedVersions(ctx)
		if err != nil {
			return nil, err
		}
		if len(outdated) > 0 {
			deleted, err := s.store.DeleteSignalsByParserVersions(ctx, outdated)
			if err != nil {
				return nil, fmt.Errorf("failed to delete outdated signals: %w", err)
			}
			reset, err := s.store.ResetMessagesParsedBy(ctx, outdated)
			if err != nil {
				return nil, fmt.Errorf("failed to reset outdated messages: %w", err)
			}
			s.log.Info().
				Strs("versions", outdated).
				Int64("signals_deleted", deleted).
				Int64("messages_reset", reset).
				Msg("Reparsing messages from outdated parser versions")
		}
	}

	return s.ParseAllUnprocessed(ctx, 0)
}

// outdatedVersions returns stored parser versions older than the current
// one. Versions that do not parse as semver are treated as outdated.
func (s *Service) outdatedVersions(ctx context.Context) ([]string, error) {
	stored, err := s.store.GetParserVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list parser versions: %w", err)
	}

	current := semver.MustParse(Version)
	var outdated []string
	for _, v := range stored {
		parsed, err := semver.NewVersion(v)
		if err != nil || parsed.LessThan(current) {
			outdated = append(outdated, v)
		}
	}
	return outdated, nil
}
