package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction is the trade direction carried by a parsed signal
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionExit  Direction = "exit"
	DirectionMixed Direction = "mixed"
)

// SignalType classifies the operation a signal describes
type SignalType string

const (
	SignalTypeEntry  SignalType = "entry"
	SignalTypeExit   SignalType = "exit"
	SignalTypeUpdate SignalType = "update"
)

// CandleInterval is the closed set of supported candle intervals
type CandleInterval string

const (
	Interval1Min CandleInterval = "1min"
	Interval5Min CandleInterval = "5min"
	IntervalHour CandleInterval = "hour"
	IntervalDay  CandleInterval = "day"
)

// ValidInterval reports whether s names a supported candle interval
func ValidInterval(s string) bool {
	switch CandleInterval(s) {
	case Interval1Min, Interval5Min, IntervalHour, IntervalDay:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of a consensus event
type EventStatus string

const (
	EventStatusActive  EventStatus = "active"
	EventStatusClosed  EventStatus = "closed"
	EventStatusExpired EventStatus = "expired"
)

// ExitReason records why a simulated position was closed
type ExitReason string

const (
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTimeout    ExitReason = "timeout"
	ExitReasonManual     ExitReason = "manual"
)

// RawMessage is a chat message delivered by the scraper.
// The core only flips is_processed and parse_success.
type RawMessage struct {
	ID           int64     `db:"id"`
	ChannelID    int64     `db:"channel_id"`
	MessageID    int64     `db:"message_id"`
	Timestamp    time.Time `db:"timestamp"`
	Text         string    `db:"text"`
	Author       *string   `db:"author"`
	IsProcessed  bool      `db:"is_processed"`
	ParseSuccess bool      `db:"parse_success"`
	CollectedAt  time.Time `db:"collected_at"`
}

// ParsedSignal is a structured trade signal extracted from one raw message.
// Immutable after creation.
type ParsedSignal struct {
	ID              uuid.UUID              `db:"id"`
	RawMessageID    *int64                 `db:"raw_message_id"`
	Timestamp       time.Time              `db:"timestamp"`
	ChannelID       int64                  `db:"channel_id"`
	Author          string                 `db:"author"`
	Ticker          string                 `db:"ticker"`
	Direction       Direction              `db:"direction"`
	SignalType      SignalType             `db:"signal_type"`
	TargetPrice     *float64               `db:"target_price"`
	StopLoss        *float64               `db:"stop_loss"`
	TakeProfit      *float64               `db:"take_profit"`
	ConfidenceScore float64                `db:"confidence_score"`
	ParserVersion   string                 `db:"parser_version"`
	OriginalText    string                 `db:"original_text"`
	ExtractedData   map[string]interface{} `db:"extracted_data"`
	CreatedAt       time.Time              `db:"created_at"`
}

// SignalResult is the tracked real-world outcome of one signal,
// written by an external tracker and cleared on a forced reparse
type SignalResult struct {
	ID                uuid.UUID  `db:"id"`
	SignalID          uuid.UUID  `db:"signal_id"`
	PlannedEntryPrice *float64   `db:"planned_entry_price"`
	ActualEntryPrice  *float64   `db:"actual_entry_price"`
	ExitPrice         *float64   `db:"exit_price"`
	ProfitLossPct     *float64   `db:"profit_loss_pct"`
	ProfitLossAbs     *float64   `db:"profit_loss_abs"`
	EntryTime         *time.Time `db:"entry_time"`
	ExitTime          *time.Time `db:"exit_time"`
	DurationMinutes   *int       `db:"duration_minutes"`
	Status            string     `db:"status"` // active, closed, stopped, expired
	ExitReason        *string    `db:"exit_reason"`
	TrackingStartedAt time.Time  `db:"tracking_started_at"`
}

// Trader is a tracked signal author with cached performance stats
type Trader struct {
	ID           int64      `db:"id"`
	Name         string     `db:"name"`
	ChannelID    int64      `db:"channel_id"`
	IsActive     bool       `db:"is_active"`
	TotalSignals int        `db:"total_signals"`
	WinRate      *float64   `db:"win_rate"`
	AvgProfitPct *float64   `db:"avg_profit_pct"`
	FirstSignal  *time.Time `db:"first_signal_at"`
	LastSignal   *time.Time `db:"last_signal_at"`
}

// RSICondition bounds the latest RSI value for a rule predicate
type RSICondition struct {
	Enabled bool     `json:"enabled"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
}

// SignalCondition requires a derived indicator signal to equal a value
type SignalCondition struct {
	Enabled bool   `json:"enabled"`
	Signal  string `json:"signal"`
}

// IndicatorConditions is the structured predicate attached to a rule.
// Absent or disabled members pass trivially; present members are ANDed.
type IndicatorConditions struct {
	RSI       *RSICondition    `json:"rsi,omitempty"`
	MACD      *SignalCondition `json:"macd,omitempty"`
	Bollinger *SignalCondition `json:"bollinger,omitempty"`
	OBV       *SignalCondition `json:"obv,omitempty"`
}

// IsEmpty reports whether no indicator condition is enabled
func (c *IndicatorConditions) IsEmpty() bool {
	if c == nil {
		return true
	}
	if c.RSI != nil && c.RSI.Enabled {
		return false
	}
	if c.MACD != nil && c.MACD.Enabled {
		return false
	}
	if c.Bollinger != nil && c.Bollinger.Enabled {
		return false
	}
	if c.OBV != nil && c.OBV.Enabled {
		return false
	}
	return true
}

// NotificationSettings configures how a rule announces its events
type NotificationSettings struct {
	Enabled  bool     `json:"enabled"`
	Channels []string `json:"channels,omitempty"` // "telegram", "nats"
}

// ConsensusRule is an active detection rule. Rules are evaluated in
// priority order; the first matching rule owns the event.
type ConsensusRule struct {
	ID                   int64                  `db:"id"`
	Name                 string                 `db:"name"`
	IsActive             bool                   `db:"is_active"`
	Priority             int                    `db:"priority"`
	MinTraders           int                    `db:"min_traders"`
	WindowMinutes        int                    `db:"window_minutes"`
	StrictConsensus      bool                   `db:"strict_consensus"`
	TickerFilter         *string                `db:"ticker_filter"` // CSV
	DirectionFilter      *string                `db:"direction_filter"`
	MinConfidence        *float64               `db:"min_confidence"`
	MinStrength          *int                   `db:"min_strength"`
	IndicatorConditions  *IndicatorConditions   `db:"indicator_conditions"`
	NotificationSettings NotificationSettings   `db:"notification_settings"`
	Config               map[string]interface{} `db:"config"`
	CreatedAt            time.Time              `db:"created_at"`
}

// TickerAllowed reports whether the rule's ticker filter admits ticker.
// An empty filter admits everything.
func (r *ConsensusRule) TickerAllowed(ticker string) bool {
	if r.TickerFilter == nil || strings.TrimSpace(*r.TickerFilter) == "" {
		return true
	}
	for _, t := range strings.Split(*r.TickerFilter, ",") {
		if strings.EqualFold(strings.TrimSpace(t), ticker) {
			return true
		}
	}
	return false
}

// DirectionAllowed reports whether the rule's direction filter admits d
func (r *ConsensusRule) DirectionAllowed(d Direction) bool {
	if r.DirectionFilter == nil || strings.TrimSpace(*r.DirectionFilter) == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(*r.DirectionFilter), string(d))
}

// Tickers returns the parsed ticker filter, nil when unset
func (r *ConsensusRule) Tickers() []string {
	if r.TickerFilter == nil || strings.TrimSpace(*r.TickerFilter) == "" {
		return nil
	}
	parts := strings.Split(*r.TickerFilter, ",")
	tickers := make([]string, 0, len(parts))
	for _, t := range parts {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, strings.ToUpper(t))
		}
	}
	return tickers
}

// EventMetadata is the structured payload stored with a consensus event
type EventMetadata struct {
	Authors         []string `json:"authors"`
	TriggerSignalID string   `json:"trigger_signal_id"`
	TotalSignals    int      `json:"total_signals"`
}

// ConsensusEvent is a detected agreement between distinct authors on the
// same ticker and direction within a time window
type ConsensusEvent struct {
	ID                uuid.UUID     `db:"id"`
	Ticker            string        `db:"ticker"`
	Direction         Direction     `db:"direction"`
	TradersCount      int           `db:"traders_count"`
	WindowMinutes     int           `db:"window_minutes"`
	RuleID            *int64        `db:"rule_id"`
	FirstSignalAt     time.Time     `db:"first_signal_at"`
	LastSignalAt      time.Time     `db:"last_signal_at"`
	DetectedAt        time.Time     `db:"detected_at"`
	AvgEntryPrice     *float64      `db:"avg_entry_price"`
	MinEntryPrice     *float64      `db:"min_entry_price"`
	MaxEntryPrice     *float64      `db:"max_entry_price"`
	PriceSpreadPct    *float64      `db:"price_spread_pct"`
	ConsensusStrength int           `db:"consensus_strength"`
	Status            EventStatus   `db:"status"`
	Metadata          EventMetadata `db:"metadata"`
}

// ConsensusMember links a signal into a consensus event
type ConsensusMember struct {
	SignalID    uuid.UUID `db:"signal_id"`
	IsInitiator bool      `db:"is_initiator"`
}

// ParsingPattern is one database-resident regular expression used by the
// message parser, grouped by category and ordered by priority
type ParsingPattern struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	Category    string  `db:"category"`
	Pattern     string  `db:"pattern"`
	Priority    int     `db:"priority"`
	IsActive    bool    `db:"is_active"`
	Description *string `db:"description"`
}

// Instrument maps a ticker to its durable FIGI identifier
type Instrument struct {
	FIGI     string `db:"figi"`
	Ticker   string `db:"ticker"`
	Name     string `db:"name"`
	Type     string `db:"type"`
	Currency string `db:"currency"`
	Lot      int    `db:"lot"`
	IsActive bool   `db:"is_active"`
}

// Candle is one OHLCV bar keyed by (instrument, interval, time)
type Candle struct {
	InstrumentID string         `db:"instrument_id"` // FIGI
	Interval     CandleInterval `db:"interval"`
	Time         time.Time      `db:"time"`
	Open         float64        `db:"open"`
	High         float64        `db:"high"`
	Low          float64        `db:"low"`
	Close        float64        `db:"close"`
	Volume       int64          `db:"volume"`
}

// Validate checks the OHLC ordering invariant
func (c *Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle prices must be positive: %+v", c)
	}
	lo, hi := c.Open, c.Close
	if hi < lo {
		lo, hi = hi, lo
	}
	if c.Low > lo || c.High < hi {
		return fmt.Errorf("candle violates low <= open/close <= high: %+v", c)
	}
	return nil
}

// TickerStats is the per-ticker rollup stored with a backtest
type TickerStats struct {
	Count          int     `json:"count"`
	Profitable     int     `json:"profitable"`
	TotalPnLPct    float64 `json:"total_pnl_pct"`
	TotalProfitAbs float64 `json:"total_profit_abs"`
}

// TradeRecord is one simulated trade inside a backtest
type TradeRecord struct {
	Ticker       string     `json:"ticker"`
	Direction    Direction  `json:"direction"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     time.Time  `json:"exit_time"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    float64    `json:"exit_price"`
	Shares       int64      `json:"shares"`
	PnLPct       float64    `json:"pnl_pct"`
	PnLAbs       float64    `json:"pnl_abs"`
	ExitReason   ExitReason `json:"exit_reason"`
	TradersCount int        `json:"traders_count"`
	CapitalAfter float64    `json:"capital_after"`
}

// ConsensusBacktest is a persisted backtest run with its aggregates
type ConsensusBacktest struct {
	ID                  uuid.UUID              `db:"id"`
	RuleID              int64                  `db:"rule_id"`
	StartDate           time.Time              `db:"start_date"`
	EndDate             time.Time              `db:"end_date"`
	Tickers             *string                `db:"tickers"` // CSV
	TotalConsensusFound int                    `db:"total_consensus_found"`
	ProfitableCount     int                    `db:"profitable_count"`
	LossCount           int                    `db:"loss_count"`
	WinRate             float64                `db:"win_rate"`
	AvgProfitPct        float64                `db:"avg_profit_pct"`
	AvgLossPct          float64                `db:"avg_loss_pct"`
	MaxProfitPct        float64                `db:"max_profit_pct"`
	MaxLossPct          float64                `db:"max_loss_pct"`
	TotalProfitAbs      float64                `db:"total_profit_abs"`
	TotalReturnPct      float64                `db:"total_return_pct"`
	ResultsByTicker     map[string]TickerStats `db:"results_by_ticker"`
	ConsensusDetails    []TradeRecord          `db:"consensus_details"`
	ExecutionTimeSec    float64                `db:"execution_time_seconds"`
	Status              string                 `db:"status"`
	CreatedAt           time.Time              `db:"created_at"`
}
