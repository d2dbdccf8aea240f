package indicators

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// Default parameters used by the consensus rule predicates
const (
	DefaultRSIPeriod        = 14
	DefaultMACDFast         = 12
	DefaultMACDSlow         = 26
	DefaultMACDSignal       = 9
	DefaultBollingerPeriod  = 20
	DefaultBollingerStdDevs = 2.0
)

// Snapshot holds the latest-bar state of every indicator computed over one
// candle history. Members are nil when the history was too short for that
// indicator.
type Snapshot struct {
	RSI       *RSIResult       `json:"rsi,omitempty"`
	MACD      *MACDResult      `json:"macd,omitempty"`
	Bollinger *BollingerResult `json:"bollinger,omitempty"`
	OBV       *OBVResult       `json:"obv,omitempty"`
}

// Analyze computes a snapshot with default parameters. Insufficient data
// for one indicator leaves its member nil instead of failing the whole
// snapshot; any other error aborts.
func Analyze(closes, volumes []float64) (*Snapshot, error) {
	snap := &Snapshot{}

	rsi, err := CalculateRSI(closes, DefaultRSIPeriod)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return nil, err
	}
	snap.RSI = rsi

	macd, err := CalculateMACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return nil, err
	}
	snap.MACD = macd

	bollinger, err := CalculateBollinger(closes, DefaultBollingerPeriod, DefaultBollingerStdDevs)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return nil, err
	}
	snap.Bollinger = bollinger

	obv, err := CalculateOBV(closes, volumes)
	if err != nil && !errors.Is(err, ErrInsufficientData) {
		return nil, err
	}
	snap.OBV = obv

	log.Debug().
		Int("bars", len(closes)).
		Bool("rsi", snap.RSI != nil).
		Bool("macd", snap.MACD != nil).
		Bool("bollinger", snap.Bollinger != nil).
		Bool("obv", snap.OBV != nil).
		Msg("Indicator snapshot computed")

	return snap, nil
}
