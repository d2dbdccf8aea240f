// Package parser turns raw chat messages into structured trade signals
// using the database-resident pattern set, and orchestrates batch parsing
// over unprocessed messages.
package parser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/patterns"
)

// Version tags every signal this parser produces. Bump on any change to
// the extraction pipeline so selective reparsing can find stale signals.
const Version = "2.1.0"

// Sentinel parse failures. Callers branch on these to separate
// non-trading chatter from real errors.
var (
	ErrEmptyMessage      = errors.New("empty message text")
	ErrNotTradingMessage = errors.New("not a trading message")
	ErrNoTicker          = errors.New("no ticker found")
)

// Price bounds accepted for any extracted number
const (
	minPrice = 0.01
	maxPrice = 100000.0
)

var (
	// Garbage stripped before analysis: promo footers, invite links, bots
	garbagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Больше информации[^\n]*`),
		regexp.MustCompile(`(?i)👉\[@копии[^\]]*\][^\n]*`),
		regexp.MustCompile(`\[[^\]]*\]\(https://t\.me/[^)]*\)`),
		regexp.MustCompile(`https://t\.me/\S+`),
		regexp.MustCompile(`@\w+_?bot\S*`),
	}
	blankLines = regexp.MustCompile(`\n\s*\n`)

	// Trading glyphs that alone mark a message as a trade idea
	tradingEmojis = []string{"🐃", "🐻", "📈", "📉", "⭐️"}

	// Loose direction mentions, used when no explicit pattern matched.
	// RE2 \b is ASCII-only so Cyrillic words are bounded by \pL classes.
	looseLong  = regexp.MustCompile(`(?i)(?:^|[^\pL])(лонг|long)(?:$|[^\pL])`)
	looseShort = regexp.MustCompile(`(?i)(?:^|[^\pL])(шорт|short)(?:$|[^\pL])`)

	numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

	confidenceTokens = []string{"сделка", "позиция", "сигнал", "deal", "position", "signal"}

	// False-positive tickers that match the shape but never are one
	tickerStopwords = map[string]bool{
		"VIP": true, "BOT": true, "NEW": true, "TOP": true,
		"WIN": true, "BUY": true, "SELL": true,
	}
)

// ExtractedData is the debug payload stored with every signal
type ExtractedData struct {
	CleanedText string    `json:"cleaned_text"`
	AllTickers  []string  `json:"all_tickers"`
	AllNumbers  []float64 `json:"all_numbers"`
}

// Parser extracts one signal per message. Stateless between calls and
// safe for parallel use.
type Parser struct {
	patterns *patterns.Store
	log      zerolog.Logger
}

// New creates a parser over a pattern store
func New(store *patterns.Store) *Parser {
	return &Parser{
		patterns: store,
		log:      config.NewLogger("parser"),
	}
}

// Parse extracts a structured signal from one raw message. Non-trading
// messages fail with ErrNotTradingMessage; messages with trading intent
// but no recognizable ticker fail with ErrNoTicker.
func (p *Parser) Parse(ctx context.Context, msg *db.RawMessage) (*db.ParsedSignal, error) {
	if strings.TrimSpace(msg.Text) == "" {
		return nil, ErrEmptyMessage
	}

	// Author comes from the original text: cleaning strips the very
	// prefixes the author patterns match
	author, err := p.extractAuthor(ctx, msg.Text, msg.Author)
	if err != nil {
		return nil, err
	}

	cleaned := cleanText(msg.Text)

	trading, err := p.isTradingMessage(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	if !trading {
		return nil, ErrNotTradingMessage
	}

	ticker, err := p.extractTicker(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	if ticker == "" {
		return nil, ErrNoTicker
	}

	operation, direction, err := p.analyzeOperation(ctx, cleaned)
	if err != nil {
		return nil, err
	}

	target, err := p.extractPrice(ctx, patterns.CategoryPriceTarget, cleaned)
	if err != nil {
		return nil, err
	}
	stopLoss, err := p.extractPrice(ctx, patterns.CategoryPriceStop, cleaned)
	if err != nil {
		return nil, err
	}
	takeProfit, err := p.extractPrice(ctx, patterns.CategoryPriceTake, cleaned)
	if err != nil {
		return nil, err
	}

	confidence := calculateConfidence(cleaned, direction, operation)

	allTickers, err := p.extractAllTickers(ctx, cleaned)
	if err != nil {
		return nil, err
	}

	signal := &db.ParsedSignal{
		RawMessageID:    &msg.ID,
		Timestamp:       msg.Timestamp,
		ChannelID:       msg.ChannelID,
		Author:          author,
		Ticker:          ticker,
		Direction:       direction,
		SignalType:      operation,
		TargetPrice:     target,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		ConfidenceScore: confidence,
		ParserVersion:   Version,
		OriginalText:    msg.Text,
		ExtractedData: map[string]interface{}{
			"cleaned_text": cleaned,
			"all_tickers":  allTickers,
			"all_numbers":  extractAllNumbers(cleaned),
		},
	}

	p.log.Debug().
		Int64("message_id", msg.ID).
		Str("ticker", ticker).
		Str("direction", string(direction)).
		Str("operation", string(operation)).
		Float64("confidence", confidence).
		Msg("Message parsed")

	return signal, nil
}

func cleanText(text string) string {
	cleaned := text
	for _, re := range garbagePatterns {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = blankLines.ReplaceAllString(cleaned, "\n")
	return strings.TrimSpace(cleaned)
}

func (p *Parser) isTradingMessage(ctx context.Context, text string) (bool, error) {
	matched, err := p.anyMatch(ctx, patterns.CategoryTradingKeyword, text)
	if err != nil {
		return false, err
	}
	if matched {
		return true, nil
	}

	matched, err = p.anyMatch(ctx, patterns.CategoryTicker, text)
	if err != nil {
		return false, err
	}
	if matched {
		return true, nil
	}

	for _, emoji := range tradingEmojis {
		if strings.Contains(text, emoji) {
			return true, nil
		}
	}
	return false, nil
}

func (p *Parser) extractTicker(ctx context.Context, text string) (string, error) {
	list, err := p.patterns.Get(ctx, patterns.CategoryTicker)
	if err != nil {
		return "", err
	}

	for _, pat := range list {
		re := p.patterns.Compiled(pat)
		if re == nil {
			continue
		}
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.ToUpper(captureOrWhole(m))
		if validTicker(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func (p *Parser) extractAllTickers(ctx context.Context, text string) ([]string, error) {
	list, err := p.patterns.Get(ctx, patterns.CategoryTicker)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var tickers []string
	for _, pat := range list {
		re := p.patterns.Compiled(pat)
		if re == nil {
			continue
		}
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			candidate := strings.ToUpper(captureOrWhole(m))
			if validTicker(candidate) && !seen[candidate] {
				seen[candidate] = true
				tickers = append(tickers, candidate)
			}
		}
	}
	return tickers, nil
}

func validTicker(s string) bool {
	if len(s) < 3 || len(s) > 6 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return !tickerStopwords[s]
}

// analyzeOperation classifies the message: exit patterns take precedence,
// then explicit entry patterns per direction, then a loose direction
// mention, and finally an entry with mixed direction.
func (p *Parser) analyzeOperation(ctx context.Context, text string) (db.SignalType, db.Direction, error) {
	exitList, err := p.patterns.Get(ctx, patterns.CategoryOperationExit)
	if err != nil {
		return "", "", err
	}
	for _, pat := range exitList {
		re := p.patterns.Compiled(pat)
		if re == nil {
			continue
		}
		if m := re.FindString(text); m != "" {
			switch {
			case looseLong.MatchString(m):
				return db.SignalTypeExit, db.DirectionLong, nil
			case looseShort.MatchString(m):
				return db.SignalTypeExit, db.DirectionShort, nil
			default:
				return db.SignalTypeExit, db.DirectionMixed, nil
			}
		}
	}

	longHit, err := p.anyMatch(ctx, patterns.CategoryDirectionLong, text)
	if err != nil {
		return "", "", err
	}
	if longHit {
		return db.SignalTypeEntry, db.DirectionLong, nil
	}

	shortHit, err := p.anyMatch(ctx, patterns.CategoryDirectionShort, text)
	if err != nil {
		return "", "", err
	}
	if shortHit {
		return db.SignalTypeEntry, db.DirectionShort, nil
	}

	if looseLong.MatchString(text) {
		return db.SignalTypeEntry, db.DirectionLong, nil
	}
	if looseShort.MatchString(text) {
		return db.SignalTypeEntry, db.DirectionShort, nil
	}

	return db.SignalTypeEntry, db.DirectionMixed, nil
}

func (p *Parser) extractAuthor(ctx context.Context, originalText string, fallback *string) (string, error) {
	list, err := p.patterns.Get(ctx, patterns.CategoryAuthor)
	if err != nil {
		return "", err
	}

	for _, pat := range list {
		re := p.patterns.Compiled(pat)
		if re == nil {
			continue
		}
		if m := re.FindStringSubmatch(originalText); m != nil {
			return captureOrWhole(m), nil
		}
	}

	if fallback != nil && *fallback != "" {
		return *fallback, nil
	}
	return "Unknown", nil
}

func (p *Parser) extractPrice(ctx context.Context, category, text string) (*float64, error) {
	list, err := p.patterns.Get(ctx, category)
	if err != nil {
		return nil, err
	}

	for _, pat := range list {
		re := p.patterns.Compiled(pat)
		if re == nil {
			continue
		}
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(captureOrWhole(m), ",", ".")
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if price >= minPrice && price <= maxPrice {
			return &price, nil
		}
	}
	return nil, nil
}

func extractAllNumbers(text string) []float64 {
	var numbers []float64
	for _, m := range numberPattern.FindAllString(text, -1) {
		n, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		if err != nil {
			continue
		}
		if n >= minPrice && n <= maxPrice {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

func calculateConfidence(text string, direction db.Direction, operation db.SignalType) float64 {
	// Ticker presence is a precondition of reaching this point
	confidence := 0.4
	if direction != db.DirectionMixed {
		confidence += 0.3
	}
	if operation != "" {
		confidence += 0.2
	}
	if len(strings.Fields(text)) > 3 {
		confidence += 0.05
	}
	lower := strings.ToLower(text)
	for _, token := range confidenceTokens {
		if strings.Contains(lower, token) {
			confidence += 0.05
			break
		}
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func (p *Parser) anyMatch(ctx context.Context, category, text string) (bool, error) {
	list, err := p.patterns.Get(ctx, category)
	if err != nil {
		return false, fmt.Errorf("failed to load %s patterns: %w", category, err)
	}
	for _, pat := range list {
		re := p.patterns.Compiled(pat)
		if re == nil {
			continue
		}
		if re.MatchString(text) {
			return true, nil
		}
	}
	return false, nil
}

// captureOrWhole returns submatch 1 when the pattern defines one,
// otherwise the whole match
func captureOrWhole(m []string) string {
	if len(m) > 1 && m[1] != "" {
		return m[1]
	}
	return m[0]
}
