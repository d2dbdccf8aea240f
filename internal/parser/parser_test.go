package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/patterns"
)

// fixturePatterns mirrors the seed pattern set shipped in migrations
type fixturePatterns struct{}

func (fixturePatterns) GetAllActivePatterns(ctx context.Context) (map[string][]*db.ParsingPattern, error) {
	id := int64(0)
	mk := func(category, name, pattern string, priority int) *db.ParsingPattern {
		id++
		return &db.ParsingPattern{ID: id, Name: name, Category: category, Pattern: pattern, Priority: priority, IsActive: true}
	}

	return map[string][]*db.ParsingPattern{
		patterns.CategoryTicker: {
			mk(patterns.CategoryTicker, "colon_ticker", `:\s*([A-Z]{3,6})\b`, 30),
			mk(patterns.CategoryTicker, "dollar_ticker", `\$([A-Z]{3,6})\b`, 20),
			mk(patterns.CategoryTicker, "bare_ticker", `\b([A-Z]{3,6})\b`, 10),
		},
		patterns.CategoryTradingKeyword: {
			mk(patterns.CategoryTradingKeyword, "kw_nouns", `(?i)(?:^|[^\pL])(сделка|позиция|сигнал)(?:$|[^\pL])`, 40),
			mk(patterns.CategoryTradingKeyword, "kw_direction", `(?i)(?:^|[^\pL])(лонг|шорт|long|short)(?:$|[^\pL])`, 30),
			mk(patterns.CategoryTradingKeyword, "kw_actions", `(?i)(?:^|[^\pL])(сократил|увеличил|закрыл|открыл)(?:$|[^\pL])`, 20),
			mk(patterns.CategoryTradingKeyword, "kw_trades", `(?i)(?:^|[^\pL])(купил|продал|buy|sell)(?:$|[^\pL])`, 10),
		},
		patterns.CategoryAuthor: {
			mk(patterns.CategoryAuthor, "hash_dash", `#([A-Za-z0-9_]+)\s*[-–]`, 20),
			mk(patterns.CategoryAuthor, "hash_only", `#([A-Za-z0-9_]+)`, 10),
		},
		patterns.CategoryOperationExit: {
			mk(patterns.CategoryOperationExit, "exit_reduce", `(?i)(сократил|уменьшил|reduce)\s+(лонг|шорт|long|short)`, 70),
			mk(patterns.CategoryOperationExit, "exit_add", `(?i)(увеличил|добавил|add)\s+(лонг|шорт|long|short)`, 60),
			mk(patterns.CategoryOperationExit, "exit_close", `(?i)(закрыл|фикс|close)\s*(лонг|шорт|long|short)?`, 50),
			mk(patterns.CategoryOperationExit, "exit_word", `(?i)(выход|exit)\s*(из)?\s*(лонг|шорт|long|short)?`, 40),
			mk(patterns.CategoryOperationExit, "exit_bull_emoji", `(?i)(лонг|шорт|long|short)\s*🐃\s*:`, 20),
			mk(patterns.CategoryOperationExit, "exit_bear_emoji", `(?i)(лонг|шорт|long|short)\s*🐻\s*:`, 10),
		},
		patterns.CategoryDirectionLong: {
			mk(patterns.CategoryDirectionLong, "long_enter", `(?i)(вход|купил|покупк|buy|набрал)\s+лонг`, 30),
			mk(patterns.CategoryDirectionLong, "long_open", `(?i)(открыл|взял)\s+лонг`, 20),
			mk(patterns.CategoryDirectionLong, "long_at", `(?i)(лонг|long)\s+(по|от|в|@)(?:$|[^\pL])`, 10),
		},
		patterns.CategoryDirectionShort: {
			mk(patterns.CategoryDirectionShort, "short_enter", `(?i)(вход|продал|продаж|sell|набрал)\s+шорт`, 30),
			mk(patterns.CategoryDirectionShort, "short_open", `(?i)(открыл|взял)\s+шорт`, 20),
			mk(patterns.CategoryDirectionShort, "short_at", `(?i)(шорт|short)\s+(по|от|в|@)(?:$|[^\pL])`, 10),
		},
		patterns.CategoryPriceTarget: {
			mk(patterns.CategoryPriceTarget, "target_kw", `(?i)(?:цел\pL*|target|таргет|@)\s*:?\s*(\d+(?:[.,]\d+)?)`, 20),
			mk(patterns.CategoryPriceTarget, "target_at", `(?i)(?:по|от)\s+(\d+(?:[.,]\d+)?)`, 10),
		},
		patterns.CategoryPriceStop: {
			mk(patterns.CategoryPriceStop, "stop_kw", `(?i)(?:стоп|stop)\s*:?\s*(\d+(?:[.,]\d+)?)`, 10),
		},
		patterns.CategoryPriceTake: {
			mk(patterns.CategoryPriceTake, "take_kw", `(?i)(?:тейк|take|профит)\s*:?\s*(\d+(?:[.,]\d+)?)`, 10),
		},
	}, nil
}

func newTestParser() *Parser {
	return New(patterns.NewStore(fixturePatterns{}))
}

func msg(text string) *db.RawMessage {
	return &db.RawMessage{ID: 1, ChannelID: 100, MessageID: 200, Text: text}
}

func TestParseAuthorPrefixedEntry(t *testing.T) {
	p := newTestParser()

	signal, err := p.Parse(context.Background(), msg("#ProfitKing – long ABC по 100"))
	require.NoError(t, err)

	assert.Equal(t, "ProfitKing", signal.Author)
	assert.Equal(t, "ABC", signal.Ticker)
	assert.Equal(t, db.DirectionLong, signal.Direction)
	assert.Equal(t, db.SignalTypeEntry, signal.SignalType)
	require.NotNil(t, signal.TargetPrice)
	assert.InDelta(t, 100.0, *signal.TargetPrice, 1e-9)
	assert.Equal(t, Version, signal.ParserVersion)
	// ticker 0.4 + direction 0.3 + operation 0.2 + >3 words 0.05
	assert.InDelta(t, 0.95, signal.ConfidenceScore, 1e-9)
}

func TestParseIdempotence(t *testing.T) {
	p := newTestParser()
	texts := []string{
		"#ProfitKing – long ABC по 100",
		"взял лонг $SBER от 250,5 стоп 240",
		"сократил шорт GAZP",
		"шорт 🐻 : LKOH цель 6000",
	}

	for _, text := range texts {
		first, err := p.Parse(context.Background(), msg(text))
		require.NoError(t, err, text)

		second, err := p.Parse(context.Background(), msg(first.OriginalText))
		require.NoError(t, err, text)

		assert.Equal(t, first.Ticker, second.Ticker, text)
		assert.Equal(t, first.Direction, second.Direction, text)
		assert.Equal(t, first.SignalType, second.SignalType, text)
		assert.Equal(t, first.Author, second.Author, text)
		assert.Equal(t, first.ConfidenceScore, second.ConfidenceScore, text)
	}
}

func TestParseRejections(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name string
		text string
		want error
	}{
		{"empty", "   ", ErrEmptyMessage},
		{"chatter", "доброе утро, как дела?", ErrNotTradingMessage},
		{"keyword without ticker", "открыл позицию сегодня", ErrNoTicker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(context.Background(), msg(tt.text))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseExitClassification(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name      string
		text      string
		direction db.Direction
	}{
		{"close long", "закрыл лонг SBER", db.DirectionLong},
		{"reduce short", "сократил шорт GAZP", db.DirectionShort},
		{"bare close", "закрыл VTBR сегодня, сделка done", db.DirectionMixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal, err := p.Parse(context.Background(), msg(tt.text))
			require.NoError(t, err)
			assert.Equal(t, db.SignalTypeExit, signal.SignalType)
			assert.Equal(t, tt.direction, signal.Direction)
		})
	}
}

func TestParseCommaDecimalAndBounds(t *testing.T) {
	p := newTestParser()

	signal, err := p.Parse(context.Background(), msg("взял лонг $SBER от 250,5 стоп 240 тейк 270"))
	require.NoError(t, err)

	require.NotNil(t, signal.TargetPrice)
	assert.InDelta(t, 250.5, *signal.TargetPrice, 1e-9)
	require.NotNil(t, signal.StopLoss)
	assert.InDelta(t, 240.0, *signal.StopLoss, 1e-9)
	require.NotNil(t, signal.TakeProfit)
	assert.InDelta(t, 270.0, *signal.TakeProfit, 1e-9)
}

func TestParsePriceOutOfBoundsIgnored(t *testing.T) {
	p := newTestParser()

	// 500000 exceeds the accepted price range
	signal, err := p.Parse(context.Background(), msg("лонг по 500000 SBER"))
	require.NoError(t, err)
	assert.Nil(t, signal.TargetPrice)
}

func TestParseAuthorFallbacks(t *testing.T) {
	p := newTestParser()

	username := "channel_author"
	m := msg("взял лонг SBER")
	m.Author = &username

	signal, err := p.Parse(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "channel_author", signal.Author)

	signal, err = p.Parse(context.Background(), msg("взял лонг SBER"))
	require.NoError(t, err)
	assert.Equal(t, "Unknown", signal.Author)
}

func TestParseEmojiOnlyTradingHint(t *testing.T) {
	p := newTestParser()

	// No keyword or direction word; the message still reads as trading
	signal, err := p.Parse(context.Background(), msg("📈 SBER 250"))
	require.NoError(t, err)
	assert.Equal(t, "SBER", signal.Ticker)
	assert.Equal(t, db.DirectionMixed, signal.Direction)
	assert.Equal(t, db.SignalTypeEntry, signal.SignalType)
}

func TestParseSingleTickerFirstMatchWins(t *testing.T) {
	p := newTestParser()

	// The colon pattern outranks the bare-ticker pattern
	signal, err := p.Parse(context.Background(), msg("GAZP сигнал: SPBE long по 90"))
	require.NoError(t, err)
	assert.Equal(t, "SPBE", signal.Ticker)

	all, ok := signal.ExtractedData["all_tickers"].([]string)
	require.True(t, ok)
	assert.Contains(t, all, "GAZP")
	assert.Contains(t, all, "SPBE")
}

func TestParseStopwordTickerRejected(t *testing.T) {
	p := newTestParser()

	// BUY matches the ticker shape but is excluded
	_, err := p.Parse(context.Background(), msg("BUY сигнал сегодня"))
	assert.ErrorIs(t, err, ErrNoTicker)
}

func TestCleanTextStripsGarbage(t *testing.T) {
	cleaned := cleanText("лонг SBER\nhttps://t.me/somechannel\n\n@copy_bot промо")
	assert.NotContains(t, cleaned, "t.me")
	assert.NotContains(t, cleaned, "bot")
	assert.Contains(t, cleaned, "SBER")
}
