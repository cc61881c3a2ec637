package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"tothemoon-go/internal/signal"
)

const (
	klineOpenTime = 0
	klineClose    = 4
	klineVolume   = 5
)

type tickerPrice struct {
	Symbol string `json:"symbol" validate:"required"`
	Price  string `json:"price" validate:"required,numeric"`
}

func (f *Feed) fetchTickerPrices(ctx context.Context) (map[string]float64, error) {
	var payload []tickerPrice
	if err := f.getJSON(ctx, "/api/v3/ticker/price", nil, &payload); err != nil {
		return nil, err
	}
	prices := make(map[string]float64, len(payload))
	skipped := 0
	for _, tp := range payload {
		px, err := f.parsePrice(&tp, tp.Price)
		if err != nil {
			skipped++
			continue
		}
		prices[tp.Symbol] = px
	}
	if skipped > 0 {
		f.log.Warn().Int("skipped", skipped).Msg("invalid binance ticker entries")
	}
	f.storePrices(prices)
	return prices, nil
}

func (f *Feed) fetchKlines(ctx context.Context, symbol string) ([]signal.Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", "1m")
	if f.klineLimit > 0 {
		query.Set("limit", strconv.Itoa(f.klineLimit))
	}
	var rows [][]any
	if err := f.getJSON(ctx, "/api/v3/klines", query, &rows); err != nil {
		return nil, err
	}
	candles := make([]signal.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(symbol, row)
		if err != nil {
			return nil, fmt.Errorf("kline %d for %s: %w", i, symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseKline(symbol string, row []any) (signal.Candle, error) {
	if len(row) <= klineVolume {
		return signal.Candle{}, fmt.Errorf("expected at least %d fields, got %d", klineVolume+1, len(row))
	}
	closePx, err := decimalField(row[klineClose])
	if err != nil {
		return signal.Candle{}, fmt.Errorf("close: %w", err)
	}
	volume, err := decimalField(row[klineVolume])
	if err != nil {
		return signal.Candle{}, fmt.Errorf("volume: %w", err)
	}
	openMs, err := decimalField(row[klineOpenTime])
	if err != nil {
		return signal.Candle{}, fmt.Errorf("open time: %w", err)
	}
	return signal.Candle{
		Symbol: symbol,
		Close:  closePx.InexactFloat64(),
		Volume: volume.InexactFloat64(),
		Ts:     time.UnixMilli(openMs.IntPart()),
	}, nil
}

func decimalField(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	default:
		return decimal.Zero, fmt.Errorf("unexpected field type %T", v)
	}
}

// parsePrice validates the payload struct and converts a positive price string.
func (f *Feed) parsePrice(payload any, raw string) (float64, error) {
	if err := f.validate.Struct(payload); err != nil {
		return 0, err
	}
	px, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, err
	}
	if !px.IsPositive() {
		return 0, fmt.Errorf("non-positive price %s", raw)
	}
	return px.InexactFloat64(), nil
}

func (f *Feed) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := f.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("binance %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
