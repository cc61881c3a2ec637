package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tothemoon-go/internal/signal"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice rejects a gold-data close that is not a positive finite number.
var ErrInvalidPrice = errors.New("invalid price")

// TimeLayout is the fixed date-time format used by every CSV file this module writes.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the column layout shared by gold-data files and the transaction log.
var Header = []string{"Time", "Name", "Amount", "Exchange Rate"}

var priceColumns = []string{"exchange rate", "close", "price"}

// CandleSource supplies historical bars for a symbol.
type CandleSource interface {
	HistoricalCandles(ctx context.Context, symbol string) ([]signal.Candle, error)
}

// CSVSource serves gold data from <Dir>/<SYMBOL>.csv. When Fallback is set, a missing
// file (or every file, with Refresh) is downloaded from it and written before reading.
type CSVSource struct {
	Dir      string
	Fallback CandleSource
	Refresh  bool
}

// Path returns the file backing symbol.
func (s CSVSource) Path(symbol string) string {
	return filepath.Join(s.Dir, symbol+".csv")
}

// HistoricalCandles reads the symbol's file, downloading it first when required.
func (s CSVSource) HistoricalCandles(ctx context.Context, symbol string) ([]signal.Candle, error) {
	path := s.Path(symbol)
	_, statErr := os.Stat(path)
	missing := errors.Is(statErr, fs.ErrNotExist)
	if s.Fallback != nil && (s.Refresh || missing) {
		candles, err := s.Fallback.HistoricalCandles(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", symbol, err)
		}
		if err := SaveCandles(path, symbol, candles); err != nil {
			return nil, err
		}
		return candles, nil
	}
	return LoadCandles(path, symbol)
}

// HistoricalCloses is HistoricalCandles reduced to close prices.
func (s CSVSource) HistoricalCloses(ctx context.Context, symbol string) ([]float64, error) {
	candles, err := s.HistoricalCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return Closes(candles), nil
}

// Closes extracts the close price of each candle.
func Closes(candles []signal.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// LoadCandles parses a delimited file with a header line. Rows with an empty price cell
// are skipped; the price column is found by name or defaults to the last column.
func LoadCandles(path, symbol string) ([]signal.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gold data: %w", err)
	}
	defer file.Close()
	return ReadCandles(file, symbol)
}

// ReadCandles is LoadCandles over an arbitrary reader.
func ReadCandles(r io.Reader, symbol string) ([]signal.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	priceIdx, timeIdx, amountIdx := columnIndexes(header)

	var out []signal.Candle
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if priceIdx >= len(record) || strings.TrimSpace(record[priceIdx]) == "" {
			continue
		}
		price, err := parseClose(record[priceIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candle := signal.Candle{Symbol: symbol, Close: price}
		if timeIdx >= 0 && timeIdx < len(record) {
			candle.Ts = parseTime(record[timeIdx])
		}
		if amountIdx >= 0 && amountIdx < len(record) {
			candle.Volume, _ = strconv.ParseFloat(strings.TrimSpace(record[amountIdx]), 64)
		}
		out = append(out, candle)
	}
	return out, nil
}

// parseClose accepts only positive decimal prices, so NaN or Inf never reach a window.
func parseClose(raw string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	px := d.InexactFloat64()
	if !d.IsPositive() || math.IsInf(px, 0) {
		return 0, fmt.Errorf("price %q: %w", raw, ErrInvalidPrice)
	}
	return px, nil
}

// SaveCandles writes candles as gold data, replacing any existing file.
func SaveCandles(path, symbol string, candles []signal.Candle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create gold data dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create gold data: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, c := range candles {
		row := []string{
			c.Ts.Format(TimeLayout),
			symbol,
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func columnIndexes(header []string) (price, ts, amount int) {
	price, ts, amount = len(header)-1, -1, -1
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(h))
	}
	found := false
	for _, want := range priceColumns {
		for i, name := range names {
			if name == want {
				price = i
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	for i, name := range names {
		switch name {
		case "time", "unix", "timestamp":
			if ts < 0 {
				ts = i
			}
		case "amount", "volume":
			if amount < 0 {
				amount = i
			}
		}
	}
	return price, ts, amount
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if ts, err := time.ParseInLocation(TimeLayout, raw, time.Local); err == nil {
		return ts
	}
	if ms, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.UnixMilli(int64(ms))
	}
	return time.Time{}
}
