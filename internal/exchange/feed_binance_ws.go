package exchange

import (
	"context"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type miniTicker struct {
	EventType string `json:"e"`
	Symbol    string `json:"s" validate:"required"`
	Close     string `json:"c" validate:"required,numeric"`
	EventTime int64  `json:"E"`
}

func (f *Feed) runBinanceStream(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Dur("backoff", backoff).Msg("binance stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinanceWS).Str("url", f.wsURL).Msg("connected market data stream")

	conn.SetReadLimit(1 << 22)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		f.storePrices(f.decodeMiniTickers(message))
	}
}

func (f *Feed) decodeMiniTickers(message []byte) map[string]float64 {
	var batch []miniTicker
	if err := json.Unmarshal(message, &batch); err != nil {
		f.log.Warn().Err(err).Msg("failed to decode binance mini ticker")
		return nil
	}
	prices := make(map[string]float64, len(batch))
	for _, mt := range batch {
		px, err := f.parsePrice(&mt, mt.Close)
		if err != nil {
			f.log.Debug().Err(err).Str("sym", mt.Symbol).Msg("invalid mini ticker")
			continue
		}
		prices[mt.Symbol] = px
	}
	return prices
}
