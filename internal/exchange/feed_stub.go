package exchange

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"tothemoon-go/internal/signal"
)

// stubMarket is a seeded random walk per symbol. The same symbols always produce
// the same sequence.
type stubMarket struct {
	mu     sync.Mutex
	prices map[string]float64
	rngs   map[string]*rand.Rand
}

func newStubMarket(symbols []string) *stubMarket {
	m := &stubMarket{prices: make(map[string]float64), rngs: make(map[string]*rand.Rand)}
	m.track(symbols)
	return m
}

// track seeds every symbol not walked yet; known symbols keep their price.
func (m *stubMarket) track(symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sym := range symbols {
		if _, ok := m.prices[sym]; ok {
			continue
		}
		seed := symbolSeed(sym)
		m.rngs[sym] = rand.New(rand.NewSource(seed))
		m.prices[sym] = 10 + float64(seed%990)
	}
}

func symbolSeed(sym string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sym))
	return int64(h.Sum64() >> 1)
}

// step advances every symbol by up to ±1% and returns the new prices.
func (m *stubMarket) step() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.prices))
	for sym, px := range m.prices {
		px *= 1 + (m.rngs[sym].Float64()*2-1)*0.01
		m.prices[sym] = px
		out[sym] = px
	}
	return out
}

// history walks backwards from the current price to produce n one-minute candles.
func (m *stubMarket) history(symbol string, n int, now time.Time) []signal.Candle {
	m.mu.Lock()
	defer m.mu.Unlock()
	px, ok := m.prices[symbol]
	if !ok || n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(symbolSeed(symbol) ^ 0x5eed))
	out := make([]signal.Candle, n)
	start := now.Truncate(time.Minute).Add(-time.Duration(n) * time.Minute)
	for i := n - 1; i >= 0; i-- {
		out[i] = signal.Candle{Symbol: symbol, Close: px, Volume: 1 + rng.Float64()*10, Ts: start.Add(time.Duration(i) * time.Minute)}
		px /= 1 + (rng.Float64()*2-1)*0.01
	}
	return out
}
