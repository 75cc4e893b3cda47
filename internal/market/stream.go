package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamProvider keeps rolling candle series per (symbol, timeframe) fed by a
// kline websocket stream. It satisfies Provider for symbols it subscribes to;
// requests for unsubscribed series fail so the caller's degradation policy
// kicks in.
type StreamProvider struct {
	baseURL   string
	symbols   []string
	maxBars   int
	logger    zerolog.Logger
	isRunning bool

	mu     sync.RWMutex
	series map[string][]Candle // key: SYMBOL:tf
	ticks  map[string]float64
	wsConn *websocket.Conn

	reconnects int
}

// klineEvent is the combined-stream kline payload shape.
type klineEvent struct {
	Data struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Kline     struct {
			OpenTime  int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			Final     bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

// NewStreamProvider creates a websocket-fed provider for the given symbols
// across all engine timeframes.
func NewStreamProvider(baseURL string, symbols []string, maxBars int, logger zerolog.Logger) *StreamProvider {
	if maxBars <= 0 {
		maxBars = 500
	}
	return &StreamProvider{
		baseURL: baseURL,
		symbols: symbols,
		maxBars: maxBars,
		logger:  logger,
		series:  make(map[string][]Candle),
		ticks:   make(map[string]float64),
	}
}

// Start connects and keeps reading until ctx is cancelled, reconnecting with
// backoff on connection loss.
func (s *StreamProvider) Start(ctx context.Context) {
	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()

	streams := make([]string, 0, len(s.symbols)*len(AllTimeframes))
	for _, sym := range s.symbols {
		for _, tf := range AllTimeframes {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), tf))
		}
	}
	wsURL := s.baseURL + "/stream?streams=" + strings.Join(streams, "/")

	go s.connectLoop(ctx, wsURL)
}

// Stop terminates the read loop.
func (s *StreamProvider) Stop() {
	s.mu.Lock()
	s.isRunning = false
	if s.wsConn != nil {
		s.wsConn.Close()
	}
	s.mu.Unlock()
}

func (s *StreamProvider) connectLoop(ctx context.Context, wsURL string) {
	for {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running || ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
			s.logger.Warn().Err(err).Msg("kline stream connect failed, retrying in 5s")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		s.mu.Lock()
		s.wsConn = conn
		s.mu.Unlock()
		s.logger.Info().Int("streams", len(s.symbols)*len(AllTimeframes)).Msg("kline stream connected")

		s.readLoop(conn)

		s.mu.RLock()
		running = s.isRunning
		s.mu.RUnlock()
		if !running || ctx.Err() != nil {
			return
		}
		s.logger.Warn().Msg("kline stream lost, reconnecting in 3s")
		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (s *StreamProvider) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("kline stream read error")
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *StreamProvider) handleMessage(message []byte) {
	var event klineEvent
	if err := json.Unmarshal(message, &event); err != nil {
		s.logger.Debug().Err(err).Msg("unparseable stream message")
		return
	}
	if event.Data.EventType != "kline" {
		return
	}

	k := event.Data.Kline
	candle := Candle{
		OpenTime:  k.OpenTime,
		CloseTime: k.CloseTime,
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
	}

	key := seriesKey(event.Data.Symbol, Timeframe(k.Interval))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks[strings.ToUpper(event.Data.Symbol)] = candle.Close

	series := s.series[key]
	if n := len(series); n > 0 && series[n-1].OpenTime == candle.OpenTime {
		series[n-1] = candle // live bar update
	} else {
		series = append(series, candle)
		if len(series) > s.maxBars {
			series = series[len(series)-s.maxBars:]
		}
	}
	s.series[key] = series
}

// Candles serves the buffered series, newest last.
func (s *StreamProvider) Candles(_ context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[seriesKey(symbol, tf)]
	if !ok || len(series) == 0 {
		return nil, fmt.Errorf("no buffered candles for %s %s", symbol, tf)
	}
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]Candle, len(series))
	copy(out, series)
	return out, nil
}

// TickPrice returns the last streamed close for the symbol.
func (s *StreamProvider) TickPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.ticks[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("no tick for %s", symbol)
	}
	return price, nil
}

func seriesKey(symbol string, tf Timeframe) string {
	return strings.ToUpper(symbol) + ":" + string(tf)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
