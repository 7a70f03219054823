package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cinar/indicator"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/models"
)

// SnapshotHandler receives every decoded market snapshot
type SnapshotHandler func(ctx context.Context, snapshot models.MarketSnapshot)

// feedMessage is the upstream wire format. volatility_index and trend may be
// absent when the provider's own computation lags.
type feedMessage struct {
	Timestamp       int64    `json:"ts"`
	VolatilityIndex *float64 `json:"volatility_index"`
	Trend           *float64 `json:"trend"`
	IndexPrice      *float64 `json:"index_price"`
	RiskAppetite    float64  `json:"risk_appetite"`
}

// Feed consumes the market snapshot WebSocket stream and hands snapshots to
// the regime classifier. When the upstream omits the trend signal, a local
// SMA deviation over recent index prices fills in.
type Feed struct {
	cfg     config.MarketFeedConfig
	handler SnapshotHandler

	mu     sync.Mutex
	closes []float64
}

// NewFeed creates new market feed consumer
func NewFeed(cfg config.MarketFeedConfig, handler SnapshotHandler) *Feed {
	return &Feed{
		cfg:     cfg,
		handler: handler,
	}
}

// Start runs the consume loop until the context is canceled, reconnecting
// after failures
func (f *Feed) Start(ctx context.Context) {
	for {
		if err := f.consume(ctx); err != nil {
			logger.Warn("Market feed disconnected",
				zap.String("url", f.cfg.URL),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

func (f *Feed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to market feed: %w", err)
	}
	defer conn.Close()

	logger.Info("Market feed connected", zap.String("url", f.cfg.URL))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("market feed read: %w", err)
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Malformed market feed message", zap.Error(err))
			continue
		}

		f.handler(ctx, f.toSnapshot(msg))
	}
}

// toSnapshot converts a wire message, substituting the SMA trend when the
// upstream left it out
func (f *Feed) toSnapshot(msg feedMessage) models.MarketSnapshot {
	snapshot := models.MarketSnapshot{
		Timestamp:       time.UnixMilli(msg.Timestamp),
		VolatilityIndex: msg.VolatilityIndex,
		Trend:           msg.Trend,
		RiskAppetite:    msg.RiskAppetite,
	}

	if msg.IndexPrice != nil {
		f.pushClose(*msg.IndexPrice)
		if snapshot.Trend == nil {
			if trend, ok := f.smaTrend(); ok {
				snapshot.Trend = &trend
			}
		}
	}

	return snapshot
}

func (f *Feed) pushClose(price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closes = append(f.closes, price)
	if max := f.cfg.TrendSMAPeriod * 2; len(f.closes) > max {
		f.closes = f.closes[len(f.closes)-max:]
	}
}

// smaTrend derives a signed trend from the latest price's percent deviation
// off its simple moving average
func (f *Feed) smaTrend() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.closes) < f.cfg.TrendSMAPeriod {
		return 0, false
	}

	sma := indicator.Sma(f.cfg.TrendSMAPeriod, f.closes)
	mean := sma[len(sma)-1]
	if mean == 0 {
		return 0, false
	}

	last := f.closes[len(f.closes)-1]
	return (last - mean) / mean * 100, true
}
