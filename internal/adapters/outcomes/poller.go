package outcomes

import (
	"context"
	"errors"
	"fmt"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/internal/learning"
	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/models"
)

// OutcomeRecorder accepts converted trade outcomes
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome models.TradeOutcome) error
}

// Poller periodically pulls closed orders from the exchange and feeds them
// into the outcome recorder. The candidate id travels in the client order id,
// set when the trade was placed; orders without one were not ours to judge.
type Poller struct {
	cfg      config.OutcomeFeedConfig
	exchange *ccxt.Binance
	recorder OutcomeRecorder
	sinceMs  map[string]int64
}

// NewPoller creates new closed-order poller
func NewPoller(cfg config.OutcomeFeedConfig, recorder OutcomeRecorder) (*Poller, error) {
	options := map[string]interface{}{
		"apiKey": cfg.APIKey,
		"secret": cfg.Secret,
	}

	exchange := ccxt.NewBinance(options)
	exchange.SetOption("defaultType", "future")
	exchange.SetOption("adjustForTimeDifference", true)

	if err := exchange.LoadMarkets(); err != nil {
		return nil, fmt.Errorf("failed to load markets: %w", err)
	}

	logger.Info("Outcome poller initialized",
		zap.String("exchange", cfg.Exchange),
		zap.Strings("symbols", cfg.Symbols))

	return &Poller{
		cfg:      cfg,
		exchange: exchange,
		recorder: recorder,
		sinceMs:  make(map[string]int64),
	}, nil
}

// Name implements worker.Worker
func (p *Poller) Name() string {
	return "outcome_poller"
}

// Run fetches and records newly closed orders for every configured symbol
func (p *Poller) Run(ctx context.Context) error {
	for _, symbol := range p.cfg.Symbols {
		if err := p.pollSymbol(ctx, symbol); err != nil {
			logger.Error("Outcome poll failed",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
	return nil
}

func (p *Poller) pollSymbol(ctx context.Context, symbol string) error {
	opts := []ccxt.FetchClosedOrdersOptions{
		ccxt.WithFetchClosedOrdersLimit(100),
	}
	if since := p.sinceMs[symbol]; since > 0 {
		opts = append(opts, ccxt.WithFetchClosedOrdersSince(since))
	}

	orders, err := p.exchange.FetchClosedOrders(symbol, opts...)
	if err != nil {
		return fmt.Errorf("failed to fetch closed orders: %w", err)
	}

	for i := range orders {
		order := &orders[i]

		if order.Timestamp != nil && *order.Timestamp >= p.sinceMs[symbol] {
			p.sinceMs[symbol] = *order.Timestamp + 1
		}

		outcome, ok := toOutcome(order)
		if !ok {
			continue
		}

		err := p.recorder.RecordOutcome(ctx, outcome)
		if errors.Is(err, learning.ErrUnknownCandidate) {
			logger.Debug("Closed order without a recommendation",
				zap.String("candidate_id", outcome.CandidateID))
			continue
		}
		if err != nil {
			logger.Error("Failed to record outcome",
				zap.String("candidate_id", outcome.CandidateID),
				zap.Error(err))
		}
	}

	return nil
}

// toOutcome converts a closed exchange order into a trade outcome. Orders
// without a client order id or realized pnl are skipped.
func toOutcome(order *ccxt.Order) (models.TradeOutcome, bool) {
	if order.ClientOrderId == nil || *order.ClientOrderId == "" {
		return models.TradeOutcome{}, false
	}
	if order.Status == nil || *order.Status != "closed" {
		return models.TradeOutcome{}, false
	}

	pnl := getFloat(order.Info, "realizedPnl")

	result := models.ResultBreakEven
	switch {
	case pnl > 0:
		result = models.ResultWin
	case pnl < 0:
		result = models.ResultLoss
	}

	closedAt := time.Now()
	if order.LastTradeTimestamp != nil {
		closedAt = time.UnixMilli(*order.LastTradeTimestamp)
	} else if order.Timestamp != nil {
		closedAt = time.UnixMilli(*order.Timestamp)
	}

	return models.TradeOutcome{
		CandidateID: *order.ClientOrderId,
		Result:      result,
		RealizedPnL: models.NewDecimal(pnl),
		ClosedAt:    closedAt,
	}, true
}

func getFloat(m interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	if mmap, ok := m.(map[string]interface{}); ok {
		if val, ok := mmap[key]; ok {
			switch v := val.(type) {
			case float64:
				return v
			case string:
				var f float64
				if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
					return f
				}
			}
		}
	}
	return 0
}
