package telegram

import (
	"fmt"
	"math"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/selivandex/advisor/internal/adapters/config"
	"github.com/selivandex/advisor/pkg/logger"
	"github.com/selivandex/advisor/pkg/models"
)

// Notifier pushes learning cycle summaries and calibration drift alerts to a
// Telegram chat. All sends are best effort; a failed alert never fails the
// run that produced it.
type Notifier struct {
	api *tgbotapi.BotAPI
	cfg config.TelegramConfig
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("Telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName))

	return &Notifier{api: bot, cfg: cfg}, nil
}

// NotifyCycleReport sends a summary of one finished learning cycle
func (n *Notifier) NotifyCycleReport(report *models.CycleReport) {
	if !n.cfg.AlertOnCycles {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🧠 Learning cycle finished in %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Processed: %d, skipped: %d, failed: %d\n", report.Processed, report.Skipped, report.Failed)
	fmt.Fprintf(&b, "Weights updated: %d\n", report.WeightsUpdated)
	fmt.Fprintf(&b, "Insights extracted: %d\n", report.InsightsExtracted)
	fmt.Fprintf(&b, "Accuracy: %.1f%% → %.1f%%", 100*report.AccuracyBefore, 100*report.AccuracyAfter)

	n.send(b.String())
}

// NotifyCalibrationDrift alerts when any band's observed accuracy drifts past
// the configured threshold from its expected accuracy
func (n *Notifier) NotifyCalibrationDrift(records []models.CalibrationRecord) {
	if !n.cfg.AlertOnDrift {
		return
	}

	var drifted []models.CalibrationRecord
	for _, rec := range records {
		if rec.SampleCount > 0 && math.Abs(rec.CalibrationError) >= n.cfg.DriftThreshold {
			drifted = append(drifted, rec)
		}
	}
	if len(drifted) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Calibration drift in %d band(s)\n", len(drifted))
	for _, rec := range drifted {
		fmt.Fprintf(&b, "%s: expected %.1f%%, observed %.1f%% (factor %.3f, n=%d)\n",
			rec.Band, rec.ExpectedAccuracy, rec.ObservedAccuracy, rec.AdjustmentFactor, rec.SampleCount)
	}

	n.send(b.String())
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.cfg.ChatID, text)
	if _, err := n.api.Send(msg); err != nil {
		logger.Warn("failed to send telegram notification", zap.Error(err))
	}
}
