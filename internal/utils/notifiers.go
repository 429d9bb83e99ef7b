package utils

import (
	"botnet-detector/internal/alert"
	"botnet-detector/internal/pipeline"

	"github.com/sirupsen/logrus"
)

// RegisterNotifiersFromYAML attaches the alert channels enabled in config to
// the processor and returns the Telegram notifier, if any.
func RegisterNotifiersFromYAML(processor *pipeline.Processor, config *DetectorConfig, logger *logrus.Logger) *alert.TelegramNotifier {
	if !config.Alerting.Enabled {
		logger.Info("Alerting disabled")
		return nil
	}

	if config.Alerting.Channels.Log {
		processor.RegisterNotifier(alert.NewLogAlertNotifier(logger))
		logger.Debug("Log alert notifier registered")
	}

	if config.Alerting.Channels.Telegram && config.Alerting.Telegram.Enabled {
		tg := config.Alerting.Telegram
		telegramNotifier := alert.NewTelegramNotifierWithTemplate(
			tg.BotToken,
			tg.ChatID,
			tg.ParseMode,
			tg.Enabled,
			tg.MessageTemplate,
			logger,
		)
		processor.RegisterNotifier(telegramNotifier)
		logger.Info("Telegram alert notifier registered")
		return telegramNotifier
	}

	return nil
}
