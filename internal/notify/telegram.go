package notify

import (
	"context"
	"fmt"
	"strings"

	"movedesk/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts new-contract summaries to the office staff chat.
type Telegram struct {
	bot    sender
	chatID int64
	logger *zap.Logger
}

func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Info("Telegram notifier authorized",
		zap.String("username", botAPI.Self.UserName),
		zap.Int64("chat_id", chatID))

	return &Telegram{bot: botAPI, chatID: chatID, logger: logger}, nil
}

func (t *Telegram) NotifyNewContract(ctx context.Context, c storage.Contract) {
	if t.chatID == 0 {
		t.logger.Warn("Contract notifications disabled - no chat ID configured")
		return
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatContractNotification(c))
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("Failed to send contract notification",
			zap.Int64("contract_id", c.ID),
			zap.Int64("chat_id", t.chatID),
			zap.Error(err))
	}
}

func FormatContractNotification(c storage.Contract) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📦 <b>New contract %s</b>\n", tgbotapi.EscapeText(tgbotapi.ModeHTML, c.Number))
	fmt.Fprintf(&b, "Customer: %s\n", tgbotapi.EscapeText(tgbotapi.ModeHTML, c.CustomerName))
	fmt.Fprintf(&b, "Date: %s\n", c.ContractDate.Format("02.01.2006"))
	fmt.Fprintf(&b, "Route: %s → %s (%s km)\n",
		tgbotapi.EscapeText(tgbotapi.ModeHTML, c.FromAddress),
		tgbotapi.EscapeText(tgbotapi.ModeHTML, c.ToAddress),
		c.DistanceKm.String())
	fmt.Fprintf(&b, "Tier: %s, items: %d\n", c.PriceTier, len(c.Items))
	fmt.Fprintf(&b, "Total: %s €", c.TotalPrice.StringFixed(2))

	return b.String()
}

// Nop discards notifications.
type Nop struct{}

func (Nop) NotifyNewContract(context.Context, storage.Contract) {}
