// Package notify delivers arbitrage alerts to a Telegram chat.
package notify

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

// Min interval between any two Telegram messages to the same chat to avoid
// 429 Too Many Requests (~30/min limit).
const defaultSendInterval = 2 * time.Second

// botAPI is the slice of tgbotapi.BotAPI the notifier uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier queues arbitrage alerts and sends them with a minimum
// interval between messages. A per-match cooldown suppresses repeat alerts
// for the same opportunity.
type TelegramNotifier struct {
	bot          botAPI
	chatID       int64
	sendInterval time.Duration
	cooldown     time.Duration

	mu       sync.Mutex
	lastSend time.Time
	alerted  map[string]time.Time

	queue     chan models.Match
	queueDone chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewTelegramNotifier connects to the bot API and starts the background
// sender. Returns nil when the token is rejected; a nil notifier is safe to
// use, every method is a no-op on it.
func NewTelegramNotifier(token string, chatID int64, cooldown, sendInterval time.Duration) *TelegramNotifier {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		slog.Error("Telegram notifier: failed to create bot", "error", err)
		return nil
	}
	bot.Debug = false

	if _, err := bot.GetMe(); err != nil {
		slog.Error("Telegram notifier: failed to get bot info", "error", err)
		return nil
	}

	n := newNotifier(bot, chatID, cooldown, sendInterval)
	slog.Info("Telegram notifier initialized", "chat_id", chatID)
	return n
}

func newNotifier(bot botAPI, chatID int64, cooldown, sendInterval time.Duration) *TelegramNotifier {
	if sendInterval <= 0 {
		sendInterval = defaultSendInterval
	}
	n := &TelegramNotifier{
		bot:          bot,
		chatID:       chatID,
		sendInterval: sendInterval,
		cooldown:     cooldown,
		alerted:      make(map[string]time.Time),
		queue:        make(chan models.Match, 100),
		queueDone:    make(chan struct{}),
		stop:         make(chan struct{}),
	}
	n.wg.Add(1)
	go n.messageSender()
	return n
}

// NotifyArbitrage queues an alert for every match that passes the cooldown.
// Non-blocking: when the queue is full remaining alerts are dropped.
func (n *TelegramNotifier) NotifyArbitrage(matches []models.Match) {
	if n == nil || n.bot == nil {
		return
	}
	now := time.Now()
	for _, m := range matches {
		if !n.passCooldown(m.MatchID, now) {
			continue
		}
		select {
		case <-n.stop:
			return
		case n.queue <- m:
		default:
			slog.Warn("Telegram notifier: queue full, dropping alert", "match", m.Name())
			return
		}
	}
}

// QueueLen returns the current number of queued alerts.
func (n *TelegramNotifier) QueueLen() int {
	if n == nil || n.queue == nil {
		return 0
	}
	return len(n.queue)
}

// Stop stops the notifier and waits for already queued alerts to go out.
func (n *TelegramNotifier) Stop() {
	if n == nil {
		return
	}
	n.stopOnce.Do(func() { close(n.stop) })
	<-n.queueDone
	n.wg.Wait()
}

func (n *TelegramNotifier) passCooldown(matchID string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.alerted[matchID]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.alerted[matchID] = now
	// Prune entries old enough to never suppress again.
	for id, t := range n.alerted {
		if now.Sub(t) > 2*n.cooldown {
			delete(n.alerted, id)
		}
	}
	return true
}

func (n *TelegramNotifier) messageSender() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stop:
			// Drain remaining alerts before exit.
			for {
				select {
				case m := <-n.queue:
					n.send(m)
				default:
					close(n.queueDone)
					return
				}
			}
		case m := <-n.queue:
			n.send(m)
		}
	}
}

func (n *TelegramNotifier) send(m models.Match) {
	n.mu.Lock()
	elapsed := time.Since(n.lastSend)
	n.mu.Unlock()
	if elapsed < n.sendInterval {
		wait := n.sendInterval - elapsed
		select {
		case <-n.stop:
		case <-time.After(wait):
		}
	}

	msg := tgbotapi.NewMessage(n.chatID, formatArbitrageAlert(m))
	msg.ParseMode = tgbotapi.ModeMarkdown

	n.mu.Lock()
	n.lastSend = time.Now()
	n.mu.Unlock()

	if _, err := n.bot.Send(msg); err != nil {
		slog.Error("Telegram send: failed", "match", m.Name(), "error", err)
		return
	}
	slog.Info("Telegram send: success", "match", m.Name(), "queue_length", len(n.queue))
}

// formatArbitrageAlert renders one match's arbitrage markets as a Telegram
// message.
func formatArbitrageAlert(m models.Match) string {
	var builder strings.Builder

	builder.WriteString("🚨 *Arbitrage Alert*\n\n")
	builder.WriteString(fmt.Sprintf("*%s*\n", escapeMarkdown(m.Name())))
	if m.TournamentName != "" {
		builder.WriteString(fmt.Sprintf("🏆 %s\n", escapeMarkdown(m.TournamentName)))
	}
	if !m.MatchTime.IsZero() {
		builder.WriteString(fmt.Sprintf("🕐 Kick-off: %s\n", m.MatchTime.UTC().Format("2006-01-02 15:04 UTC")))
	}
	builder.WriteString("\n")

	for _, market := range m.ArbitrageMarkets() {
		builder.WriteString(fmt.Sprintf("📈 *%s*", escapeMarkdown(market.Description)))
		if market.Specifier != "" {
			builder.WriteString(fmt.Sprintf(" (%s)", escapeMarkdown(market.Specifier)))
		}
		builder.WriteString(fmt.Sprintf("\nProfit: *%.2f%%* | Margin: %.2f%%\n", market.ProfitPercentage, market.Margin))
		for _, o := range market.Outcomes {
			builder.WriteString(fmt.Sprintf("💰 %s: %.2f (stake %.2f%%)\n", escapeMarkdown(o.Description), o.Odds, o.StakePercentage))
		}
		builder.WriteString("\n")
	}
	return builder.String()
}

func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
