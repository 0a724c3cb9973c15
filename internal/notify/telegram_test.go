package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tgbotapi.MessageConfig, len(f.sent))
	copy(out, f.sent)
	return out
}

func arbMatch(id string) models.Match {
	return models.Match{
		MatchID:        id,
		HomeTeam:       "Arsenal",
		AwayTeam:       "Chelsea",
		TournamentName: "Premier League",
		Markets: []models.Market{{
			ID:               "1",
			Description:      "1X2",
			ProfitPercentage: 4.76,
			Margin:           -4.55,
			Outcomes: []models.Outcome{
				{ID: "1", Description: "Home", Odds: 2.1, StakePercentage: 50},
				{ID: "2", Description: "Away", Odds: 2.1, StakePercentage: 50},
			},
		}},
	}
}

func TestNotifyArbitrageSendsQueuedAlerts(t *testing.T) {
	bot := &fakeBot{}
	n := newNotifier(bot, 42, time.Hour, time.Millisecond)

	n.NotifyArbitrage([]models.Match{arbMatch("sr:match:1"), arbMatch("sr:match:2")})
	n.Stop()

	msgs := bot.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ChatID != 42 {
		t.Errorf("chat id = %d, want 42", msgs[0].ChatID)
	}
	if !strings.Contains(msgs[0].Text, "Arsenal vs Chelsea") {
		t.Errorf("alert text missing match name: %q", msgs[0].Text)
	}
	if !strings.Contains(msgs[0].Text, "4.76") {
		t.Errorf("alert text missing profit: %q", msgs[0].Text)
	}
}

func TestNotifyArbitrageCooldownSuppressesRepeats(t *testing.T) {
	bot := &fakeBot{}
	n := newNotifier(bot, 42, time.Hour, time.Millisecond)

	n.NotifyArbitrage([]models.Match{arbMatch("sr:match:1")})
	n.NotifyArbitrage([]models.Match{arbMatch("sr:match:1")})
	n.Stop()

	if got := len(bot.messages()); got != 1 {
		t.Errorf("expected 1 message within cooldown, got %d", got)
	}
}

func TestNotifyArbitrageCooldownExpires(t *testing.T) {
	bot := &fakeBot{}
	n := newNotifier(bot, 42, 10*time.Millisecond, time.Millisecond)

	n.NotifyArbitrage([]models.Match{arbMatch("sr:match:1")})
	time.Sleep(30 * time.Millisecond)
	n.NotifyArbitrage([]models.Match{arbMatch("sr:match:1")})
	n.Stop()

	if got := len(bot.messages()); got != 2 {
		t.Errorf("expected 2 messages after cooldown expiry, got %d", got)
	}
}

func TestNilNotifierIsInert(t *testing.T) {
	var n *TelegramNotifier
	n.NotifyArbitrage([]models.Match{arbMatch("sr:match:1")})
	if n.QueueLen() != 0 {
		t.Error("nil notifier should report empty queue")
	}
	n.Stop()
}

func TestFormatArbitrageAlertEscapesMarkdown(t *testing.T) {
	m := arbMatch("sr:match:1")
	m.HomeTeam = "Brighton_Hove"

	text := formatArbitrageAlert(m)
	if !strings.Contains(text, "Brighton\\_Hove") {
		t.Errorf("underscore not escaped: %q", text)
	}
}
