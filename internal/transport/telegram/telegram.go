// Package telegram is the thin dispatch adapter over telebot. It renders
// nothing fancy and decides nothing: it sends what the pipeline hands it and
// reports the outcome with a stable error code the blocked-user detector
// understands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"farebot/internal/delivery"
	logx "farebot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{bot: b, log: log}, nil
}

// SendNotification implements delivery.Dispatcher.
func (a *Adapter) SendNotification(ctx context.Context, userID int64, p delivery.Payload) delivery.Outcome {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return delivery.Outcome{ErrorCode: "CANCELED", ErrorMessage: ctx.Err().Error()}
		default:
		}
	}

	text := p.Text
	if text == "" {
		text = fmt.Sprintf("Fare alert (%s): %s %d now at %.0f %s",
			p.Tier, p.Target.Kind, p.Target.ID, p.Price, p.Currency)
	}

	_, err := a.bot.Send(&tele.Chat{ID: userID}, text)
	if err == nil {
		return delivery.Outcome{Success: true}
	}
	return delivery.Outcome{ErrorCode: errorCode(err), ErrorMessage: err.Error()}
}

// errorCode maps telebot errors onto the closed code set the detector
// matches. Unknown errors keep an empty code; the detector then falls back to
// message signatures and otherwise treats them as transient.
func errorCode(err error) string {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser):
		return "FORBIDDEN_BOT_BLOCKED"
	case errors.Is(err, tele.ErrUserIsDeactivated):
		return "USER_DEACTIVATED"
	case errors.Is(err, tele.ErrChatNotFound):
		return "CHAT_NOT_FOUND"
	}
	var flood *tele.FloodError
	if errors.As(err, &flood) {
		return "TOO_MANY_REQUESTS"
	}
	return ""
}

func (a *Adapter) Stop() {
	if a.bot != nil {
		a.bot.Stop()
	}
}
