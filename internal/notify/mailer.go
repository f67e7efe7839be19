package notify

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// 通知イベント。注文フローの成否には影響させない
type Event struct {
	Kind    string
	OrderID int64
	UserID  int64
	Amount  int64
}

const (
	KindOrderCreated     = "order_created"
	KindPaymentConfirmed = "payment_confirmed"
)

// fire-and-forgetの通知先。失敗はログに残すだけで呼び出し元へは返さない
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// SMTPでメールを送る実装
type MailNotifier struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

func NewMailNotifier(host string, port int, username string, password string, from string, to string) *MailNotifier {
	return &MailNotifier{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		to:     to,
	}
}

// 送信はgoroutineで投げっぱなし。at-least-onceで十分
func (n *MailNotifier) Notify(ctx context.Context, ev Event) {
	go func() {
		m := gomail.NewMessage()
		m.SetHeader("From", n.from)
		m.SetHeader("To", n.to)
		m.SetHeader("Subject", subjectFor(ev))
		m.SetBody("text/plain", fmt.Sprintf(
			"order=%d user=%d amount=%d event=%s", ev.OrderID, ev.UserID, ev.Amount, ev.Kind,
		))

		if err := n.dialer.DialAndSend(m); err != nil {
			slog.Error("notification mail failed", "event", ev.Kind, "order_id", ev.OrderID, "error", err)
		}
	}()
}

func subjectFor(ev Event) string {
	switch ev.Kind {
	case KindPaymentConfirmed:
		return fmt.Sprintf("Payment confirmed for order #%d", ev.OrderID)
	default:
		return fmt.Sprintf("New order #%d", ev.OrderID)
	}
}

// SMTP未設定のデプロイ向け。ログだけ残す
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, ev Event) {
	slog.Info("order notification", "event", ev.Kind, "order_id", ev.OrderID, "user_id", ev.UserID, "amount", ev.Amount)
}
