package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"app/internal/domain/model"
	"app/internal/infra/cache"
	"app/internal/notify"
	"app/internal/payment"
	repo "app/internal/repository"
)

// 重複イベントを覚えておく期間
const webhookDedupeTTL = 24 * time.Hour

// 支払い確認まわり。同期検証（クライアント起点）と非同期webhook（ゲートウェイ起点）の両方を受ける
type PaymentUsecase struct {
	orders        repo.OrderRepository
	gateway       payment.Gateway
	keySecret     string
	webhookSecret string
	events        cache.EventCache // nilなら重複排除はストア側の条件付き更新だけに頼る
	notifier      notify.Notifier
}

func NewPaymentUsecase(
	orders repo.OrderRepository,
	gateway payment.Gateway,
	keySecret string,
	webhookSecret string,
	events cache.EventCache,
	notifier notify.Notifier,
) *PaymentUsecase {
	return &PaymentUsecase{
		orders:        orders,
		gateway:       gateway,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		events:        events,
		notifier:      notifier,
	}
}

type VerifyPaymentInput struct {
	OrderID         int64
	PaymentID       string
	RazorpayOrderID string
	Signature       string
}

// 同期検証。署名→注文照合→スナップショット合計→ゲートウェイ実額の順で、
// 全部通ったときだけpending→paidにする
func (u *PaymentUsecase) VerifyPayment(ctx context.Context, in VerifyPaymentInput) error {
	//署名チェックは注文レコードに触る前
	payload := in.RazorpayOrderID + "|" + in.PaymentID
	if !payment.VerifySignature([]byte(payload), in.Signature, u.keySecret) {
		return NewHTTPError(http.StatusBadRequest, "invalid payment signature")
	}

	o, err := u.orders.FindByID(ctx, in.OrderID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "order not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//既にpaid、または別注文の検証リプレイ
	if o.PaymentStatus == model.PaymentStatusPaid || o.TransactionID != in.RazorpayOrderID {
		return NewHTTPError(http.StatusBadRequest, "invalid or already paid order")
	}

	//比較対象は作成時スナップショットの合計。ここでカタログは見ない
	actualTotal := o.ItemsTotal()

	p, err := u.gateway.FetchPayment(ctx, in.PaymentID)
	if err != nil {
		return NewHTTPError(http.StatusBadGateway, "payment gateway unavailable")
	}

	//ゲートウェイ額は最小通貨単位なのでパイサ同士で比べる
	if p.Amount != actualTotal*100 {
		return NewHTTPError(http.StatusBadRequest, "payment amount mismatch")
	}
	if p.Status != payment.PaymentStatusCaptured {
		return NewHTTPError(http.StatusBadRequest, "payment not captured yet")
	}

	//capture済みのpayment idでtransactionIdを差し替えつつpaidへ
	applied, err := u.orders.MarkPaid(ctx, o.ID, in.PaymentID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !applied {
		//webhookに先を越されただけ。エラーにしない
		slog.Info("payment already confirmed concurrently", "order_id", o.ID)
		return nil
	}

	u.notifier.Notify(ctx, notify.Event{
		Kind:    notify.KindPaymentConfirmed,
		OrderID: o.ID,
		UserID:  o.UserID,
		Amount:  o.FinalAmount,
	})

	return nil
}

// ゲートウェイのwebhookボディ。必要な部分だけ読む
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID     string `json:"id"`
				Amount int64  `json:"amount"`
				Status string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// webhook処理。署名NGだけが呼び出し元へのエラーで、
// 照合先が見つからない等の業務的な空振りは受理して終わる（ゲートウェイの再送暴発を防ぐ）
func (u *PaymentUsecase) HandleWebhook(ctx context.Context, rawBody []byte, signature string, eventID string) error {
	//署名は受信した生バイト列に対して検証する。状態には一切触れていない段階
	if !payment.VerifySignature(rawBody, signature, u.webhookSecret) {
		slog.Warn("webhook signature mismatch", "event_id", eventID)
		return NewHTTPError(http.StatusBadRequest, "invalid webhook signature")
	}

	//イベントIDで重複排除。キャッシュ障害は配信を落とす理由にしない
	if u.events != nil && eventID != "" {
		fresh, err := u.events.MarkOnce(ctx, eventID, webhookDedupeTTL)
		if err != nil {
			slog.Warn("webhook dedupe cache unavailable", "event_id", eventID, "error", err)
		} else if !fresh {
			slog.Info("duplicate webhook event skipped", "event_id", eventID)
			return nil
		}
	}

	var ev webhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		//署名は正しいのに読めないボディ。受理して記録だけ残す
		slog.Warn("webhook body unparsable", "event_id", eventID, "error", err)
		return nil
	}

	if ev.Event != "payment.captured" {
		return nil
	}

	paymentID := ev.Payload.Payment.Entity.ID
	o, found, err := u.orders.FindByTransactionID(ctx, paymentID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !found {
		//対応する注文が無いのは受理。再送されても結果は同じ
		slog.Info("webhook for unknown transaction accepted", "payment_id", paymentID)
		return nil
	}
	if o.PaymentStatus == model.PaymentStatusPaid {
		return nil
	}

	applied, err := u.orders.MarkPaid(ctx, o.ID, "")
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !applied {
		return nil
	}

	slog.Info("order marked as paid via webhook", "order_id", o.ID, "payment_id", paymentID)

	u.notifier.Notify(ctx, notify.Event{
		Kind:    notify.KindPaymentConfirmed,
		OrderID: o.ID,
		UserID:  o.UserID,
		Amount:  o.FinalAmount,
	})

	return nil
}
