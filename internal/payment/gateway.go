package payment

import (
	"context"
	"errors"
)

// ゲートウェイ到達不能・応答不正
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ゲートウェイの"captured"ステータス
const PaymentStatusCaptured = "captured"

const CurrencyINR = "INR"

// ゲートウェイ側の注文（ユーザーが決済を完了する前の予約）
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// ゲートウェイが記録している決済。Amountは最小通貨単位（パイサ）
type Payment struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// 決済ゲートウェイとの通信だけを約束。複数リクエストからの同時利用に安全であること
type Gateway interface {
	//オンライン決済のときだけ呼ぶ。amountは最小通貨単位
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency string, receipt string) (GatewayOrder, error)

	//同期検証でゲートウェイ側の金額・ステータスを直接取りに行く
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
}
