package payment

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// Razorpay実装。SDK側のHTTPタイムアウトで各呼び出しは有限時間で返る
type RazorpayGateway struct {
	client *razorpay.Client
}

func NewRazorpayGateway(keyID string, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		client: razorpay.NewClient(keyID, keySecret),
	}
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountMinorUnits int64, currency string, receipt string) (GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, err
	}

	data := map[string]interface{}{
		"amount":   amountMinorUnits,
		"currency": currency,
		"receipt":  receipt,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return GatewayOrder{}, fmt.Errorf("%w: order id missing in response", ErrGatewayUnavailable)
	}

	return GatewayOrder{
		ID:       id,
		Amount:   amountMinorUnits,
		Currency: currency,
		Receipt:  receipt,
	}, nil
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}

	body, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	id, _ := body["id"].(string)
	status, _ := body["status"].(string)

	//JSON数値はfloat64で来る
	amountRaw, ok := body["amount"].(float64)
	if !ok || id == "" || status == "" {
		return Payment{}, fmt.Errorf("%w: malformed payment response", ErrGatewayUnavailable)
	}

	return Payment{
		ID:     id,
		Amount: int64(amountRaw),
		Status: status,
	}, nil
}
