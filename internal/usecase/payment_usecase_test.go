package usecase_test

import (
	"context"
	"testing"
	"time"

	"app/internal/domain/model"
	"app/internal/notify"
	"app/internal/payment"
	repo "app/internal/repository"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "webhook_secret"
)

type EventCacheMock struct{ mock.Mock }

func (m *EventCacheMock) MarkOnce(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func newPaymentUsecase(orders *OrderRepoMock, gw *GatewayMock, events *EventCacheMock, rec *NotifierRecorder) *usecase.PaymentUsecase {
	if events == nil {
		return usecase.NewPaymentUsecase(orders, gw, testKeySecret, testWebhookSecret, nil, rec)
	}
	return usecase.NewPaymentUsecase(orders, gw, testKeySecret, testWebhookSecret, events, rec)
}

// 検証リクエスト用の署名を作る
func signVerify(razorpayOrderID, paymentID string) string {
	return payment.Sign([]byte(razorpayOrderID+"|"+paymentID), testKeySecret)
}

func pendingOrder(id int64, txn string, itemPrice int64, qty int64) model.Order {
	return model.Order{
		ID:            id,
		UserID:        3,
		TransactionID: txn,
		PaymentStatus: model.PaymentStatusPending,
		TotalAmount:   itemPrice * qty,
		FinalAmount:   itemPrice * qty,
		Items: []model.OrderItem{
			{ProductID: 1, UnitPriceSnapshot: itemPrice, Quantity: qty},
		},
	}
}

// =====================
// VerifyPayment tests
// =====================

func TestVerifyPayment_Success(t *testing.T) {
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	rec := &NotifierRecorder{}
	uc := newPaymentUsecase(orders, gw, nil, rec)

	orders.On("FindByID", mock.Anything, int64(7)).Return(pendingOrder(7, "order_abc", 125, 2), nil)
	gw.On("FetchPayment", mock.Anything, "pay_1").
		Return(payment.Payment{ID: "pay_1", Amount: 25000, Status: payment.PaymentStatusCaptured}, nil)
	//capture済みのpayment idへ差し替えつつpaidにする
	orders.On("MarkPaid", mock.Anything, int64(7), "pay_1").Return(true, nil)

	err := uc.VerifyPayment(context.Background(), usecase.VerifyPaymentInput{
		OrderID:         7,
		PaymentID:       "pay_1",
		RazorpayOrderID: "order_abc",
		Signature:       signVerify("order_abc", "pay_1"),
	})

	assert.NoError(t, err)
	orders.AssertExpectations(t)
	if assert.Len(t, rec.Events, 1) {
		assert.Equal(t, notify.KindPaymentConfirmed, rec.Events[0].Kind)
	}
}

func TestVerifyPayment_BadSignatureTouchesNothing(t *testing.T) {
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	uc := newPaymentUsecase(orders, gw, nil, &NotifierRecorder{})

	err := uc.VerifyPayment(context.Background(), usecase.VerifyPaymentInput{
		OrderID:         7,
		PaymentID:       "pay_1",
		RazorpayOrderID: "order_abc",
		Signature:       "deadbeef",
	})

	assertHTTPError(t, err, 400, "invalid payment signature")
	//署名チェックは注文レコードに触る前
	orders.AssertNotCalled(t, "FindByID")
	gw.AssertNotCalled(t, "FetchPayment")
}

func TestVerifyPayment_OrderNotFound(t *testing.T) {
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	uc := newPaymentUsecase(orders, gw, nil, &NotifierRecorder{})

	orders.On("FindByID", mock.Anything, int64(7)).Return(model.Order{}, repo.ErrNotFound)

	err := uc.VerifyPayment(context.Background(), usecase.VerifyPaymentInput{
		OrderID:         7,
		PaymentID:       "pay_1",
		RazorpayOrderID: "order_abc",
		Signature:       signVerify("order_abc", "pay_1"),
	})

	assertHTTPError(t, err, 404, "order not found")
}

func TestVerifyPayment_AlreadyPaidRejected(t *testing.T) {
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	uc := newPaymentUsecase(orders, gw, nil, &NotifierRecorder{})

	o := pendingOrder(7, "order_abc", 125, 2)
	o.PaymentStatus = model.PaymentStatusPaid
	orders.On("FindByID", mock.Anything, int64(7)).Return(o, nil)

	err := uc.VerifyPayment(context.Background(), usecase.VerifyPaymentInput{
		OrderID:         7,
		PaymentID:       "pay_1",
		RazorpayOrderID: "order_abc",
		Signature:       signVerify("order_abc", "pay_1"),
	})

	assertHTTPError(t, err, 400, "invalid or already paid order")
	gw.AssertNotCalled(t, "FetchPayment")
	orders.AssertNotCalled(t, "MarkPaid")
}

func TestVerifyPayment_TransactionMismatchRejected(t *testing.T) {
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	uc := newPaymentUsecase(orders, gw, nil, &NotifierRecorder{})

	//別注文のゲートウェイIDで検証リプレイしてくるケース
	orders.On("FindByID", mock.Anything, int64(7)).Return(pendingOrder(7, "order_other", 125, 2), nil)

	err := uc.VerifyPayment(context.Background(), usecase.VerifyPaymentInput{
		OrderID:         7,
		PaymentID:       "pay_1",
		RazorpayOrderID: "order_abc",
		Signature:       signVerify("order_abc", "pay_1"),
	})

	assertHTTPError(t, err, 400, "invalid or already paid order")
	orders.AssertNotCalled(t, "MarkPaid")
}

func TestVerifyPayment_AmountMismatchRejected(t *testing.T) {
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	uc := newPaymentUsecase(orders, gw, nil, &NotifierRecorder{})

	orders.On("FindByID", mock.Anything, int64(7)).Return(pendingOrder(7, "order_abc", 125, 2), nil)
	//注文のスナップショット合計は250（=25000パイサ）なのにゲートウェイは24900しか確保していない
	gw.On("FetchPayment", mock.Anything, "pay_1").
		Return(payment.Payment{ID: "pay_1", Amount: 24900, Status: payment.PaymentStatusCaptured}, nil)

	err := uc.VerifyPayment(context.Background(), usecase.VerifyPaymentInput{
		OrderID:         7,
		PaymentID:       "pay_1",
		RazorpayOrderID: "order_abc",
		Signature:       signVerify("order_abc", "pay_1"),
	})

	assertHTTPError(t, err, 400, "payment amount mismatch")
	orders.AssertNotCalled(t, "MarkPaid")
}

func TestVerifyPayment_NotCapturedRejected(t *testing.T) {
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	uc := newPaymentUsecase(orders, gw, nil, &NotifierRecorder{})

	orders.On("FindByID", mock.Anything, int64(7)).Return(pendingOrder(7, "order_abc", 125, 2), nil)
	gw.On("FetchPayment", mock.Anything, "pay_1").
		Return(payment.Payment{ID: "pay_1", Amount: 25000, Status: "authorized"}, nil)

	err := uc.VerifyPayment(context.Background(), usecase.VerifyPaymentInput{
		OrderID:         7,
		PaymentID:       "pay_1",
		RazorpayOrderID: "order_abc",
		Signature:       signVerify("order_abc", "pay_1"),
	})

	assertHTTPError(t, err, 400, "payment not captured")
	orders.AssertNotCalled(t, "MarkPaid")
}

func TestVerifyPayment_RaceLoserIsNoop(t *testing.T) {
	orders := new(OrderRepoMock)
	gw := new(GatewayMock)
	rec := &NotifierRecorder{}
	uc := newPaymentUsecase(orders, gw, nil, rec)

	orders.On("FindByID", mock.Anything, int64(7)).Return(pendingOrder(7, "order_abc", 125, 2), nil)
	gw.On("FetchPayment", mock.Anything, "pay_1").
		Return(payment.Payment{ID: "pay_1", Amount: 25000, Status: payment.PaymentStatusCaptured}, nil)
	//webhookが先にpaidへ倒していた。条件付き更新が空振る
	orders.On("MarkPaid", mock.Anything, int64(7), "pay_1").Return(false, nil)

	err := uc.VerifyPayment(context.Background(), usecase.VerifyPaymentInput{
		OrderID:         7,
		PaymentID:       "pay_1",
		RazorpayOrderID: "order_abc",
		Signature:       signVerify("order_abc", "pay_1"),
	})

	//負けた側はエラーではなくno-op。通知も重複させない
	assert.NoError(t, err)
	assert.Empty(t, rec.Events)
}

// =====================
// HandleWebhook tests
// =====================

func capturedBody(paymentID string) []byte {
	return []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"` + paymentID + `","amount":25000,"status":"captured"}}}}`)
}

func TestHandleWebhook_MarksPendingOrderPaid(t *testing.T) {
	orders := new(OrderRepoMock)
	rec := &NotifierRecorder{}
	uc := newPaymentUsecase(orders, new(GatewayMock), nil, rec)

	body := capturedBody("pay_9")
	orders.On("FindByTransactionID", mock.Anything, "pay_9").Return(pendingOrder(7, "pay_9", 125, 2), true, nil)
	orders.On("MarkPaid", mock.Anything, int64(7), "").Return(true, nil)

	err := uc.HandleWebhook(context.Background(), body, payment.Sign(body, testWebhookSecret), "evt_1")

	assert.NoError(t, err)
	orders.AssertExpectations(t)
	if assert.Len(t, rec.Events, 1) {
		assert.Equal(t, notify.KindPaymentConfirmed, rec.Events[0].Kind)
	}
}

func TestHandleWebhook_TamperedByteRejectedBeforeStateAccess(t *testing.T) {
	orders := new(OrderRepoMock)
	uc := newPaymentUsecase(orders, new(GatewayMock), nil, &NotifierRecorder{})

	body := capturedBody("pay_9")
	sig := payment.Sign(body, testWebhookSecret)

	//署名後に金額を1バイトだけ改ざん
	tampered := make([]byte, len(body))
	copy(tampered, body)
	for i := range tampered {
		if tampered[i] == '2' {
			tampered[i] = '9'
			break
		}
	}

	err := uc.HandleWebhook(context.Background(), tampered, sig, "evt_1")

	assertHTTPError(t, err, 400, "invalid webhook signature")
	orders.AssertNotCalled(t, "FindByTransactionID")
	orders.AssertNotCalled(t, "MarkPaid")
}

func TestHandleWebhook_SecondDeliveryIsNoop(t *testing.T) {
	orders := new(OrderRepoMock)
	rec := &NotifierRecorder{}
	uc := newPaymentUsecase(orders, new(GatewayMock), nil, rec)

	body := capturedBody("pay_9")
	sig := payment.Sign(body, testWebhookSecret)

	//1回目はpending、2回目は既にpaidの注文が見える
	paid := pendingOrder(7, "pay_9", 125, 2)
	paid.PaymentStatus = model.PaymentStatusPaid

	orders.On("FindByTransactionID", mock.Anything, "pay_9").Return(pendingOrder(7, "pay_9", 125, 2), true, nil).Once()
	orders.On("FindByTransactionID", mock.Anything, "pay_9").Return(paid, true, nil).Once()
	orders.On("MarkPaid", mock.Anything, int64(7), "").Return(true, nil).Once()

	assert.NoError(t, uc.HandleWebhook(context.Background(), body, sig, "evt_1"))
	assert.NoError(t, uc.HandleWebhook(context.Background(), body, sig, "evt_2"))

	//pending→paidは一度だけ適用される
	orders.AssertNumberOfCalls(t, "MarkPaid", 1)
	assert.Len(t, rec.Events, 1)
}

func TestHandleWebhook_UnknownTransactionAccepted(t *testing.T) {
	orders := new(OrderRepoMock)
	uc := newPaymentUsecase(orders, new(GatewayMock), nil, &NotifierRecorder{})

	body := capturedBody("pay_unknown")
	orders.On("FindByTransactionID", mock.Anything, "pay_unknown").Return(model.Order{}, false, nil)

	//署名が通った後の「該当なし」は受理する（ゲートウェイに再送させない）
	err := uc.HandleWebhook(context.Background(), body, payment.Sign(body, testWebhookSecret), "evt_1")

	assert.NoError(t, err)
	orders.AssertNotCalled(t, "MarkPaid")
}

func TestHandleWebhook_DuplicateEventIDSkippedByCache(t *testing.T) {
	orders := new(OrderRepoMock)
	events := new(EventCacheMock)
	uc := newPaymentUsecase(orders, new(GatewayMock), events, &NotifierRecorder{})

	body := capturedBody("pay_9")
	events.On("MarkOnce", mock.Anything, "evt_dup", mock.Anything).Return(false, nil)

	err := uc.HandleWebhook(context.Background(), body, payment.Sign(body, testWebhookSecret), "evt_dup")

	assert.NoError(t, err)
	orders.AssertNotCalled(t, "FindByTransactionID")
}

func TestHandleWebhook_CacheFailureDoesNotBlockDelivery(t *testing.T) {
	orders := new(OrderRepoMock)
	events := new(EventCacheMock)
	uc := newPaymentUsecase(orders, new(GatewayMock), events, &NotifierRecorder{})

	body := capturedBody("pay_9")
	events.On("MarkOnce", mock.Anything, "evt_1", mock.Anything).Return(false, assert.AnError)
	orders.On("FindByTransactionID", mock.Anything, "pay_9").Return(pendingOrder(7, "pay_9", 125, 2), true, nil)
	orders.On("MarkPaid", mock.Anything, int64(7), "").Return(true, nil)

	err := uc.HandleWebhook(context.Background(), body, payment.Sign(body, testWebhookSecret), "evt_1")

	assert.NoError(t, err)
	orders.AssertExpectations(t)
}

func TestHandleWebhook_IgnoresUnrelatedEvents(t *testing.T) {
	orders := new(OrderRepoMock)
	uc := newPaymentUsecase(orders, new(GatewayMock), nil, &NotifierRecorder{})

	body := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_9"}}}}`)

	err := uc.HandleWebhook(context.Background(), body, payment.Sign(body, testWebhookSecret), "evt_1")

	assert.NoError(t, err)
	orders.AssertNotCalled(t, "FindByTransactionID")
}
