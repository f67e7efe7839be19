package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	"app/internal/notify"
	"app/internal/payment"
	"app/internal/pricing"
	repo "app/internal/repository"

	"github.com/google/uuid"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 入力の形が崩れているとき。最初の1件ではなく違反フィールドを全部返す
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid order data: " + strings.Join(e.Fields, ", ")
}

func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// 注文作成リクエストの形チェック。実装はvalidatorパッケージ
type OrderValidator interface {
	ValidateCreate(in CreateOrderInput) []string
}

type OrderUsecase struct {
	orders    repo.OrderRepository
	validator OrderValidator
	pricer    *pricing.Engine
	gateway   payment.Gateway
	tx        repo.TransactionManager
	notifier  notify.Notifier
}

// DI
func NewOrderUsecase(
	orders repo.OrderRepository,
	validator OrderValidator,
	pricer *pricing.Engine,
	gateway payment.Gateway,
	tx repo.TransactionManager,
	notifier notify.Notifier,
) *OrderUsecase {
	return &OrderUsecase{
		orders:    orders,
		validator: validator,
		pricer:    pricer,
		gateway:   gateway,
		tx:        tx,
		notifier:  notifier,
	}
}

type CreateOrderItemInput struct {
	ProductID int64
	Name      string
	//クライアント申告の表示価格。形チェックにだけ使って計算では必ず破棄する
	Price    int64
	Quantity int64
	Variant  string
}

type AddressInput struct {
	Name    string
	Phone   string
	Address string
	City    string
	State   string
	Zip     string
	Country string
}

type CreateOrderInput struct {
	UserID          int64
	Products        []CreateOrderItemInput
	PaymentMethod   string
	ShippingAddress AddressInput
}

type OrderItemOutput struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Variant   string `json:"variant,omitempty"`
}

type OrderOutput struct {
	ID                int64                 `json:"id"`
	UserID            int64                 `json:"userId"`
	Products          []OrderItemOutput     `json:"products"`
	TotalAmount       int64                 `json:"totalAmount"`
	Discount          int64                 `json:"discount"`
	FinalAmount       int64                 `json:"finalAmount"`
	PaymentMethod     string                `json:"paymentMethod"`
	PaymentStatus     string                `json:"paymentStatus"`
	TransactionID     string                `json:"transactionId,omitempty"`
	Status            string                `json:"status"`
	ShippingAddress   model.ShippingAddress `json:"shippingAddress"`
	EstimatedDelivery *time.Time            `json:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time            `json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time            `json:"cancelledAt,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

type CreateOrderOutput struct {
	Order OrderOutput `json:"order"`
	//オンライン決済のときだけ入る
	RazorpayOrder *payment.GatewayOrder `json:"razorpayOrder"`
}

// 注文作成。検証→正価計算→（オンライン決済なら）ゲートウェイ注文→保存の順。
// ゲートウェイ作成に失敗したら注文は一切保存しない
func (u *OrderUsecase) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderOutput, error) {
	if fields := u.validator.ValidateCreate(in); len(fields) > 0 {
		return CreateOrderOutput{}, &ValidationError{Fields: fields}
	}

	//正価はカタログから計算する。リクエストのpriceはここで捨てる
	lines := make([]pricing.LineItem, 0, len(in.Products))
	for _, p := range in.Products {
		lines = append(lines, pricing.LineItem{
			ProductID: p.ProductID,
			Quantity:  p.Quantity,
			Variant:   p.Variant,
		})
	}

	items, total, err := u.pricer.Price(ctx, lines)
	if errors.Is(err, pricing.ErrInvalidProduct) {
		return CreateOrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product")
	}
	if err != nil {
		return CreateOrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//割引は作成時点では適用しない。finalAmountは常に導出値
	discount := int64(0)
	final := pricing.FinalAmount(total, discount)

	order := model.Order{
		UserID:          in.UserID,
		Items:           items,
		TotalAmount:     total,
		Discount:        discount,
		FinalAmount:     final,
		PaymentMethod:   model.PaymentMethod(in.PaymentMethod),
		Status:          model.OrderStatusPending,
		ShippingAddress: toShippingAddress(in.ShippingAddress),
	}

	var gatewayOrder *payment.GatewayOrder

	if order.PaymentMethod != model.PaymentMethodCOD {
		//ゲートウェイは最小通貨単位（パイサ）
		receipt := "rcpt_" + uuid.NewString()
		gw, err := u.gateway.CreateOrder(ctx, total*100, payment.CurrencyINR, receipt)
		if err != nil {
			//ゲートウェイ紐付けの無い注文を残さない
			return CreateOrderOutput{}, NewHTTPError(http.StatusBadGateway, "payment gateway unavailable")
		}

		gatewayOrder = &gw
		order.PaymentStatus = model.PaymentStatusPending
		order.TransactionID = gw.ID
	} else {
		//CODは発送時回収の前提でpaid扱い。ゲートウェイは呼ばない
		order.PaymentStatus = model.PaymentStatusPaid
	}

	saved, err := u.orders.Create(ctx, order)
	if err != nil {
		return CreateOrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	u.notifier.Notify(ctx, notify.Event{
		Kind:    notify.KindOrderCreated,
		OrderID: saved.ID,
		UserID:  saved.UserID,
		Amount:  saved.FinalAmount,
	})

	return CreateOrderOutput{
		Order:         toOrderOutput(saved),
		RazorpayOrder: gatewayOrder,
	}, nil
}

type UpdateOrderStatusInput struct {
	Status string
}

// ステータス更新（管理者コマンド）。許可された遷移だけを通す
func (u *OrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in UpdateOrderStatusInput) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus := model.OrderStatus(strings.TrimSpace(in.Status))
	if !newStatus.Valid() {
		return NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	//ステータス上書きと監査ログは同じトランザクションで書く。
	//監査に失敗したら上書きごとロールバックして、記録の無い変更を残さない
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//同じステータスへの再遷移はno-op（終端のタイムスタンプも上書きしない）
		if o.Status == newStatus {
			return nil
		}

		if !o.Status.CanTransitionTo(newStatus) {
			return NewHTTPError(http.StatusBadRequest, "invalid status transition")
		}
		//返金は支払済みの注文だけ
		if newStatus == model.OrderStatusRefundInitiated && o.PaymentStatus != model.PaymentStatusPaid {
			return NewHTTPError(http.StatusBadRequest, "invalid status transition")
		}

		//set-once。既に入っていれば触らない
		var deliveredAt, cancelledAt *time.Time
		now := time.Now()
		if newStatus == model.OrderStatusDelivered && o.DeliveredAt == nil {
			deliveredAt = &now
		}
		if newStatus == model.OrderStatusCancelled && o.CancelledAt == nil {
			cancelledAt = &now
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus, deliveredAt, cancelledAt); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "order not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//監査ログ（UPDATE_ORDER_STATUS）
		beforeJSON := `{"status":"` + string(o.Status) + `"}`
		afterJSON := `{"status":"` + string(newStatus) + `"}`
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    now,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return nil
	})
}

// 全注文（新しい順）
func (u *OrderUsecase) ListAllOrders(ctx context.Context) ([]OrderOutput, error) {
	orders, err := u.orders.ListAll(ctx)
	if err != nil {
		return []OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o))
	}
	return outs, nil
}

// ユーザーの注文一覧（新しい順）。不正なIDは400、0件は404で区別する
func (u *OrderUsecase) ListUserOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	orders, err := u.orders.ListByUserID(ctx, userID)
	if err != nil {
		return []OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if len(orders) == 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusNotFound, "no orders found for this user")
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o))
	}
	return outs, nil
}

func (u *OrderUsecase) GetOrder(ctx context.Context, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "order not found")
	}
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toOrderOutput(o), nil
}

func toShippingAddress(in AddressInput) model.ShippingAddress {
	return model.ShippingAddress{
		Name:    in.Name,
		Phone:   in.Phone,
		Address: in.Address,
		City:    in.City,
		State:   in.State,
		Zip:     in.Zip,
		Country: in.Country,
	}
}

func toOrderOutput(o model.Order) OrderOutput {
	items := make([]OrderItemOutput, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Variant:   it.Variant,
		})
	}

	return OrderOutput{
		ID:                o.ID,
		UserID:            o.UserID,
		Products:          items,
		TotalAmount:       o.TotalAmount,
		Discount:          o.Discount,
		FinalAmount:       o.FinalAmount,
		PaymentMethod:     string(o.PaymentMethod),
		PaymentStatus:     string(o.PaymentStatus),
		TransactionID:     o.TransactionID,
		Status:            string(o.Status),
		ShippingAddress:   o.ShippingAddress,
		EstimatedDelivery: o.EstimatedDelivery,
		DeliveredAt:       o.DeliveredAt,
		CancelledAt:       o.CancelledAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}
