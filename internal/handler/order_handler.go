package handler

import (
	"io"
	"net/http"
	"strconv"

	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if ve, ok := usecase.AsValidationError(err); ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order data", Fields: ve.Fields})
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// /orders の公開API（認証はAPIゲートウェイ側の持ち物）
type OrderHandler struct {
	orderUC   *usecase.OrderUsecase
	paymentUC *usecase.PaymentUsecase
}

// DI
func NewOrderHandler(orderUC *usecase.OrderUsecase, paymentUC *usecase.PaymentUsecase) *OrderHandler {
	return &OrderHandler{orderUC: orderUC, paymentUC: paymentUC}
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/orders")

	g.POST("/create", h.create)
	g.POST("/verify-payment", h.verifyPayment)
	g.POST("/razorpay-webhook", h.webhook)
	g.GET("/user/:userId", h.listUserOrders)
	g.GET("/:id", h.detail)
}

type orderProductRequest struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Variant   string `json:"variant"`
}

type shippingAddressRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type orderCreateRequest struct {
	UserID          int64                  `json:"userId"`
	Products        []orderProductRequest  `json:"products"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ShippingAddress shippingAddressRequest `json:"shippingAddress"`
}

func (h *OrderHandler) create(c echo.Context) error {
	var req orderCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	products := make([]usecase.CreateOrderItemInput, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, usecase.CreateOrderItemInput{
			ProductID: p.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  p.Quantity,
			Variant:   p.Variant,
		})
	}

	out, err := h.orderUC.CreateOrder(c.Request().Context(), usecase.CreateOrderInput{
		UserID:        req.UserID,
		Products:      products,
		PaymentMethod: req.PaymentMethod,
		ShippingAddress: usecase.AddressInput{
			Name:    req.ShippingAddress.Name,
			Phone:   req.ShippingAddress.Phone,
			Address: req.ShippingAddress.Address,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			Zip:     req.ShippingAddress.Zip,
			Country: req.ShippingAddress.Country,
		},
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

type verifyPaymentRequest struct {
	OrderID         int64  `json:"orderId"`
	PaymentID       string `json:"paymentId"`
	RazorpayOrderID string `json:"razorpayOrderId"`
	Signature       string `json:"signature"`
}

func (h *OrderHandler) verifyPayment(c echo.Context) error {
	var req verifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	err := h.paymentUC.VerifyPayment(c.Request().Context(), usecase.VerifyPaymentInput{
		OrderID:         req.OrderID,
		PaymentID:       req.PaymentID,
		RazorpayOrderID: req.RazorpayOrderID,
		Signature:       req.Signature,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "payment verified successfully"})
}

func (h *OrderHandler) webhook(c echo.Context) error {
	//署名は受信した生のボディに対して検証するので、ここでは絶対に再シリアライズしない
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	signature := c.Request().Header.Get("X-Razorpay-Signature")
	eventID := c.Request().Header.Get("X-Razorpay-Event-Id")

	if err := h.paymentUC.HandleWebhook(c.Request().Context(), rawBody, signature, eventID); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "webhook processed successfully"})
}

func (h *OrderHandler) listUserOrders(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
	}

	out, err := h.orderUC.ListUserOrders(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.orderUC.GetOrder(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
