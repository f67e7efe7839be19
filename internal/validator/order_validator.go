package validator

import (
	"strconv"
	"strings"

	"app/internal/domain/model"
	"app/internal/usecase"
)

type orderValidator struct{}

// Usecaseは interface を依存注入
func NewOrderValidator() usecase.OrderValidator {
	return &orderValidator{}
}

// 注文作成リクエストの形を検証する。
// 最初の違反で止めず、崩れているフィールドを全部集めて返す
func (v *orderValidator) ValidateCreate(in usecase.CreateOrderInput) []string {
	var fields []string

	if in.UserID <= 0 {
		fields = append(fields, "userId: user ID is required")
	}

	if len(in.Products) == 0 {
		fields = append(fields, "products: products cannot be empty")
	}
	for i, p := range in.Products {
		prefix := "products[" + strconv.Itoa(i) + "]"
		if p.ProductID <= 0 {
			fields = append(fields, prefix+".productId: product ID is required")
		}
		if strings.TrimSpace(p.Name) == "" {
			fields = append(fields, prefix+".name: product name is required")
		}
		if p.Price < 0 {
			fields = append(fields, prefix+".price: price must be a positive number")
		}
		if p.Quantity < 1 {
			fields = append(fields, prefix+".quantity: quantity must be at least 1")
		}
	}

	if !model.PaymentMethod(in.PaymentMethod).Valid() {
		fields = append(fields, "paymentMethod: must be one of COD, Credit Card, Debit Card, UPI, Net Banking")
	}

	fields = append(fields, validateAddress(in.ShippingAddress)...)

	return fields
}

func validateAddress(a usecase.AddressInput) []string {
	var fields []string

	if strings.TrimSpace(a.Name) == "" {
		fields = append(fields, "shippingAddress.name: name is required")
	}
	//電話番号は10桁以上
	phone := strings.TrimSpace(a.Phone)
	if phone == "" {
		fields = append(fields, "shippingAddress.phone: phone number is required")
	} else if len(phone) < 10 {
		fields = append(fields, "shippingAddress.phone: phone number must be at least 10 digits")
	}
	if strings.TrimSpace(a.Address) == "" {
		fields = append(fields, "shippingAddress.address: address is required")
	}
	if strings.TrimSpace(a.City) == "" {
		fields = append(fields, "shippingAddress.city: city is required")
	}
	if strings.TrimSpace(a.State) == "" {
		fields = append(fields, "shippingAddress.state: state is required")
	}
	if strings.TrimSpace(a.Zip) == "" {
		fields = append(fields, "shippingAddress.zip: ZIP code is required")
	}
	if strings.TrimSpace(a.Country) == "" {
		fields = append(fields, "shippingAddress.country: country is required")
	}

	return fields
}
