package pricing

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// カタログに解決できない商品参照
var ErrInvalidProduct = errors.New("invalid product")

type LineItem struct {
	ProductID int64
	Quantity  int64
	Variant   string
}

// 正価の計算はここだけ。クライアント申告の価格は一切見ない
type Engine struct {
	products repo.ProductRepository
}

func NewEngine(products repo.ProductRepository) *Engine {
	return &Engine{products: products}
}

// 各商品をカタログに引き当てて、スナップショット付き明細と合計を返す。
// 1件でも解決できなければErrInvalidProduct。状態は一切変えない
func (e *Engine) Price(ctx context.Context, items []LineItem) ([]model.OrderItem, int64, error) {
	priced := make([]model.OrderItem, 0, len(items))
	var total int64

	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return nil, 0, ErrInvalidProduct
		}

		p, err := e.products.FindByID(ctx, it.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrInvalidProduct
		}
		if err != nil {
			return nil, 0, err
		}
		//非公開商品も注文不可扱い
		if !p.IsActive {
			return nil, 0, ErrInvalidProduct
		}

		priced = append(priced, model.OrderItem{
			ProductID:           p.ID,
			ProductNameSnapshot: p.Name,
			UnitPriceSnapshot:   p.Price,
			Quantity:            it.Quantity,
			Variant:             it.Variant,
		})
		total += p.Price * it.Quantity
	}

	return priced, total, nil
}

// finalAmountは常に導出値（total - total×discount%）。独立した入力としては受けない
func FinalAmount(total int64, discountPercent int64) int64 {
	if discountPercent <= 0 {
		return total
	}
	if discountPercent >= 100 {
		return 0
	}
	return total - total*discountPercent/100
}
