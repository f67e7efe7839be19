package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 商品の取得だけを約束。カタログの更新系は別サービスの持ち物
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
}
