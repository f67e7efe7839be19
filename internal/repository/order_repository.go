package repository

import (
	"context"
	"time"

	"app/internal/domain/model"
)

// 注文の永続化だけを約束。
type OrderRepository interface {
	//注文＋明細をまとめて保存して、保存後の注文を返す
	Create(ctx context.Context, order model.Order) (model.Order, error)

	//明細込みで取得
	FindByID(ctx context.Context, orderID int64) (model.Order, error)

	//webhook照合用。見つからないのは正常系なのでboolで返す
	FindByTransactionID(ctx context.Context, transactionID string) (model.Order, bool, error)

	//新しい順
	ListAll(ctx context.Context) ([]model.Order, error)
	ListByUserID(ctx context.Context, userID int64) ([]model.Order, error)

	//pendingのときだけpaidにする条件付き更新。
	//同時に同じ注文へ確認が来ても適用されるのは一度だけで、負けた側はapplied=falseを見る。
	//transactionIDが空でなければ合わせて差し替える（同期検証でpayment idに更新するため）
	MarkPaid(ctx context.Context, orderID int64, transactionID string) (bool, error)

	//deliveredAt/cancelledAtは初回だけ渡す（set-once）
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus, deliveredAt *time.Time, cancelledAt *time.Time) error
}
