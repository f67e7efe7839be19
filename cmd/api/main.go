package main

import (
	"log/slog"
	"os"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/cache"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/notify"
	"app/internal/payment"
	"app/internal/pricing"
	"app/internal/server"
	"app/internal/telemetry"
	"app/internal/usecase"
	"app/internal/validator"

	"github.com/joho/godotenv"
)

func main() {
	telemetry.InitLogger()

	//.envは無くてもいい（コンテナでは環境変数を直接渡す）
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	if err := gormDB.AutoMigrate(
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.AuditLog{},
	); err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	//Repository（GORM実装）生成
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//ゲートウェイと価格エンジン。シークレットはconfig経由でだけ渡す
	gateway := payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	pricer := pricing.NewEngine(productRepo)

	//webhook重複排除キャッシュ（Redis未設定なら無しで動く）
	var events cache.EventCache
	if cfg.RedisAddr != "" {
		events, err = cache.NewRedisEventCache(cfg.RedisAddr)
		if err != nil {
			slog.Warn("redis unavailable, webhook dedupe disabled", "error", err)
			events = nil
		}
	}

	//通知。SMTP未設定ならログに落とすだけ
	var notifier notify.Notifier
	if cfg.SMTPHost != "" && cfg.OrderNotifyEmail != "" {
		notifier = notify.NewMailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.OrderNotifyEmail)
	} else {
		notifier = notify.NewLogNotifier()
	}

	//Usecase生成
	orderValidator := validator.NewOrderValidator()
	orderUC := usecase.NewOrderUsecase(orderRepo, orderValidator, pricer, gateway, txManager, notifier)
	paymentUC := usecase.NewPaymentUsecase(orderRepo, gateway, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret, events, notifier)

	//Handler生成
	orderH := handler.NewOrderHandler(orderUC, paymentUC)
	adminH := handler.NewAdminOrderHandler(orderUC)

	//Server起動
	addr := ":" + cfg.Port
	slog.Info("starting server", "addr", addr, "env", cfg.GoEnv)
	if err := server.Start(addr, cfg, orderH, adminH); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
