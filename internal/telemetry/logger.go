package telemetry

import (
	"log/slog"
	"os"
)

// InitLogger はJSONハンドラでグローバルのsloggerを初期化する
func InitLogger() {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}
