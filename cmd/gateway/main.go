// API Gatewayサービスのエントリポイント。
// 相関ID付与、アクセスログ、JWT検証、ロール認可、アイデンティティ
// ヘッダー伝播、下流サービスへのルーティングを担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/nao1215/signpost/internal/gateway"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	configPath := os.Getenv("GATEWAY_CONFIG")
	cfg, err := gateway.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("設定の読み込みに失敗", zap.Error(err))
	}

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Gatewayサーバーの初期化に失敗", zap.Error(err))
	}

	// 設定ファイル指定時はホットリロードを有効化する。
	if configPath != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := gateway.WatchConfig(ctx, configPath, server.Registry(), logger); err != nil {
				logger.Warn("設定監視の開始に失敗", zap.Error(err))
			}
		}()
	}

	logger.Info("Gatewayサービスを起動します", zap.String("port", cfg.Port))
	if err := server.Run(); err != nil {
		logger.Fatal("Gatewayサービスの起動に失敗", zap.Error(err))
	}
}
