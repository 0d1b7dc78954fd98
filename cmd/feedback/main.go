// フィードバックサービスのエントリポイント。
// アプリへの意見・不具合報告の受付とスタッフによる閲覧を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/signpost/internal/feedback"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8087"
	}

	server, err := feedback.NewServer(port)
	if err != nil {
		log.Fatalf("フィードバックサーバーの初期化に失敗: %v", err)
	}

	log.Printf("フィードバックサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("フィードバックサービスの起動に失敗: %v", err)
	}
}
