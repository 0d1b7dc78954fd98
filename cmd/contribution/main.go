// 標識投稿サービスのエントリポイント。
// ユーザーによる標識報告のCRUDとスタッフの承認・却下を担当する。
// 状態確定時は通知サービス経由で投稿者へ通知する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/signpost/internal/contribution"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8083"
	}

	server, err := contribution.NewServer(port)
	if err != nil {
		log.Fatalf("投稿サーバーの初期化に失敗: %v", err)
	}

	log.Printf("投稿サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("投稿サービスの起動に失敗: %v", err)
	}
}
