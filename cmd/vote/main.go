// 投票サービスのエントリポイント。
// 投稿への賛成・反対投票と賛否集計を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/signpost/internal/vote"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8084"
	}

	server, err := vote.NewServer(port)
	if err != nil {
		log.Fatalf("投票サーバーの初期化に失敗: %v", err)
	}

	log.Printf("投票サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("投票サービスの起動に失敗: %v", err)
	}
}
