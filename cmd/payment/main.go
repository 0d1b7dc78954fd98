// 決済サービスのエントリポイント。
// 寄付・プレミアム機能の決済レコード管理を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/signpost/internal/payment"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8085"
	}

	server, err := payment.NewServer(port)
	if err != nil {
		log.Fatalf("決済サーバーの初期化に失敗: %v", err)
	}

	log.Printf("決済サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("決済サービスの起動に失敗: %v", err)
	}
}
