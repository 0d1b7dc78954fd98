// 交通標識カタログサービスのエントリポイント。
// 標識マスタデータのCRUDを担当する。閲覧は匿名可、編集はスタッフ以上。
package main

import (
	"log"
	"os"

	"github.com/nao1215/signpost/internal/sign"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server, err := sign.NewServer(port)
	if err != nil {
		log.Fatalf("標識サーバーの初期化に失敗: %v", err)
	}

	log.Printf("標識サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("標識サービスの起動に失敗: %v", err)
	}
}
