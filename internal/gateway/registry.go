package gateway

import (
	"sync"
)

// ServiceRegistry は論理サービス名から現在のベースURLへのマッピングを保持する。
// プロセスメモリ上にのみ存在し、永続化しない。再起動時は設定から再構築される。
//
// リクエスト処理中の並行読み取りと、登録・削除・一括反映による
// 並行書き込みの両方に対して安全。読み取り側が更新途中の
// エントリを観測することはない。
type ServiceRegistry struct {
	// mu はservicesマップを保護する。
	mu sync.RWMutex
	// services は論理サービス名→ベースURLのマッピング。
	services map[string]string
}

// NewServiceRegistry は初期マッピングからサービスレジストリを生成する。
// initialの内容はコピーされるため、呼び出し後にマップを変更しても影響しない。
func NewServiceRegistry(initial map[string]string) *ServiceRegistry {
	services := make(map[string]string, len(initial))
	for name, url := range initial {
		services[name] = url
	}
	return &ServiceRegistry{services: services}
}

// Resolve は論理サービス名に対応する現在のベースURLを返す。
// 未登録の場合はfalseを返す。空文字列のURLを黙って返すことはない。
func (r *ServiceRegistry) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	url, ok := r.services[name]
	if !ok || url == "" {
		return "", false
	}
	return url, true
}

// Register はサービスを登録する。既存のエントリは上書きされ、
// 以降のResolveに即座に反映される。
func (r *ServiceRegistry) Register(name, baseURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = baseURL
}

// Unregister はサービスの登録を解除する。
// 以降のResolveは直前のURLではなく未登録を返す。
func (r *ServiceRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, name)
}

// Apply はマッピング全体を一括で置き換える。設定ファイルの
// ホットリロード時に使用する。置き換えはアトミックに行われる。
func (r *ServiceRegistry) Apply(services map[string]string) {
	next := make(map[string]string, len(services))
	for name, url := range services {
		next[name] = url
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = next
}

// Snapshot は現在のマッピングのコピーを返す。ログ出力・デバッグ用。
func (r *ServiceRegistry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]string, len(r.services))
	for name, url := range r.services {
		snapshot[name] = url
	}
	return snapshot
}
