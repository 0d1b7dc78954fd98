package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/signpost/pkg/middleware"
)

// hopByHopHeaders は転送してはならないホップバイホップヘッダー。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// identityHeaders はゲートウェイだけが設定してよいユーザー情報ヘッダー。
// 呼び出し元が同名ヘッダーを付けてきた場合、なりすましを防ぐため
// 転送前に必ず除去する。
var identityHeaders = []string{
	middleware.HeaderUserID,
	middleware.HeaderUserRole,
	middleware.HeaderUserName,
}

// handleProxy は論理サービスの固定パスへリクエストを転送するハンドラを返す。
func (s *Server) handleProxy(serviceName, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		upstreamPath := path
		if c.Request.URL.RawQuery != "" {
			upstreamPath += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, serviceName, c.Request.Method, upstreamPath)
	}
}

// handleProxyWithParam はURLパラメータを含むパスへ転送するハンドラを返す。
func (s *Server) handleProxyWithParam(serviceName, pathPrefix, paramName string, pathSuffix ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		upstreamPath := pathPrefix + c.Param(paramName)
		for _, suffix := range pathSuffix {
			upstreamPath += suffix
		}
		if c.Request.URL.RawQuery != "" {
			upstreamPath += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, serviceName, c.Request.Method, upstreamPath)
	}
}

// doProxy はリクエストを内部サービスへ転送し、レスポンスをそのまま中継する。
//
// サービス名の解決に失敗した場合は502、接続不能などのトランスポート層の
// 失敗も502、呼び出し元の切断・タイムアウトは504を返す。
// 内部サービス自身が返したエラーステータスは解釈せずそのまま中継する。
// リトライは行わない。
func (s *Server) doProxy(c *gin.Context, serviceName, method, upstreamPath string) {
	baseURL, ok := s.registry.Resolve(serviceName)
	if !ok {
		s.logger.Error("サービス解決に失敗",
			zap.String("correlation_id", middleware.GetCorrelationID(c)),
			zap.String("service", serviceName),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "サービスが見つかりません",
			"code":  "service_unresolved",
		})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), method, baseURL+upstreamPath, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "プロキシリクエストの作成に失敗しました",
		})
		return
	}

	s.propagateHeaders(c, req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		status := http.StatusBadGateway
		code := "upstream_unreachable"
		// 呼び出し元の切断・タイムアウトはゲートウェイ側の障害と区別する
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			code = "upstream_timeout"
		}
		s.logger.Error("内部サービスへの転送に失敗",
			zap.String("correlation_id", middleware.GetCorrelationID(c)),
			zap.String("service", serviceName),
			zap.String("url", baseURL+upstreamPath),
			zap.Error(err),
		)
		c.JSON(status, gin.H{
			"error": "内部サービスとの通信に失敗しました",
			"code":  code,
		})
		return
	}
	defer resp.Body.Close()

	// ステータス・ヘッダー・ボディを加工せずそのまま中継する。
	// 中継を開始した後にエラーページへ差し替えることはできない。
	for key, values := range resp.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Writer.Header().Set(middleware.HeaderCorrelationID, middleware.GetCorrelationID(c))
	c.Writer.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		s.logger.Warn("レスポンスボディの中継が中断",
			zap.String("correlation_id", middleware.GetCorrelationID(c)),
			zap.Error(err),
		)
	}
}

// propagateHeaders はインバウンドリクエストのヘッダーを転送用リクエストへ
// コピーし、ユーザー情報ヘッダーをプリンシパルから再設定する。
//
// 呼び出し元が付けてきたX-User-*ヘッダーはなりすまし防止のため
// 無条件に破棄し、認証済みプリンシパルが存在する場合のみ
// 空でない属性をヘッダーとして設定し直す。
func (s *Server) propagateHeaders(c *gin.Context, req *http.Request) {
	for key, values := range c.Request.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	for _, h := range identityHeaders {
		req.Header.Del(h)
	}

	if p, ok := middleware.GetPrincipal(c); ok {
		if p.UserID != "" {
			req.Header.Set(middleware.HeaderUserID, p.UserID)
		}
		if p.Role != "" {
			req.Header.Set(middleware.HeaderUserRole, string(p.Role))
		}
		if p.Name != "" {
			req.Header.Set(middleware.HeaderUserName, p.Name)
		}
	}

	req.Header.Set(middleware.HeaderCorrelationID, middleware.GetCorrelationID(c))
}
