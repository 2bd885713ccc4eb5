package server

import (
	"context"
	"net/http"
	"strings"

	"JamFM/core/auth"
)

type contextKey string

const (
	ctxUserID   contextKey = "userID"
	ctxUsername contextKey = "username"
	ctxAvatar   contextKey = "avatar"
)

// AuthMiddleware 校验 Authorization 头中的 Bearer 令牌，
// 把解析出的身份放进请求上下文
func AuthMiddleware(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "未授权", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "无效的令牌", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxAvatar, claims.Avatar)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// identityFromContext 取出中间件写入的身份信息
func identityFromContext(ctx context.Context) (int64, string, string, bool) {
	userID, ok := ctx.Value(ctxUserID).(int64)
	if !ok {
		return 0, "", "", false
	}
	username, _ := ctx.Value(ctxUsername).(string)
	avatar, _ := ctx.Value(ctxAvatar).(string)
	return userID, username, avatar, true
}
