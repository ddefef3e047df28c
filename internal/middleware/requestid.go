package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader はリクエストIDを受け渡すヘッダーです。
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
)

// RequestID はリクエストごとに ID を割り当てるミドルウェアです。
// 受信ヘッダーに UUID 形式の ID があればそれを引き継ぎます。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom はコンテキストのリクエストIDを返します。未設定なら空文字です。
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
