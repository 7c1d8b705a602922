package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lms-assistant-go/pkg/log"
)

// WindowCounter 在固定窗口内计数，由 RateLimitRepository 实现。
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit 按调用方限制每分钟的请求数，limit <= 0 时不限制。
// 计数器不可用时放行请求。
func RateLimit(counter WindowCounter, scope string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || counter == nil {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if claims := ClaimsFrom(c); claims != nil {
			subject = fmt.Sprintf("user:%d", claims.UserID)
		}
		key := fmt.Sprintf("ratelimit:%s:%s", scope, subject)

		count, err := counter.Hit(c.Request.Context(), key, time.Minute)
		if err != nil {
			log.Warnf("限流计数失败，放行请求: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if count > int64(limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": http.StatusTooManyRequests, "message": "请求过于频繁，请稍后再试", "data": nil})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(limit)-count, 10))
		c.Next()
	}
}
