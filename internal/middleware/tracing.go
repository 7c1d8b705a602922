package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing 为每个请求创建服务端 span。
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// EnrichTrace 把请求 ID 和调用方信息写入当前 span，需放在 AuthMiddleware 之后。
func EnrichTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		span.SetAttributes(attribute.String("request.id", GetRequestID(c)))
		if claims := ClaimsFrom(c); claims != nil {
			span.SetAttributes(
				attribute.Int64("user.id", int64(claims.UserID)),
				attribute.String("user.role", claims.Role),
			)
		}
		c.Next()
	}
}
