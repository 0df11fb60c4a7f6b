package status

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ShardsData /shards 响应数据
type ShardsData struct {
	Count int   `json:"count"`
	Stats Stats `json:"stats"`
}

func traceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// success 写入成功响应
func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, &Response{
		Code:    http.StatusOK,
		Data:    data,
		Message: "success",
		TraceID: traceID(c),
	})
}

// fail 写入失败响应
func fail(c *gin.Context, status int, message string) {
	c.JSON(status, &Response{
		Code:    status,
		Message: message,
		TraceID: traceID(c),
	})
}
