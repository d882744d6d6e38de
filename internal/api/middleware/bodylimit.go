package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/utils"
)

// multipartOverhead 表单字段和分隔符的额外空间
const multipartOverhead = 1 << 20

// BodyLimit 限制请求体大小。Content-Length 已知时直接拒绝，否则在读取时截断
func BodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max <= 0 {
			c.Next()
			return
		}

		limit := max + multipartOverhead
		if c.Request.ContentLength > limit {
			utils.ResponseError(c, utils.CodeFileTooLarge, nil)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
