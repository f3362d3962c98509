package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nao1215/rdsds/pkg/httpclient"
)

// headerKeyRequestID はリクエストIDを受け渡すHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

// contextKeyRequestID はGinコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID = "request_id"

// RequestLogger はリクエストIDを採番し、処理結果をlogrusで出力するGinミドルウェアを返す。
// クライアントがX-Request-IDを送った場合はその値を引き継ぐ。
// リクエストIDはリクエストのコンテキストにも設定され、外部サービス呼び出しに伝播する。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(headerKeyRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(contextKeyRequestID, requestID)
		c.Header(headerKeyRequestID, requestID)
		c.Request = c.Request.WithContext(httpclient.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"request_id": requestID,
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warnln("リクエスト処理でエラーが発生しました")
			return
		}
		entry.Infoln("リクエストを処理しました")
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
