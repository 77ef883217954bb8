package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-replay/sdk/config"
)

// TestNew_FileOutput 测试 info/error 日志分文件写入
func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Logger{Path: dir, Level: "info", FileOutput: true}
	cfg.SetDefaults()

	l := New(cfg)
	l.Info("task scheduled")
	l.Error("trigger failed")
	_ = l.Sync()

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "task scheduled")
	assert.NotContains(t, string(info), "trigger failed")

	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "trigger failed")
}

// TestNew_NoOutput 测试未启用任何输出时不 panic
func TestNew_NoOutput(t *testing.T) {
	cfg := &config.Logger{Level: "debug"}
	l := New(cfg)
	assert.NotPanics(t, func() { l.Info("discarded") })
}

// TestSetRequestLogger 测试中间件注入 request id
func TestSetRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SetRequestLogger)
	r.GET("/healthz", func(c *gin.Context) {
		assert.NotNil(t, GetRequestLogger(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
