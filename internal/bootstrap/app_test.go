package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkersh/echobase-sub003/internal/order"
	"github.com/tkersh/echobase-sub003/internal/worker"
	"github.com/tkersh/echobase-sub003/pkg/config"
	"github.com/tkersh/echobase-sub003/pkg/infra/mysql"
	"github.com/tkersh/echobase-sub003/pkg/lmstfy"
	"github.com/tkersh/echobase-sub003/pkg/logger"
	"github.com/tkersh/echobase-sub003/pkg/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.MySQL.DSN = mysql.SQLitePrefix + ":memory:"
	cfg.MySQL.MaxOpenConns = 1
	cfg.Queue.Driver = config.QueueDriverMemory
	cfg.Consumer.WaitTime = 50 * time.Millisecond
	cfg.Consumer.LivenessFile = filepath.Join(t.TempDir(), "alive")
	cfg.Telemetry.Metrics = true
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MySQL.DSN = ""
	_, err := New(context.Background(), cfg, config.RoleAPI, logger.NewNop())
	assert.Error(t, err)
}

func TestNewLmstfyDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Driver = config.QueueDriverLmstfy

	app, err := New(context.Background(), cfg, config.RoleConsumer, logger.NewNop())
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &lmstfy.Client{}, app.Queue)
	assert.False(t, app.InProcessConsumer())
	assert.Nil(t, app.Notifier)
}

func TestSubmitAndConsumeEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(context.Background(), cfg, config.RoleAPI, logger.NewNop())
	require.NoError(t, err)
	require.True(t, app.InProcessConsumer())
	require.IsType(t, &queue.MemoryQueue{}, app.Queue)

	require.NoError(t, app.DB.AutoMigrate(&mysql.User{}, &mysql.Product{}, &mysql.Order{}))
	require.NoError(t, app.DB.Create(&mysql.User{ID: 7, Username: "ada", CreatedAt: time.Now()}).Error)

	svc, err := app.SubmissionService()
	require.NoError(t, err)
	consumer := app.Consumer()
	router := app.Router(svc, consumer)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders",
		strings.NewReader(`{"product":{"name":"Widget"},"quantity":2,"total_price":"25.00"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	mgr := worker.NewManager(consumer, logger.NewNop(), app.Cleanups()...)
	go func() { _ = mgr.Start() }()

	var orders []*order.PersistedOrder
	require.Eventually(t, func() bool {
		orders, err = app.Orders.ListOrdersByUser(context.Background(), 7)
		return err == nil && len(orders) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "Widget", orders[0].Product.Name)
	assert.Equal(t, order.StatusCompleted, orders[0].Status)

	assert.Eventually(t, func() bool {
		_, err := worker.CheckLiveness(cfg.Consumer.LivenessFile, time.Minute, time.Now())
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	live := httptest.NewRecorder()
	router.ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Contains(t, live.Body.String(), `"breaker_open":false`)

	ready := httptest.NewRecorder()
	router.ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, ready.Code, ready.Body.String())

	metrics := httptest.NewRecorder()
	router.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), "echobase_")

	require.NoError(t, mgr.Shutdown(context.Background()))
}
