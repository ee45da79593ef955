package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/inference-worker/internal/installer"
	"github.com/cuongbtq/inference-worker/internal/installer/domain"
	"github.com/cuongbtq/inference-worker/internal/installer/dto"
	"github.com/cuongbtq/inference-worker/internal/installer/handler"
	"github.com/cuongbtq/inference-worker/internal/installer/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, domain.Callback) error { return nil }

type blockingInstaller struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingInstaller) Install(ctx context.Context, modelPath string) (string, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return "ok", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestRouter(t *testing.T, inst installer.Installer, workers, queueSize int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore()
	pool := installer.NewPool(&installer.PoolConfig{
		Logger:    logger,
		Installer: inst,
		Notifier:  nopNotifier{},
		Store:     store,
		Workers:   workers,
		QueueSize: queueSize,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})

	return SetupRouter(&handler.Dependencies{
		Logger:      logger,
		ServiceName: "model-installer",
		Pool:        pool,
		Store:       store,
	})
}

func do(r http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInstall_Started(t *testing.T) {
	r := newTestRouter(t, &installer.SimulatedInstaller{}, 1, 4)

	w := do(r, http.MethodPost, "/models/install", `{"model_path": "org/model", "callback_url": "http://rails/cb"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.InstallResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, "Started installing org/model", resp.Message)
	_, err := uuid.Parse(resp.RequestID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		w := do(r, http.MethodGet, "/models/install/"+resp.RequestID, "")
		var got dto.InstallDTO
		_ = json.Unmarshal(w.Body.Bytes(), &got)
		return w.Code == http.StatusOK && got.Status == domain.StatusDone
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInstall_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing model_path", body: `{"callback_url": "http://rails/cb"}`},
		{name: "missing callback_url", body: `{"model_path": "org/model"}`},
		{name: "empty object", body: `{}`},
		{name: "invalid json", body: `{"model_path":`},
	}

	r := newTestRouter(t, &installer.SimulatedInstaller{}, 1, 4)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/models/install", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "model_path and callback_url are required")
		})
	}
}

func TestInstall_QueueFull(t *testing.T) {
	inst := &blockingInstaller{started: make(chan struct{}, 4), release: make(chan struct{})}
	r := newTestRouter(t, inst, 1, 1)
	defer close(inst.release)

	body := `{"model_path": "org/model", "callback_url": "http://rails/cb"}`

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/models/install", body).Code)
	select {
	case <-inst.started:
	case <-time.After(2 * time.Second):
		t.Fatal("install never started")
	}
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/models/install", body).Code)

	w := do(r, http.MethodPost, "/models/install", body)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "install queue is full")
}

func TestGetInstall(t *testing.T) {
	r := newTestRouter(t, &installer.SimulatedInstaller{}, 1, 4)

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{name: "not a uuid", path: "/models/install/abc", wantCode: http.StatusBadRequest},
		{name: "unknown request", path: "/models/install/" + uuid.NewString(), wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestListInstalls_Pagination(t *testing.T) {
	r := newTestRouter(t, &installer.SimulatedInstaller{}, 1, 8)

	for _, path := range []string{"a", "b", "c"} {
		body := `{"model_path": "` + path + `", "callback_url": "http://rails/cb"}`
		require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/models/install", body).Code)
	}

	w := do(r, http.MethodGet, "/models/install?page_size=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var page dto.ListInstallsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Installs, 2)
	require.NotEmpty(t, page.NextCursor)

	w = do(r, http.MethodGet, "/models/install?page_size=2&cursor="+page.NextCursor, "")
	require.Equal(t, http.StatusOK, w.Code)

	var next dto.ListInstallsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &next))
	require.Len(t, next.Installs, 1)
	assert.Empty(t, next.NextCursor)

	seen := map[string]bool{}
	for _, in := range append(page.Installs, next.Installs...) {
		seen[in.ModelPath] = true
	}
	assert.Len(t, seen, 3)
}

func TestListInstalls_BadQuery(t *testing.T) {
	r := newTestRouter(t, &installer.SimulatedInstaller{}, 1, 4)

	tests := []struct {
		name string
		path string
	}{
		{name: "unknown status", path: "/models/install?status=running"},
		{name: "bad cursor", path: "/models/install?cursor=!!!"},
		{name: "non-numeric page size", path: "/models/install?page_size=ten"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &installer.SimulatedInstaller{}, 3, 5)

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status  string          `json:"status"`
		Service string          `json:"service"`
		Pool    installer.Stats `json:"pool"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "model-installer", body.Service)
	assert.Equal(t, 3, body.Pool.Workers)
	assert.Equal(t, 5, body.Pool.Capacity)
}
