package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/thornfield-ai/splitloader/internal/loader"
	"github.com/thornfield-ai/splitloader/internal/loadinput"
	"github.com/thornfield-ai/splitloader/internal/mcfstore"
	"github.com/thornfield-ai/splitloader/internal/registry"
	"github.com/thornfield-ai/splitloader/pkg/mcf"
)

func newTestLoader(t *testing.T) *loader.Loader {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "model.mcf")
	if err := mcf.WriteFixture(path, 0, 1, []mcf.FixtureTensor{
		{Name: "token_embd.weight", DType: mcf.DTypeF32, Shape: []uint64{2, 2}, Data: make([]byte, 16)},
	}); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	ld, err := loader.Open(context.Background(), &loadinput.PathInput{Path: path}, mcfstore.Parse, registry.New(), nil)
	if err != nil {
		t.Fatalf("loader.Open: %v", err)
	}
	return ld
}

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewServer(newTestLoader(t), nil).Register(e)
	return e
}

func doRequest(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doRequest(e, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status: got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("healthz body: got %q", rec.Body.String())
	}
}

func TestStatusReportsSingleSplitLoad(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doRequest(e, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code: got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if resp.Incremental {
		t.Fatalf("a single-split load must never report incremental")
	}
	if len(resp.Splits) != 1 {
		t.Fatalf("expected exactly one synthetic split, got %d", len(resp.Splits))
	}
	if !resp.Splits[0].Loaded {
		t.Fatalf("the single synthetic split must report loaded=true")
	}
}
