package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrSnakeDoc/onionroute/internal/admin"
	"github.com/MrSnakeDoc/onionroute/internal/earlyboot"
	"github.com/MrSnakeDoc/onionroute/internal/httpserver/deps"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/MrSnakeDoc/onionroute/internal/mapping"
	"github.com/MrSnakeDoc/onionroute/internal/snapshot"
	"github.com/MrSnakeDoc/onionroute/internal/store/memory"
	"github.com/MrSnakeDoc/onionroute/internal/tenants"
)

const (
	shopAlias     = "2gzyxa5ihm7nsggfxnu52rck2vv4rvmdlkiu3zzui5du4xyclen53wid.onion"
	blogAlias     = "duckduckgogg42xjoc72x3sjasowoarfbgcmvfimaftt6twagswzczad.onion"
	snapshotPath  = "/data/snapshot.json"
	bootstrapPath = "/etc/site/bootstrap.toml"
)

func newDeps(t *testing.T, fs afero.Fs) deps.Deps {
	t.Helper()
	log := logger.Nop()

	writer := snapshot.NewWriter(fs, snapshotPath, log)
	store := mapping.NewStore(memory.New(), writer, nil, log)
	_ = store.Resync(context.Background())

	router := earlyboot.NewRouter(snapshot.NewFileProvider(fs, snapshotPath), log)
	point := earlyboot.NewPoint()
	installer := earlyboot.NewInstaller(fs, bootstrapPath, snapshotPath, log)
	dir := tenants.NewDirectory([]tenants.Tenant{
		{ID: 5, Name: "Shop", Domain: "shop.example.com"},
		{ID: 6, Name: "Blog", Domain: "blog.example.com", Path: "/blog"},
	})

	return deps.Deps{
		Logger:        log,
		StartTime:     time.Now(),
		Version:       "test",
		Admin:         admin.NewService(store, writer, installer, point, dir, log),
		Store:         store,
		Router:        router,
		Point:         point,
		Tenants:       dir,
		ReloadTrigger: make(chan struct{}, 1),
		ActivateHook:  func() error { return point.Register(router) },
	}
}

func call(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAdminMappingsLifecycle(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	h := NewAdmin(":0", d.Logger, d).Handler()

	rec := call(t, h, http.MethodPost, "/api/mappings", `{"tenant_id":5,"alias":"HTTP://`+strings.ToUpper(shopAlias)+`/"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[map[string]string](t, rec)
	assert.Equal(t, "saved", saved["status"])
	assert.Empty(t, saved["warning"])

	rec = call(t, h, http.MethodGet, "/api/mappings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]admin.Mapping](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, shopAlias, list[0].Alias)
	assert.Equal(t, int64(5), list[0].TenantID)
	assert.Equal(t, "Shop (shop.example.com/)", list[0].TenantName)

	rec = call(t, h, http.MethodPost, "/api/mappings", `{"tenant_id":6,"alias":"`+shopAlias+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, h, http.MethodDelete, "/api/mappings/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deleted", decode[map[string]string](t, rec)["status"])

	rec = call(t, h, http.MethodDelete, "/api/mappings/5", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRejectsBadInput(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	h := NewAdmin(":0", d.Logger, d).Handler()

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"not an onion", http.MethodPost, "/api/mappings", `{"tenant_id":5,"alias":"example.com"}`},
		{"zero tenant", http.MethodPost, "/api/mappings", `{"tenant_id":0,"alias":"` + shopAlias + `"}`},
		{"unknown field", http.MethodPost, "/api/mappings", `{"tenant_id":5,"alias":"` + shopAlias + `","x":1}`},
		{"malformed json", http.MethodPost, "/api/mappings", `{"tenant_id":`},
		{"bad tenant id in path", http.MethodDelete, "/api/mappings/abc", ""},
		{"missing disabled", http.MethodPut, "/api/service-state", `{"message":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestAdminServiceState(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	h := NewAdmin(":0", d.Logger, d).Handler()

	rec := call(t, h, http.MethodPut, "/api/service-state", `{"disabled":true,"message":"  "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodGet, "/api/service-state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[map[string]any](t, rec)
	assert.Equal(t, true, state["disabled"])
	assert.Equal(t, "This Onion Service is temporarily disabled.", state["disabled_message"])
}

func TestAdminSnapshotFailureIsAWarning(t *testing.T) {
	d := newDeps(t, afero.NewReadOnlyFs(afero.NewMemMapFs()))
	h := NewAdmin(":0", d.Logger, d).Handler()

	rec := call(t, h, http.MethodPost, "/api/mappings", `{"tenant_id":5,"alias":"`+shopAlias+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[map[string]string](t, rec)["warning"])

	rec = call(t, h, http.MethodGet, "/api/mappings", "")
	assert.Len(t, decode[[]admin.Mapping](t, rec), 1)

	rec = call(t, h, http.MethodPost, "/api/snapshot/regenerate", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = call(t, h, http.MethodGet, "/api/warnings", "")
	codes := map[string]bool{}
	for _, w := range decode[[]admin.Warning](t, rec) {
		codes[w.Code] = true
	}
	assert.True(t, codes[admin.WarnSnapshotOutOfSync])
	assert.True(t, codes[admin.WarnSnapshotDirNotWritable])
}

func TestAdminHookInstall(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	h := NewAdmin(":0", d.Logger, d).Handler()

	rec := call(t, h, http.MethodGet, "/api/warnings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), admin.WarnHookNotInstalled)

	rec = call(t, h, http.MethodPost, "/api/hook/install", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, "patched", res["result"])
	assert.Equal(t, true, res["active"])

	rec = call(t, h, http.MethodPost, "/api/hook/install", "")
	assert.Equal(t, "already_present", decode[map[string]any](t, rec)["result"])

	rec = call(t, h, http.MethodGet, "/api/warnings", "")
	assert.NotContains(t, rec.Body.String(), admin.WarnHookNotInstalled)

	rec = call(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decode[map[string]any](t, rec)["routing_mode"])
}

func TestAdminHookEnabledByHand(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := newDeps(t, fs)
	h := NewAdmin(":0", d.Logger, d).Handler()

	require.NoError(t, afero.WriteFile(fs, bootstrapPath, []byte("early_boot = true\n"), 0o644))

	rec := call(t, h, http.MethodGet, "/api/warnings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), admin.WarnHookNotInstalled)
	assert.False(t, d.Point.Registered())

	rec = call(t, h, http.MethodPost, "/api/hook/install", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, "already_present", res["result"])
	assert.Equal(t, true, res["active"])

	rec = call(t, h, http.MethodGet, "/api/warnings", "")
	assert.NotContains(t, rec.Body.String(), admin.WarnHookNotInstalled)
}

func TestAdminTenants(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	h := NewAdmin(":0", d.Logger, d).Handler()

	rec := call(t, h, http.MethodGet, "/api/tenants?q=blog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[[]tenants.Match](t, rec)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(6), matches[0].ID)

	rec = call(t, h, http.MethodPost, "/api/tenants/reload", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// trigger buffer is full until the reloader drains it
	rec = call(t, h, http.MethodPost, "/api/tenants/reload", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAdminProbes(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	h := NewAdmin(":0", d.Logger, d).Handler()

	rec := call(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = call(t, h, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["ready"])
}

func TestAdminGuard(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	d.AllowedHosts = []string{"admin.example.com"}
	d.AllowedCIDRS = []string{"10.0.0.0/8"}
	h := NewAdmin(":0", d.Logger, d).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/mappings", nil)
	req.Host = "admin.example.com"
	req.RemoteAddr = "10.1.1.1:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/mappings", nil)
	req.Host = "shop.example.com"
	req.RemoteAddr = "10.1.1.1:4000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/mappings", nil)
	req.Host = "admin.example.com"
	req.RemoteAddr = "192.0.2.1:4000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// upstream echoes what the tenant platform receives.
func newUpstream(t *testing.T) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream-Tenant", r.Header.Get(earlyboot.HeaderTenantID))
		w.Header().Set("X-Upstream-Host", r.Host)
		_, _ = w.Write([]byte("upstream " + r.URL.RequestURI()))
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u
}

func siteCall(h http.Handler, host, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = host
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSiteRouting(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t, afero.NewMemMapFs())
	require.NoError(t, d.Store.Put(ctx, 5, shopAlias))
	require.NoError(t, d.Point.Register(d.Router))

	site := NewSite(":0", newUpstream(t), d.Logger, d).Handler()

	rec := siteCall(site, shopAlias+":80", "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("X-Upstream-Tenant"))
	assert.Equal(t, shopAlias+":80", rec.Header().Get("X-Upstream-Host"))
	assert.Equal(t, "upstream /cart", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Onion-Location"))

	spoofed := http.Header{"X-Tenant-Id": []string{"99"}}
	rec = siteCall(site, "shop.example.com", "/cart?x=1", spoofed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Upstream-Tenant"))
	assert.Equal(t, "http://"+shopAlias+"/cart?x=1", rec.Header().Get("Onion-Location"))

	require.NoError(t, d.Store.SetServiceState(ctx, true, "Down for maintenance"))

	rec = siteCall(site, shopAlias, "/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Down for maintenance", rec.Body.String())

	rec = siteCall(site, "shop.example.com", "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Onion-Location"))
}

func TestSiteLogsShortCircuit(t *testing.T) {
	ctx := context.Background()
	d := newDeps(t, afero.NewMemMapFs())
	require.NoError(t, d.Store.Put(ctx, 5, shopAlias))
	require.NoError(t, d.Store.SetServiceState(ctx, true, "Down for maintenance"))
	require.NoError(t, d.Point.Register(d.Router))

	core, logs := observer.New(zapcore.InfoLevel)
	site := NewSite(":0", newUpstream(t), logger.FromZap(zap.New(core)), d).Handler()

	rec := siteCall(site, shopAlias, "/", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.EqualValues(t, http.StatusServiceUnavailable, fields["status"])
	assert.EqualValues(t, 5, fields["tenant_id"])
	assert.Equal(t, "short_circuit", fields["early_boot"])

	// Rewritten requests keep the tenant in the access log.
	require.NoError(t, d.Store.SetServiceState(ctx, false, ""))
	rec = siteCall(site, shopAlias, "/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries = logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	assert.EqualValues(t, 5, entries[1].ContextMap()["tenant_id"])
	assert.Equal(t, "rewrite", entries[1].ContextMap()["early_boot"])
}

func TestSiteWithoutHook(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	require.NoError(t, d.Store.Put(context.Background(), 5, shopAlias))

	site := NewSite(":0", newUpstream(t), d.Logger, d).Handler()

	rec := siteCall(site, shopAlias, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Upstream-Tenant"))
}

func TestSiteUpstreamDown(t *testing.T) {
	d := newDeps(t, afero.NewMemMapFs())
	u, err := url.Parse("http://127.0.0.1:1")
	require.NoError(t, err)

	site := NewSite(":0", u, d.Logger, d).Handler()
	rec := siteCall(site, "shop.example.com", "/", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
