package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozwald-dev/ozwald/internal/auth"
	"github.com/ozwald-dev/ozwald/internal/catalog"
	"github.com/ozwald-dev/ozwald/internal/config"
	"github.com/ozwald-dev/ozwald/internal/footprint"
	"github.com/ozwald-dev/ozwald/internal/provisioner"
	"github.com/ozwald-dev/ozwald/internal/runtime"
	"github.com/ozwald-dev/ozwald/internal/statestore"
	"github.com/ozwald-dev/ozwald/internal/vault"
	"github.com/ozwald-dev/ozwald/models"
)

// nullShim satisfies runtime.Shim without a container runtime.
type nullShim struct{}

func (nullShim) Start(ctx context.Context, name string, spec models.LaunchSpec, secretsFile string) (runtime.Handle, error) {
	return runtime.Handle("ctr-" + name), nil
}

func (nullShim) Stop(ctx context.Context, handle runtime.Handle) error { return nil }

func (nullShim) Logs(ctx context.Context, handle runtime.Handle) ([]string, error) {
	return nil, nil
}

func testServer(t *testing.T, authEnabled bool) (*Server, *config.Config, *vault.MemoryBlobStore) {
	t.Helper()

	cat, err := catalog.Parse([]byte(`
hosts:
  - name: gpu-01
    address: 10.0.0.11
    hardware: nvidia
    cpu_millicores: 16000
    memory_bytes: 68719476736
    vram_bytes: 25769803776
realms:
  prod:
    networks:
      - backend
    service-definitions:
      - name: whisper
        image: whisper:latest
        networks:
          - backend
        profiles:
          large:
            environment:
              MODEL: large-v3
`))
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8097},
		Provisioner: config.ProvisionerConfig{
			Host:              "gpu-01",
			ReconcileInterval: time.Second,
			StepTimeout:       time.Second,
			RetainStopped:     time.Hour,
			ArtifactDir:       filepath.Join(dir, "artifacts"),
			ArtifactTTL:       time.Minute,
		},
		Security: config.SecurityConfig{
			AuthEnabled:   authEnabled,
			JWTSecret:     "test-secret",
			JWTExpiration: time.Hour,
		},
	}

	store := statestore.NewMemoryStore()
	queue := footprint.NewMemoryQueue()
	logs := footprint.NewMemoryLogStore()
	blobs := vault.NewMemoryBlobStore()
	cache := footprint.NewCache(filepath.Join(dir, "footprints.yaml"))

	mat, err := vault.NewMaterializer(blobs, cfg.Provisioner.ArtifactDir)
	require.NoError(t, err)

	prov, err := provisioner.New(provisioner.Options{
		Config:  cfg,
		Catalog: cat,
		Store:   store,
		Shim:    nullShim{},
		Vault:   mat,
		Cache:   cache,
		Queue:   queue,
	})
	require.NoError(t, err)

	server := New(Options{
		Config:      cfg,
		Catalog:     cat,
		Store:       store,
		Provisioner: prov,
		Queue:       queue,
		Logs:        logs,
		Blobs:       blobs,
	})
	return server, cfg, blobs
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ozwald", body["service"])
	assert.Equal(t, "gpu-01", body["host"])
}

func TestSecurityHeaders(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestListHosts(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/hosts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var hosts []models.Host
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hosts))
	require.Len(t, hosts, 1)
	assert.Equal(t, "gpu-01", hosts[0].Name)
}

func TestListRealmsAndServices(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/realms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"prod"`)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/realms/prod/services", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"whisper"`)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/realms/ghost/services", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplyDesiredState(t *testing.T) {
	s, _, _ := testServer(t, false)

	body := `{"services":[{"service":"whisper","profile":"large","host":"gpu-01"}]}`
	rec := doJSON(t, s, http.MethodPut, "/api/v1/realms/prod/services", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var instances []models.Instance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &instances))
	require.Len(t, instances, 1)
	assert.Equal(t, models.StateDesired, instances[0].State)
	assert.Equal(t, "whisper", instances[0].Identity.Service)
}

func TestApplyDesiredStateValidation(t *testing.T) {
	s, _, _ := testServer(t, false)

	// Missing host.
	rec := doJSON(t, s, http.MethodPut, "/api/v1/realms/prod/services",
		`{"services":[{"service":"whisper"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown realm.
	rec = doJSON(t, s, http.MethodPut, "/api/v1/realms/ghost/services",
		`{"services":[]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown profile maps to a selector error.
	rec = doJSON(t, s, http.MethodPut, "/api/v1/realms/prod/services",
		`{"services":[{"service":"whisper","profile":"huge","host":"gpu-01"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid selector")
}

func TestListInstances(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/realms/prod/instances", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/v1/realms/ghost/instances", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetInstanceNotFound(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/realms/prod/instances/whisper?profile=large", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutLocker(t *testing.T) {
	s, _, blobs := testServer(t, false)

	body := `{"token":"hunter2","secrets":{"API_KEY":"sk-1"}}`
	rec := doJSON(t, s, http.MethodPut, "/api/v1/realms/prod/lockers/api-keys", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	blob, err := blobs.GetSecret(context.Background(), "prod", "api-keys")
	require.NoError(t, err)
	secrets, err := vault.Open(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "sk-1", secrets["API_KEY"])
}

func TestPutLockerValidation(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodPut, "/api/v1/realms/prod/lockers/api-keys",
		`{"secrets":{"API_KEY":"sk-1"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPut, "/api/v1/realms/prod/lockers/api-keys",
		`{"token":"hunter2","secrets":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPut, "/api/v1/realms/ghost/lockers/api-keys",
		`{"token":"hunter2","secrets":{"A":"b"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFootprintRequestLifecycle(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/footprints", `{"realm":"prod","all":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created models.FootprintRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.All)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/footprints", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var reqs []models.FootprintRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reqs))
	require.Len(t, reqs, 1)
	assert.Equal(t, created.ID, reqs[0].ID)
}

func TestFootprintRequestValidation(t *testing.T) {
	s, _, _ := testServer(t, false)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/footprints", `{"realm":"prod"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/footprints", `{"realm":"ghost","all":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFootprintLogs(t *testing.T) {
	s, _, _ := testServer(t, false)

	key := models.FootprintKey{Service: "whisper", Profile: "large"}
	require.NoError(t, s.logs.Replace(context.Background(), key, []string{"loading model", "ready"}))

	rec := doJSON(t, s, http.MethodGet, "/api/v1/footprints/logs?service=whisper&profile=large", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Service string   `json:"service"`
		Profile string   `json:"profile"`
		Lines   []string `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "whisper", body.Service)
	assert.Equal(t, "large", body.Profile)
	assert.Equal(t, []string{"loading model", "ready"}, body.Lines)

	// Nothing retained for the base variant: empty, not an error.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/footprints/logs?service=whisper", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lines":[]`)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/footprints/logs", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContentTypeValidation(t *testing.T) {
	s, _, _ := testServer(t, false)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/realms/prod/lockers/api-keys",
		strings.NewReader(`{"token":"t","secrets":{"A":"b"}}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid Content-Type")
}

func TestAuthRequired(t *testing.T) {
	s, cfg, _ := testServer(t, true)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/hosts", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open.
	rec = doJSON(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	token, err := auth.NewJWTService(cfg).GenerateToken("alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hosts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	authed := httptest.NewRecorder()
	s.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)
}
