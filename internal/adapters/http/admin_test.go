package httpadapter

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotelayout/internal/domain"
)

type fakeWriter struct {
	versions map[string]int
	active   map[string]bool
	last     domain.LayoutConfig
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{versions: map[string]int{}, active: map[string]bool{}}
}

func (f *fakeWriter) bump(key string, cfg domain.LayoutConfig, isActive bool) int {
	f.versions[key]++
	f.active[key] = isActive
	f.last = cfg
	return f.versions[key]
}

func (f *fakeWriter) SaveTemplate(_ context.Context, id string, cfg domain.LayoutConfig, isActive bool) (string, int, error) {
	if id == "" {
		id = fmt.Sprintf("tmpl-%d", len(f.versions)+1)
	}
	return id, f.bump("t:"+id, cfg, isActive), nil
}

func (f *fakeWriter) SaveTemplateIfVersion(_ context.Context, id string, cfg domain.LayoutConfig, expected int) (int, error) {
	current, ok := f.versions["t:"+id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if current != expected {
		return 0, fmt.Errorf("template %s at version %d: %w", id, current, domain.ErrVersionConflict)
	}
	return f.bump("t:"+id, cfg, f.active["t:"+id]), nil
}

func (f *fakeWriter) SetTemplateActive(_ context.Context, id string, isActive bool) (int, error) {
	if _, ok := f.versions["t:"+id]; !ok {
		return 0, domain.ErrNotFound
	}
	return f.bump("t:"+id, f.last, isActive), nil
}

func (f *fakeWriter) SaveCustomLayout(_ context.Context, companyID string, cfg domain.LayoutConfig, isActive bool) (int, error) {
	if companyID == "ghost" {
		return 0, domain.ErrNotFound
	}
	return f.bump("c:"+companyID, cfg, isActive), nil
}

func (f *fakeWriter) SetCustomLayoutActive(_ context.Context, companyID string, isActive bool) (int, error) {
	if _, ok := f.versions["c:"+companyID]; !ok {
		return 0, domain.ErrNotFound
	}
	return f.bump("c:"+companyID, f.last, isActive), nil
}

const minimalLayout = `{"version":1,"globalStyles":{},"sections":[{"id":"hero","type":"custom_html","visible":true,"html":"<h1>Hi</h1>"}]}`

func TestAdminRoutes_OnlyMountedWithWriter(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodPost, "/templates", `{"config":`+minimalLayout+`}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndSaveTemplate(t *testing.T) {
	writer := newFakeWriter()
	h := newTestServer(t, WithWriter(writer))

	rec := do(t, h, http.MethodPost, "/templates", `{"config":`+minimalLayout+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[writeResponse](t, rec)
	assert.Equal(t, "tmpl-1", created.ID)
	assert.Equal(t, 1, created.Version)
	assert.True(t, writer.active["t:tmpl-1"])

	rec = do(t, h, http.MethodPut, "/templates/tmpl-1", `{"config":`+minimalLayout+`,"isActive":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, writeResponse{ID: "tmpl-1", Version: 2}, decode[writeResponse](t, rec))
	assert.False(t, writer.active["t:tmpl-1"])
}

func TestSaveTemplate_ExpectedVersion(t *testing.T) {
	writer := newFakeWriter()
	h := newTestServer(t, WithWriter(writer))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/templates/T1", `{"config":`+minimalLayout+`}`).Code)

	rec := do(t, h, http.MethodPut, "/templates/T1", `{"config":`+minimalLayout+`,"expectedVersion":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[writeResponse](t, rec).Version)

	rec = do(t, h, http.MethodPut, "/templates/T1", `{"config":`+minimalLayout+`,"expectedVersion":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "version conflict")

	rec = do(t, h, http.MethodPut, "/templates/missing", `{"config":`+minimalLayout+`,"expectedVersion":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetTemplateActive(t *testing.T) {
	writer := newFakeWriter()
	h := newTestServer(t, WithWriter(writer))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/templates/T1", `{"config":`+minimalLayout+`}`).Code)

	rec := do(t, h, http.MethodPut, "/templates/T1/active", `{"isActive":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, writeResponse{ID: "T1", Version: 2}, decode[writeResponse](t, rec))
	assert.False(t, writer.active["t:T1"])

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/templates/T1/active", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/templates/nope/active", `{"isActive":true}`).Code)
}

func TestCustomLayoutRoutes(t *testing.T) {
	writer := newFakeWriter()
	h := newTestServer(t, WithWriter(writer))

	rec := do(t, h, http.MethodPut, "/companies/C1/layout", `{"config":`+minimalLayout+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, writeResponse{Version: 1}, decode[writeResponse](t, rec))
	assert.Equal(t, "hero", writer.last.Sections[0].ID)

	rec = do(t, h, http.MethodPut, "/companies/C1/layout/active", `{"isActive":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[writeResponse](t, rec).Version)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/companies/ghost/layout", `{"config":`+minimalLayout+`}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodPut, "/companies/C1/layout", `{"config":`+minimalLayout+`,"expectedVersion":2}`).Code)
}

func TestWriteRoutes_RejectInvalidLayouts(t *testing.T) {
	writer := newFakeWriter()
	h := newTestServer(t, WithWriter(writer))

	for _, body := range []string{
		`{}`,
		`{"config":{"version":0,"sections":[]}}`,
		`{"config":{"version":1,"sections":[{"id":"a","type":"built_in","html":"<p>"}]}}`,
	} {
		rec := do(t, h, http.MethodPost, "/templates", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, writer.versions)
}
