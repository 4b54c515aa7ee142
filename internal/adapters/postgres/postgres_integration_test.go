//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"quotelayout/internal/domain"
)

var testDB *DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("quotelayout"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		os.Exit(1)
	}
	testDB, err = Connect(ctx, url, 4)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	if err := testDB.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to migrate: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to terminate postgres container: %v\n", err)
	}
	os.Exit(code)
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Publish(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func sampleLayout(color string) domain.LayoutConfig {
	return domain.LayoutConfig{
		Version:      1,
		GlobalStyles: map[string]string{"primaryColor": color},
		Sections: []domain.Section{
			{ID: "a", Label: "A", Type: domain.SectionCustomHTML, Visible: true, HTML: "<p>{{x}}</p>"},
			{ID: "b", Label: "B", Type: domain.SectionBuiltIn, Visible: true, Component: "inventory_table",
				Config: map[string]any{"pageSize": float64(10)}},
		},
	}
}

func seedCompany(t *testing.T, c domain.Company) {
	t.Helper()
	require.NoError(t, testDB.UpsertCompany(context.Background(), c))
}

func TestCompanies_LookupByEitherID(t *testing.T) {
	ctx := context.Background()
	seedCompany(t, domain.Company{InternalID: "it-c1", ExternalTenantID: "it-ext-1", Name: "Swift", BrandCode: "SWF"})

	byInternal, err := testDB.GetByInternalID(ctx, "it-c1")
	require.NoError(t, err)
	byExternal, err := testDB.GetByExternalTenantID(ctx, "it-ext-1")
	require.NoError(t, err)

	assert.Equal(t, byInternal, byExternal)
	assert.Equal(t, "Swift", byInternal.Name)

	_, err = testDB.GetByInternalID(ctx, "it-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWriter_TemplateVersionsIncrement(t *testing.T) {
	ctx := context.Background()
	w := NewWriter(testDB, nil)

	id, v1, err := w.SaveTemplate(ctx, "", sampleLayout("#111"), true)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, v1)

	_, v2, err := w.SaveTemplate(ctx, id, sampleLayout("#222"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, v2)

	v3, err := w.SetTemplateActive(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, 3, v3)

	stored, err := testDB.GetActiveTemplate(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, stored, "inactive templates read as absent")

	v4, err := w.SetTemplateActive(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, 4, v4)

	stored, err = testDB.GetActiveTemplate(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 4, stored.Version)
	assert.Equal(t, "#222", stored.Config.GlobalStyles["primaryColor"])
	assert.Equal(t, float64(10), stored.Config.Sections[1].Config["pageSize"])
}

func TestWriter_SaveTemplateIfVersion(t *testing.T) {
	ctx := context.Background()
	w := NewWriter(testDB, nil)

	id, _, err := w.SaveTemplate(ctx, "it-tpl-cas", sampleLayout("#111"), true)
	require.NoError(t, err)

	v, err := w.SaveTemplateIfVersion(ctx, id, sampleLayout("#333"), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = w.SaveTemplateIfVersion(ctx, id, sampleLayout("#444"), 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = w.SaveTemplateIfVersion(ctx, "it-tpl-nope", sampleLayout("#444"), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := testDB.GetActiveTemplate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "#333", stored.Config.GlobalStyles["primaryColor"])
}

func TestWriter_RejectsInvalidLayout(t *testing.T) {
	w := NewWriter(testDB, nil)
	_, _, err := w.SaveTemplate(context.Background(), "it-bad", domain.LayoutConfig{}, true)
	assert.Error(t, err)
}

func TestWriter_CustomLayoutAndInvalidation(t *testing.T) {
	ctx := context.Background()
	inv := &recordingInvalidator{}
	w := NewWriter(testDB, inv)
	seedCompany(t, domain.Company{InternalID: "it-c2", ExternalTenantID: "it-ext-2", Name: "Harbour"})

	v1, err := w.SaveCustomLayout(ctx, "it-c2", sampleLayout("#abc"), true)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)
	v2, err := w.SetCustomLayoutActive(ctx, "it-c2", false)
	require.NoError(t, err)
	assert.Equal(t, 2, v2)

	stored, err := testDB.GetActiveCustomLayout(ctx, "it-c2")
	require.NoError(t, err)
	assert.Nil(t, stored)

	assert.Equal(t, []string{"it-c2", "it-ext-2", "it-c2", "it-ext-2"}, inv.ids)

	_, err = w.SaveCustomLayout(ctx, "it-no-company", sampleLayout("#abc"), true)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = w.SetCustomLayoutActive(ctx, "it-no-company", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWriter_TemplateWriteInvalidatesAssignedCompanies(t *testing.T) {
	ctx := context.Background()
	inv := &recordingInvalidator{}
	w := NewWriter(testDB, inv)
	seedCompany(t, domain.Company{InternalID: "it-c3", Name: "Blue Van"})

	id, _, err := w.SaveTemplate(ctx, "it-tpl-assigned", sampleLayout("#111"), true)
	require.NoError(t, err)
	require.NoError(t, testDB.UpsertBranding(ctx, "it-c3", domain.BrandingOverrides{AssignedTemplateID: domain.Ptr(id)}))
	inv.ids = nil

	_, _, err = w.SaveTemplate(ctx, id, sampleLayout("#222"), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"it-c3"}, inv.ids)
}

func TestBranding_NullableFields(t *testing.T) {
	ctx := context.Background()
	seedCompany(t, domain.Company{InternalID: "it-c4", Name: "Branded"})
	require.NoError(t, testDB.UpsertBranding(ctx, "it-c4", domain.BrandingOverrides{
		PrimaryColor: domain.Ptr(""),
		LogoURL:      domain.Ptr("https://cdn.example/logo.png"),
	}))

	got, err := testDB.GetBrandingOverrides(ctx, "it-c4")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.Ptr(""), got.PrimaryColor)
	assert.Nil(t, got.FontFamily)
	assert.Equal(t, "https://cdn.example/logo.png", domain.Value(got.LogoURL))

	none, err := testDB.GetBrandingOverrides(ctx, "it-missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCustomLayout_MalformedAndLegacyRows(t *testing.T) {
	ctx := context.Background()
	seedCompany(t, domain.Company{InternalID: "it-c5", Name: "Legacy"})
	seedCompany(t, domain.Company{InternalID: "it-c6", Name: "Broken"})

	legacy := `{"version":1,"globalStyles":{},"sections":[{"id":"a","label":"A","type":"custom_html","visible":true,"html":"x"}]}`
	_, err := testDB.Pool.Exec(ctx, `INSERT INTO custom_layouts (company_internal_id, config) VALUES ($1, to_jsonb($2::text))`, "it-c5", legacy)
	require.NoError(t, err)
	_, err = testDB.Pool.Exec(ctx, `INSERT INTO custom_layouts (company_internal_id, config) VALUES ($1, '{"sections": {"a": 1}}')`, "it-c6")
	require.NoError(t, err)

	stored, err := testDB.GetActiveCustomLayout(ctx, "it-c5")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Malformed())
	assert.Equal(t, "a", stored.Config.Sections[0].ID)

	broken, err := testDB.GetActiveCustomLayout(ctx, "it-c6")
	require.NoError(t, err)
	require.NotNil(t, broken)
	assert.True(t, broken.Malformed())
	assert.JSONEq(t, `{"sections": {"a": 1}}`, string(broken.Raw))
	assert.Contains(t, broken.ParseErr.Error(), "custom_layout")
}

func TestChangedSince(t *testing.T) {
	ctx := context.Background()
	w := NewWriter(testDB, nil)
	seedCompany(t, domain.Company{InternalID: "it-c7", ExternalTenantID: "it-ext-7", Name: "Feed"})

	var since time.Time
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT now()`).Scan(&since))

	_, err := w.SaveCustomLayout(ctx, "it-c7", sampleLayout("#777"), true)
	require.NoError(t, err)

	changes, err := testDB.ChangedSince(ctx, since)
	require.NoError(t, err)

	var found bool
	for _, c := range changes {
		if c.Identifiers[0] == "it-c7" {
			found = true
			assert.Equal(t, []string{"it-c7", "it-ext-7"}, c.Identifiers)
		}
	}
	assert.True(t, found)
}
