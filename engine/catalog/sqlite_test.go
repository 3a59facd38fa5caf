package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

func newTestSQLite(t *testing.T) *SQLiteSource {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, w Writer, recs ...domain.ProductRecord) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, w.Insert(context.Background(), r))
	}
}

func sampleCatalog() []domain.ProductRecord {
	return []domain.ProductRecord{
		{ID: "1", Name: "Sliding Gate", Descriptions: []string{"Steel gate", "Powder coated"}, Tags: "gate,steel", Active: true},
		{ID: "2", Name: "Garage Door", Descriptions: []string{"Sectional", ""}, Tags: "garage door", Active: true},
		{ID: "3", Name: "", Descriptions: []string{"Unnamed", "item"}, Tags: "window", Active: true},
		{ID: "4", Name: "Old Window", Descriptions: []string{"Retired", "model"}, Tags: "", Active: false},
		{ID: "5", Name: "Front Door", Descriptions: []string{"Oak", "door"}, Tags: "", Active: true},
	}
}

func TestSQLiteFetchActive(t *testing.T) {
	s := newTestSQLite(t)
	seed(t, s, sampleCatalog()...)

	recs, err := s.FetchActive(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "1", recs[0].ID)
	assert.Equal(t, "Steel gate Powder coated", recs[0].Description())
	for _, r := range recs {
		assert.True(t, r.Active)
		assert.NotEqual(t, "4", r.ID)
	}
}

func TestSQLitePaginationNewestFirst(t *testing.T) {
	s := newTestSQLite(t)
	seed(t, s, sampleCatalog()...)
	ctx := context.Background()

	page, err := s.FetchActivePaginated(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "5", page[0].ID)
	assert.Equal(t, "3", page[1].ID)

	page, err = s.FetchActivePaginated(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "2", page[0].ID)

	n, err := s.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSQLiteFiltersAreOred(t *testing.T) {
	s := newTestSQLite(t)
	seed(t, s, sampleCatalog()...)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters []domain.CatalogFilter
		want    []string
	}{
		{"description", []domain.CatalogFilter{domain.FilterEmptyDescription}, []string{"2"}},
		{"name", []domain.CatalogFilter{domain.FilterEmptyName}, []string{"3"}},
		{"tags", []domain.CatalogFilter{domain.FilterEmptyTags}, []string{"5"}},
		{"name or tags", []domain.CatalogFilter{domain.FilterEmptyName, domain.FilterEmptyTags}, []string{"5", "3"}},
		{"unknown ignored", []domain.CatalogFilter{"bogus"}, []string{"5", "3", "2", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.FetchActivePaginated(ctx, 0, 10, tt.filters...)
			require.NoError(t, err)
			var got []string
			for _, r := range page {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)

			n, err := s.CountActive(ctx, tt.filters...)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}
}

func TestSQLiteGet(t *testing.T) {
	s := newTestSQLite(t)
	seed(t, s, sampleCatalog()...)
	ctx := context.Background()

	rec, err := s.Get(ctx, "4")
	require.NoError(t, err)
	assert.False(t, rec.Active, "inactive records are still returned")
	assert.Equal(t, "Old Window", rec.Name)

	_, err = s.Get(ctx, "99")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get(ctx, "not-a-number")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteInsertReplaces(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	seed(t, s, domain.ProductRecord{ID: "7", Name: "Gate", Active: true})
	seed(t, s, domain.ProductRecord{ID: "7", Name: "Gate v2", Active: false})

	rec, err := s.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Gate v2", rec.Name)
	assert.False(t, rec.Active)

	assert.Error(t, s.Insert(ctx, domain.ProductRecord{ID: "x"}))
}

func TestSQLiteReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	seed(t, s, domain.ProductRecord{ID: "1", Name: "Gate", Active: true})
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var versions int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)
}
