package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
)

// newSQLiteGorm opens a Gorm store on a fresh SQLite file
func newSQLiteGorm(t *testing.T) *Gorm {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	g, err := NewGorm(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGormRecords(t *testing.T) {
	assert.Equal(t, "templates", templateRecord{}.TableName())
	assert.Equal(t, "bulletins", bulletinRecord{}.TableName())

	// rows written before values were extracted hold NULL
	b := fromBulletinRecord(bulletinRecord{ID: "b1", ChurchID: "c1"})
	assert.NotNil(t, b.FieldValues)
	assert.Empty(t, b.FieldValues)

	templateID := "t1"
	rec := toBulletinRecord(&bulletin.Bulletin{ID: "b1", ChurchID: "c1", OriginalPDFURL: "blob://c1/x.pdf", TemplateID: &templateID})
	assert.Equal(t, "blob://c1/x.pdf", rec.OriginalPDFURL)
	assert.Equal(t, &templateID, rec.TemplateID)
}

func TestGorm_Templates(t *testing.T) {
	ctx := context.Background()
	g := newSQLiteGorm(t)
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	fields := []bulletin.FieldDefinition{
		{ID: "speaker", Label: "Speaker", X: 90, Y: 680, Width: 120, Height: 15, Page: 1},
		{ID: "hymn", Label: "Opening Hymn", X: 90, Y: 640.5, Width: 60, Height: 12, Page: 2},
	}

	require.NoError(t, g.CreateTemplate(ctx, &bulletin.Template{
		ID: "t1", ChurchID: "c1", Name: "Old", LayoutFingerprint: "aa", FieldDefinitions: fields,
		SourceBulletinID: "b1", CreatedAt: base,
	}))
	require.NoError(t, g.CreateTemplate(ctx, &bulletin.Template{ID: "t2", ChurchID: "c1", Name: "New", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, g.CreateTemplate(ctx, &bulletin.Template{ID: "t3", ChurchID: "c2", Name: "Other", CreatedAt: base.Add(2 * time.Hour)}))

	assert.Error(t, g.CreateTemplate(ctx, &bulletin.Template{ID: "t1", ChurchID: "c1", Name: "Again"}), "duplicate id")

	list, err := g.ListTemplates(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2, "templates of other churches are not listed")
	assert.Equal(t, "t2", list[0].ID, "newest first")
	assert.Equal(t, "t1", list[1].ID)

	got, err := g.GetTemplate(ctx, "c1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Old", got.Name)
	assert.Equal(t, "aa", got.LayoutFingerprint)
	assert.Equal(t, "b1", got.SourceBulletinID)
	assert.Equal(t, fields, got.FieldDefinitions, "field definitions survive the JSON column")
	assert.True(t, base.Equal(got.CreatedAt), "created at %v", got.CreatedAt)

	_, err = g.GetTemplate(ctx, "c2", "t1")
	assert.ErrorIs(t, err, bulletin.ErrNotFound, "templates are scoped to their church")

	_, err = g.GetTemplate(ctx, "c1", "missing")
	assert.ErrorIs(t, err, bulletin.ErrNotFound)

	empty, err := g.ListTemplates(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGorm_Bulletins(t *testing.T) {
	ctx := context.Background()
	g := newSQLiteGorm(t)
	weekOf := time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	b := &bulletin.Bulletin{
		ID:                "b1",
		ChurchID:          "c1",
		OriginalPDFURL:    "blob://c1/b1.pdf",
		WeekOf:            weekOf,
		FieldValues:       map[string]string{"speaker": "Jane", "hymn": "Hymn 100"},
		LayoutFingerprint: "ff",
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	require.NoError(t, g.CreateBulletin(ctx, b))
	assert.Error(t, g.CreateBulletin(ctx, b), "duplicate id")

	got, err := g.GetBulletin(ctx, "c1", "b1")
	require.NoError(t, err)
	assert.Equal(t, b.FieldValues, got.FieldValues, "field values survive the JSON column")
	assert.Equal(t, "blob://c1/b1.pdf", got.OriginalPDFURL)
	assert.Equal(t, "ff", got.LayoutFingerprint)
	assert.True(t, weekOf.Equal(got.WeekOf), "week of %v", got.WeekOf)
	assert.Nil(t, got.TemplateID)
	assert.False(t, got.IsTemplate)

	templateID := "t1"
	got.TemplateID = &templateID
	got.IsTemplate = true
	got.FieldValues = map[string]string{"speaker": "John"}
	require.NoError(t, g.UpdateBulletin(ctx, got))

	again, err := g.GetBulletin(ctx, "c1", "b1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"speaker": "John"}, again.FieldValues)
	require.NotNil(t, again.TemplateID)
	assert.Equal(t, "t1", *again.TemplateID)
	assert.True(t, again.IsTemplate)
	assert.True(t, created.Equal(again.CreatedAt), "updates keep the creation time")

	_, err = g.GetBulletin(ctx, "c2", "b1")
	assert.ErrorIs(t, err, bulletin.ErrNotFound)

	err = g.UpdateBulletin(ctx, &bulletin.Bulletin{ID: "b1", ChurchID: "c2", OriginalPDFURL: "blob://c2/x.pdf"})
	assert.ErrorIs(t, err, bulletin.ErrNotFound, "a church cannot overwrite another church's bulletin")

	err = g.UpdateBulletin(ctx, &bulletin.Bulletin{ID: "missing", ChurchID: "c1", OriginalPDFURL: "blob://c1/x.pdf"})
	assert.ErrorIs(t, err, bulletin.ErrNotFound)

	owned, err := g.GetBulletin(ctx, "c1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "John", owned.FieldValues["speaker"], "a rejected update leaves the row untouched")
}

func TestGorm_NullFieldValues(t *testing.T) {
	ctx := context.Background()
	g := newSQLiteGorm(t)

	require.NoError(t, g.CreateBulletin(ctx, &bulletin.Bulletin{ID: "b1", ChurchID: "c1", OriginalPDFURL: "blob://c1/b1.pdf"}))

	got, err := g.GetBulletin(ctx, "c1", "b1")
	require.NoError(t, err)
	assert.NotNil(t, got.FieldValues)
	assert.Empty(t, got.FieldValues)
}

func TestGorm_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	g := newSQLiteGorm(t)
	require.NoError(t, g.CreateBulletin(ctx, &bulletin.Bulletin{ID: "b1", ChurchID: "c1", OriginalPDFURL: "blob://c1/b1.pdf"}))

	first, err := g.GetBulletin(ctx, "c1", "b1")
	require.NoError(t, err)
	second, err := g.GetBulletin(ctx, "c1", "b1")
	require.NoError(t, err)

	first.FieldValues = map[string]string{"hymn": "1"}
	second.FieldValues = map[string]string{"hymn": "2"}
	require.NoError(t, g.UpdateBulletin(ctx, first))
	require.NoError(t, g.UpdateBulletin(ctx, second))

	got, err := g.GetBulletin(ctx, "c1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "2", got.FieldValues["hymn"])
}
