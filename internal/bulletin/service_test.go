package bulletin_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
	"github.com/a3tai/mcp-bulletin/internal/generate"
	"github.com/a3tai/mcp-bulletin/internal/layout"
	pdferrors "github.com/a3tai/mcp-bulletin/internal/pdf/errors"
	"github.com/a3tai/mcp-bulletin/internal/pdf/pdftest"
	"github.com/a3tai/mcp-bulletin/internal/pdf/wrapper"
	"github.com/a3tai/mcp-bulletin/internal/storage"
	"github.com/a3tai/mcp-bulletin/internal/store"
)

const church = "church-1"

var weekOf = time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T) *bulletin.Service {
	t.Helper()
	return newServiceWith(t, store.NewMemory(), storage.NewMemory())
}

func newServiceWith(t *testing.T, db bulletin.Store, blobs *storage.Blobs) *bulletin.Service {
	t.Helper()

	factory := wrapper.NewPDFLibraryFactory()
	extractor, err := layout.NewExtractorForBackend(factory, wrapper.LibraryAuto, layout.Options{Workers: 2})
	require.NoError(t, err)
	writer, err := factory.CreateWriter(wrapper.LibraryAuto)
	require.NoError(t, err)

	seq := 0
	return bulletin.NewService(db, blobs, extractor, generate.NewGenerator(writer, blobs),
		bulletin.NewMatcher(db, bulletin.DefaultMatchThreshold), bulletin.Options{
			MaxFileSize: 10 * 1024 * 1024,
			Now:         func() time.Time { return weekOf.Add(time.Duration(seq) * time.Hour) },
			NewID: func() string {
				seq++
				return fmt.Sprintf("id-%d", seq)
			},
		})
}

// weeklyPDF renders the same layout with a different speaker each week
func weeklyPDF(speaker string) []byte {
	return pdftest.SinglePage(
		pdftest.Text{X: 72, Y: 720, Size: 14, Value: "SABBATH SCHOOL"},
		pdftest.Text{X: 72, Y: 690, Size: 14, Value: "DIVINE SERVICE"},
		pdftest.Text{X: 100, Y: 100, Size: 12, Value: speaker},
	)
}

var speakerField = bulletin.FieldDefinition{ID: "speaker", Label: "Speaker", X: 90, Y: 680, Width: 120, Height: 15, Page: 1}

func TestService_TemplateLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	// first upload: nothing to match yet
	first, err := svc.Upload(ctx, bulletin.UploadRequest{ChurchID: church, FileName: "week1.pdf", Data: weeklyPDF("Pastor Jane"), WeekOf: weekOf})
	require.NoError(t, err)
	assert.False(t, first.Match.Matched())
	assert.Equal(t, 0.0, first.Match.Confidence)
	assert.Len(t, first.Fingerprint, 64)
	assert.Equal(t, 1, first.PageCount)
	assert.Nil(t, first.Bulletin.TemplateID)

	template, err := svc.CreateTemplate(ctx, bulletin.CreateTemplateRequest{
		ChurchID:         church,
		BulletinID:       first.Bulletin.ID,
		Name:             "Sabbath Bulletin",
		FieldDefinitions: []bulletin.FieldDefinition{speakerField},
	})
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, template.LayoutFingerprint)
	assert.Equal(t, bulletin.FieldText, template.FieldDefinitions[0].Type)

	source, err := svc.GetBulletin(ctx, church, first.Bulletin.ID)
	require.NoError(t, err)
	assert.True(t, source.IsTemplate)
	require.NotNil(t, source.TemplateID)
	assert.Equal(t, template.ID, *source.TemplateID)

	values, err := svc.ExtractValues(ctx, church, first.Bulletin.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"speaker": "Pastor Jane"}, values)

	// the speaker text is part of the digest, so an identical week matches exactly
	second, err := svc.Upload(ctx, bulletin.UploadRequest{ChurchID: church, FileName: "week2.pdf", Data: weeklyPDF("Pastor Jane"), WeekOf: weekOf.AddDate(0, 0, 7)})
	require.NoError(t, err)
	require.True(t, second.Match.Matched())
	assert.Equal(t, 1.0, second.Match.Confidence)
	assert.Equal(t, template.ID, second.Match.Template.ID)
	assert.Equal(t, map[string]string{"speaker": "Pastor Jane"}, second.ExtractedValues)

	stored, err := svc.GetBulletin(ctx, church, second.Bulletin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pastor Jane", stored.FieldValues["speaker"])

	require.NoError(t, svc.SaveValues(ctx, church, second.Bulletin.ID, map[string]string{"speaker": "Elder John"}))

	pdf, err := svc.Generate(ctx, church, second.Bulletin.ID, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf.Data, []byte("%PDF")))
	assert.Contains(t, pdf.Filename, "sabbath_bulletin_")

	templates, err := svc.ListTemplates(ctx, church)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "Sabbath Bulletin", templates[0].Name)
}

func TestService_UploadValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	tests := []struct {
		name string
		req  bulletin.UploadRequest
	}{
		{name: "no_church", req: bulletin.UploadRequest{FileName: "a.pdf", Data: weeklyPDF("x"), WeekOf: weekOf}},
		{name: "no_file", req: bulletin.UploadRequest{ChurchID: church, FileName: "a.pdf", WeekOf: weekOf}},
		{name: "no_week", req: bulletin.UploadRequest{ChurchID: church, FileName: "a.pdf", Data: weeklyPDF("x")}},
		{name: "not_pdf", req: bulletin.UploadRequest{ChurchID: church, FileName: "a.pdf", Data: []byte("hello"), WeekOf: weekOf}},
		{name: "wrong_extension", req: bulletin.UploadRequest{ChurchID: church, FileName: "a.docx", Data: weeklyPDF("x"), WeekOf: weekOf}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tt.req)
			assert.ErrorIs(t, err, bulletin.ErrInvalidInput)
		})
	}

	_, err := svc.Upload(ctx, bulletin.UploadRequest{ChurchID: church, FileName: "broken.pdf", Data: []byte("%PDF-1.4\ngarbage"), WeekOf: weekOf})
	require.Error(t, err)
	assert.True(t, pdferrors.IsDecode(err))
}

func TestService_NoTemplateFields(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	up, err := svc.Upload(ctx, bulletin.UploadRequest{ChurchID: church, FileName: "a.pdf", Data: weeklyPDF("x"), WeekOf: weekOf})
	require.NoError(t, err)

	_, err = svc.ExtractValues(ctx, church, up.Bulletin.ID)
	assert.ErrorIs(t, err, bulletin.ErrNoTemplateFields)

	_, err = svc.Generate(ctx, church, up.Bulletin.ID, 12)
	assert.ErrorIs(t, err, bulletin.ErrNoTemplateFields)
}

func TestService_CreateTemplateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	up, err := svc.Upload(ctx, bulletin.UploadRequest{ChurchID: church, FileName: "a.pdf", Data: weeklyPDF("x"), WeekOf: weekOf})
	require.NoError(t, err)

	_, err = svc.CreateTemplate(ctx, bulletin.CreateTemplateRequest{ChurchID: church, BulletinID: up.Bulletin.ID, FieldDefinitions: []bulletin.FieldDefinition{speakerField}})
	assert.ErrorIs(t, err, bulletin.ErrInvalidInput)

	_, err = svc.CreateTemplate(ctx, bulletin.CreateTemplateRequest{ChurchID: church, BulletinID: up.Bulletin.ID, Name: "T"})
	assert.ErrorIs(t, err, bulletin.ErrInvalidField)

	_, err = svc.CreateTemplate(ctx, bulletin.CreateTemplateRequest{ChurchID: "church-2", BulletinID: up.Bulletin.ID, Name: "T", FieldDefinitions: []bulletin.FieldDefinition{speakerField}})
	assert.ErrorIs(t, err, bulletin.ErrNotFound)

	tmpl, err := svc.CreateTemplate(ctx, bulletin.CreateTemplateRequest{ChurchID: church, BulletinID: up.Bulletin.ID, Name: "T", Fingerprint: "custom", FieldDefinitions: []bulletin.FieldDefinition{speakerField}})
	require.NoError(t, err)
	assert.Equal(t, "custom", tmpl.LayoutFingerprint)
}

func TestService_ExtractValuesFailsClosed(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	up, err := svc.Upload(ctx, bulletin.UploadRequest{ChurchID: church, FileName: "a.pdf", Data: weeklyPDF("Jane"), WeekOf: weekOf})
	require.NoError(t, err)

	offPage := bulletin.FieldDefinition{ID: "late", X: 10, Y: 10, Page: 4}
	_, err = svc.CreateTemplate(ctx, bulletin.CreateTemplateRequest{
		ChurchID:         church,
		BulletinID:       up.Bulletin.ID,
		Name:             "T",
		FieldDefinitions: []bulletin.FieldDefinition{speakerField, offPage},
	})
	require.NoError(t, err)

	values, err := svc.ExtractValues(ctx, church, up.Bulletin.ID)
	require.NoError(t, err, "extraction failures surface as empty values")
	assert.Equal(t, map[string]string{"speaker": "", "late": ""}, values)
}

func TestService_SaveValues(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	assert.ErrorIs(t, svc.SaveValues(ctx, church, "missing", map[string]string{}), bulletin.ErrNotFound)
	assert.ErrorIs(t, svc.SaveValues(ctx, church, "missing", nil), bulletin.ErrInvalidInput)
}

func TestService_Match(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	result, err := svc.Match(ctx, church, layout.FingerprintText("anything"))
	require.NoError(t, err)
	assert.Nil(t, result.Template)

	analysis, err := svc.Analyze(ctx, weeklyPDF("Jane"))
	require.NoError(t, err)
	assert.Len(t, analysis.Fragments, 3)
}

// failingStore fails the operations selected by its flags
type failingStore struct {
	*store.Memory
	failList   bool
	failCreate bool
}

func (s *failingStore) ListTemplates(ctx context.Context, churchID string) ([]bulletin.Template, error) {
	if s.failList {
		return nil, errors.New("connection reset")
	}
	return s.Memory.ListTemplates(ctx, churchID)
}

func (s *failingStore) CreateBulletin(ctx context.Context, b *bulletin.Bulletin) error {
	if s.failCreate {
		return errors.New("connection reset")
	}
	return s.Memory.CreateBulletin(ctx, b)
}

// storedFiles lists every regular file on fs
func storedFiles(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	var files []string
	err := afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestService_UploadLeavesNoOrphanedBlob(t *testing.T) {
	tests := []struct {
		name string
		db   *failingStore
	}{
		{name: "template_listing_fails", db: &failingStore{Memory: store.NewMemory(), failList: true}},
		{name: "bulletin_creation_fails", db: &failingStore{Memory: store.NewMemory(), failCreate: true}},
		{name: "success", db: &failingStore{Memory: store.NewMemory()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			svc := newServiceWith(t, tt.db, storage.New(fs))

			result, err := svc.Upload(context.Background(), bulletin.UploadRequest{
				ChurchID: church, FileName: "week1.pdf", Data: weeklyPDF("Pastor Jane"), WeekOf: weekOf,
			})

			if tt.db.failList || tt.db.failCreate {
				require.Error(t, err)
				assert.Empty(t, storedFiles(t, fs))
				return
			}
			require.NoError(t, err)
			assert.Len(t, storedFiles(t, fs), 1)
			assert.Contains(t, result.Bulletin.OriginalPDFURL, storage.Scheme+"://"+church+"/")
		})
	}
}
