package bulletin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/mcp-bulletin/internal/generate"
	"github.com/a3tai/mcp-bulletin/internal/layout"
)

// Options tunes the Service
type Options struct {
	// FontSize is the cap used when a generate request sets none
	FontSize float64
	// MaxFileSize bounds uploads, in bytes; zero disables the check
	MaxFileSize int64
	// Now and NewID are replaced in tests
	Now   func() time.Time
	NewID func() string
}

// Service runs the upload, template, extraction and generation flows
type Service struct {
	store     Store
	blobs     Blobs
	extractor *layout.Extractor
	generator *generate.Generator
	matcher   *Matcher
	opts      Options
}

// NewService wires a Service
func NewService(store Store, blobs Blobs, extractor *layout.Extractor, generator *generate.Generator, matcher *Matcher, opts Options) *Service {
	if opts.FontSize <= 0 {
		opts.FontSize = generate.DefaultFontSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Service{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		generator: generator,
		matcher:   matcher,
		opts:      opts,
	}
}

// Extractor returns the layout extractor the service uses
func (s *Service) Extractor() *layout.Extractor {
	return s.extractor
}

// Generator returns the PDF generator the service uses
func (s *Service) Generator() *generate.Generator {
	return s.generator
}

// UploadRequest is a new bulletin PDF for a church
type UploadRequest struct {
	ChurchID string
	FileName string
	Data     []byte
	WeekOf   time.Time
}

// UploadResult reports what was learned from an upload
type UploadResult struct {
	Bulletin        *Bulletin         `json:"bulletin"`
	Fingerprint     string            `json:"fingerprint"`
	PageCount       int               `json:"pageCount"`
	Match           MatchResult       `json:"match"`
	ExtractedValues map[string]string `json:"extractedValues,omitempty"`
}

// Upload validates and stores a PDF, fingerprints it and matches it against
// the church's templates. On a match the bulletin is linked to the template
// and its field values are extracted. The PDF is stored only once matching
// succeeds and is removed again if the bulletin cannot be created.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := s.validateUpload(req); err != nil {
		return nil, err
	}

	analysis, err := s.extractor.Extract(ctx, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", req.FileName, err)
	}

	match, err := s.matcher.FindBestMatch(ctx, analysis.Fingerprint, req.ChurchID)
	if err != nil {
		return nil, err
	}

	url, err := s.blobs.Put(ctx, req.ChurchID, req.FileName, req.Data)
	if err != nil {
		log.Printf("Failed to store upload %s for church %s: %v", req.FileName, req.ChurchID, err)
		return nil, fmt.Errorf("failed to store PDF: %w", err)
	}

	now := s.opts.Now()
	b := &Bulletin{
		ID:                s.opts.NewID(),
		ChurchID:          req.ChurchID,
		OriginalPDFURL:    url,
		WeekOf:            req.WeekOf,
		FieldValues:       map[string]string{},
		LayoutFingerprint: analysis.Fingerprint,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	result := &UploadResult{
		Bulletin:    b,
		Fingerprint: analysis.Fingerprint,
		PageCount:   analysis.PageCount,
		Match:       match,
	}

	if match.Matched() {
		templateID := match.Template.ID
		b.TemplateID = &templateID

		values, err := s.extractor.FieldValues(analysis, Geometries(match.Template.FieldDefinitions))
		if err != nil {
			log.Printf("Field extraction for upload %s returned no values: %v", req.FileName, err)
		}
		b.FieldValues = values
		result.ExtractedValues = values
	}

	if err := s.store.CreateBulletin(ctx, b); err != nil {
		log.Printf("Failed to create bulletin for church %s: %v", req.ChurchID, err)
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), url); delErr != nil {
			log.Printf("Failed to remove orphaned upload %s: %v", url, delErr)
		}
		return nil, fmt.Errorf("failed to create bulletin: %w", err)
	}

	return result, nil
}

func (s *Service) validateUpload(req UploadRequest) error {
	if strings.TrimSpace(req.ChurchID) == "" {
		return fmt.Errorf("%w: church id is required", ErrInvalidInput)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: no file provided", ErrInvalidInput)
	}
	if req.WeekOf.IsZero() {
		return fmt.Errorf("%w: week date is required", ErrInvalidInput)
	}
	if s.opts.MaxFileSize > 0 && int64(len(req.Data)) > s.opts.MaxFileSize {
		return fmt.Errorf("%w: file size %d exceeds maximum %d", ErrInvalidInput, len(req.Data), s.opts.MaxFileSize)
	}
	if !bytes.HasPrefix(req.Data, []byte("%PDF-")) {
		return fmt.Errorf("%w: file is not a PDF", ErrInvalidInput)
	}
	if ext := strings.ToLower(filepath.Ext(req.FileName)); ext != "" && ext != ".pdf" {
		return fmt.Errorf("%w: file must have a .pdf extension, got %s", ErrInvalidInput, ext)
	}
	return nil
}

// Analyze extracts positioned text and the fingerprint without storing anything
func (s *Service) Analyze(ctx context.Context, data []byte) (*layout.Analysis, error) {
	return s.extractor.Extract(ctx, data)
}

// Match finds the best template of the church for fingerprint
func (s *Service) Match(ctx context.Context, churchID, fingerprint string) (MatchResult, error) {
	return s.matcher.FindBestMatch(ctx, fingerprint, churchID)
}

// CreateTemplateRequest turns a bulletin into a template
type CreateTemplateRequest struct {
	ChurchID         string
	BulletinID       string
	Name             string
	FieldDefinitions []FieldDefinition
	// Fingerprint overrides the bulletin's stored fingerprint when set
	Fingerprint string
}

// CreateTemplate stores a template built from the bulletin's layout and the
// given fields, then marks the bulletin as a template linked to it
func (s *Service) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*Template, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrInvalidInput)
	}
	if err := ValidateFieldDefinitions(req.FieldDefinitions); err != nil {
		return nil, err
	}

	b, err := s.store.GetBulletin(ctx, req.ChurchID, req.BulletinID)
	if err != nil {
		return nil, err
	}

	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = b.LayoutFingerprint
	}
	if fingerprint == "" {
		data, err := s.fetch(ctx, b)
		if err != nil {
			return nil, err
		}
		analysis, err := s.extractor.Extract(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze bulletin %s: %w", b.ID, err)
		}
		fingerprint = analysis.Fingerprint
	}

	t := &Template{
		ID:                s.opts.NewID(),
		ChurchID:          req.ChurchID,
		Name:              strings.TrimSpace(req.Name),
		LayoutFingerprint: fingerprint,
		FieldDefinitions:  normalizeTypes(req.FieldDefinitions),
		SourceBulletinID:  b.ID,
		CreatedAt:         s.opts.Now(),
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		log.Printf("Failed to create template for bulletin %s: %v", b.ID, err)
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	b.IsTemplate = true
	b.TemplateID = &t.ID
	b.LayoutFingerprint = fingerprint
	b.UpdatedAt = s.opts.Now()
	if err := s.store.UpdateBulletin(ctx, b); err != nil {
		log.Printf("Failed to flag bulletin %s as template: %v", b.ID, err)
		return nil, fmt.Errorf("failed to update bulletin: %w", err)
	}

	return t, nil
}

func normalizeTypes(defs []FieldDefinition) []FieldDefinition {
	out := make([]FieldDefinition, len(defs))
	for i, def := range defs {
		def.ID = strings.TrimSpace(def.ID)
		if def.Type == "" {
			def.Type = FieldText
		}
		out[i] = def
	}
	return out
}

// ExtractValues re-runs field extraction for a bulletin and stores the
// result. Extraction failures are logged and stored as empty values.
func (s *Service) ExtractValues(ctx context.Context, churchID, bulletinID string) (map[string]string, error) {
	b, err := s.store.GetBulletin(ctx, churchID, bulletinID)
	if err != nil {
		return nil, err
	}

	t, err := s.templateFor(ctx, b)
	if err != nil {
		return nil, err
	}
	fields := Geometries(t.FieldDefinitions)

	var values map[string]string
	data, err := s.fetch(ctx, b)
	if err != nil {
		values, _ = s.extractor.FieldValues(nil, fields)
	} else {
		values, err = s.extractor.ExtractFieldValues(ctx, data, fields)
		if err != nil {
			log.Printf("Field extraction for bulletin %s returned no values: %v", b.ID, err)
		}
	}

	b.FieldValues = values
	b.UpdatedAt = s.opts.Now()
	if err := s.store.UpdateBulletin(ctx, b); err != nil {
		log.Printf("Failed to save extracted values for bulletin %s: %v", b.ID, err)
		return nil, fmt.Errorf("failed to save extracted values: %w", err)
	}
	return values, nil
}

// SaveValues replaces a bulletin's field values
func (s *Service) SaveValues(ctx context.Context, churchID, bulletinID string, values map[string]string) error {
	if values == nil {
		return fmt.Errorf("%w: missing field values", ErrInvalidInput)
	}

	b, err := s.store.GetBulletin(ctx, churchID, bulletinID)
	if err != nil {
		return err
	}

	b.FieldValues = values
	b.UpdatedAt = s.opts.Now()
	if err := s.store.UpdateBulletin(ctx, b); err != nil {
		log.Printf("Failed to save field values for bulletin %s: %v", b.ID, err)
		return fmt.Errorf("failed to save field values: %w", err)
	}
	return nil
}

// GetBulletin returns one bulletin of the church
func (s *Service) GetBulletin(ctx context.Context, churchID, bulletinID string) (*Bulletin, error) {
	return s.store.GetBulletin(ctx, churchID, bulletinID)
}

// ListTemplates returns the church's templates, newest first
func (s *Service) ListTemplates(ctx context.Context, churchID string) ([]Template, error) {
	templates, err := s.store.ListTemplates(ctx, churchID)
	if err != nil {
		log.Printf("Failed to list templates for church %s: %v", churchID, err)
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// GeneratedPDF is a regenerated bulletin ready for download
type GeneratedPDF struct {
	Filename string
	Data     []byte
}

// Generate overlays the bulletin's stored values on its own PDF using the
// linked template's fields. fontSize <= 0 uses the configured default.
func (s *Service) Generate(ctx context.Context, churchID, bulletinID string, fontSize float64) (*GeneratedPDF, error) {
	b, err := s.store.GetBulletin(ctx, churchID, bulletinID)
	if err != nil {
		return nil, err
	}

	t, err := s.templateFor(ctx, b)
	if err != nil {
		return nil, err
	}

	if fontSize <= 0 {
		fontSize = s.opts.FontSize
	}

	data, err := s.generator.Generate(ctx, generate.Request{
		TemplateURL: b.OriginalPDFURL,
		Fields:      Geometries(t.FieldDefinitions),
		Values:      b.FieldValues,
		FontSize:    fontSize,
	})
	if err != nil {
		log.Printf("PDF generation for bulletin %s failed: %v", b.ID, err)
		return nil, err
	}

	return &GeneratedPDF{
		Filename: GeneratedFilename(t.Name, s.opts.Now()),
		Data:     data,
	}, nil
}

// templateFor resolves the template whose fields apply to b
func (s *Service) templateFor(ctx context.Context, b *Bulletin) (*Template, error) {
	if b.TemplateID == nil || *b.TemplateID == "" {
		return nil, ErrNoTemplateFields
	}

	t, err := s.store.GetTemplate(ctx, b.ChurchID, *b.TemplateID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoTemplateFields
	}
	if err != nil {
		return nil, err
	}
	if len(t.FieldDefinitions) == 0 {
		return nil, ErrNoTemplateFields
	}
	return t, nil
}

func (s *Service) fetch(ctx context.Context, b *Bulletin) ([]byte, error) {
	data, err := s.blobs.Fetch(ctx, b.OriginalPDFURL)
	if err != nil {
		log.Printf("Failed to fetch PDF for bulletin %s from %s: %v", b.ID, b.OriginalPDFURL, err)
		return nil, fmt.Errorf("failed to fetch bulletin PDF: %w", err)
	}
	return data, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9]`)

// GeneratedFilename builds a download name such as "sunday_service_2025-06-01.pdf"
func GeneratedFilename(title string, at time.Time) string {
	name := strings.ToLower(strings.TrimSpace(title))
	if name == "" {
		name = "bulletin"
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	return fmt.Sprintf("%s_%s.pdf", name, at.Format("2006-01-02"))
}
