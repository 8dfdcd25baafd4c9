package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
)

// templateRecord is the templates table
type templateRecord struct {
	ID                string                     `gorm:"primaryKey;size:64"`
	ChurchID          string                     `gorm:"index;size:64;not null"`
	Name              string                     `gorm:"not null"`
	LayoutFingerprint string                     `gorm:"index;size:128"`
	FieldDefinitions  []bulletin.FieldDefinition `gorm:"serializer:json"`
	SourceBulletinID  string                     `gorm:"size:64"`
	CreatedAt         time.Time                  `gorm:"index"`
}

func (templateRecord) TableName() string { return "templates" }

// bulletinRecord is the bulletins table
type bulletinRecord struct {
	ID                string            `gorm:"primaryKey;size:64"`
	ChurchID          string            `gorm:"index;size:64;not null"`
	OriginalPDFURL    string            `gorm:"column:original_pdf_url;not null"`
	WeekOf            time.Time         `gorm:"type:date"`
	IsTemplate        bool              `gorm:"not null;default:false"`
	TemplateID        *string           `gorm:"index;size:64"`
	FieldValues       map[string]string `gorm:"serializer:json"`
	LayoutFingerprint string            `gorm:"size:128"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (bulletinRecord) TableName() string { return "bulletins" }

// Gorm is a bulletin.Store backed by a relational database through gorm
type Gorm struct {
	db *gorm.DB
}

// OpenPostgres connects to PostgreSQL and migrates the schema
func OpenPostgres(dsn string, debug bool) (*Gorm, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGorm(db)
}

// NewGorm wraps an open gorm connection and migrates the schema
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&templateRecord{}, &bulletinRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Gorm{db: db}, nil
}

// Close releases the underlying connection pool
func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateTemplate inserts t
func (g *Gorm) CreateTemplate(ctx context.Context, t *bulletin.Template) error {
	rec := toTemplateRecord(t)
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert template %s: %w", t.ID, err)
	}
	return nil
}

// GetTemplate loads the church's template id
func (g *Gorm) GetTemplate(ctx context.Context, churchID, id string) (*bulletin.Template, error) {
	var rec templateRecord
	err := g.db.WithContext(ctx).
		Where("id = ? AND church_id = ?", id, churchID).
		First(&rec).Error
	if err != nil {
		return nil, notFound("template", id, err)
	}
	t := fromTemplateRecord(rec)
	return &t, nil
}

// ListTemplates returns the church's templates, newest first
func (g *Gorm) ListTemplates(ctx context.Context, churchID string) ([]bulletin.Template, error) {
	var recs []templateRecord
	err := g.db.WithContext(ctx).
		Where("church_id = ?", churchID).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	out := make([]bulletin.Template, len(recs))
	for i, rec := range recs {
		out[i] = fromTemplateRecord(rec)
	}
	return out, nil
}

// CreateBulletin inserts b
func (g *Gorm) CreateBulletin(ctx context.Context, b *bulletin.Bulletin) error {
	rec := toBulletinRecord(b)
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert bulletin %s: %w", b.ID, err)
	}
	return nil
}

// GetBulletin loads the church's bulletin id
func (g *Gorm) GetBulletin(ctx context.Context, churchID, id string) (*bulletin.Bulletin, error) {
	var rec bulletinRecord
	err := g.db.WithContext(ctx).
		Where("id = ? AND church_id = ?", id, churchID).
		First(&rec).Error
	if err != nil {
		return nil, notFound("bulletin", id, err)
	}
	b := fromBulletinRecord(rec)
	return &b, nil
}

// UpdateBulletin overwrites every column of the church's bulletin
func (g *Gorm) UpdateBulletin(ctx context.Context, b *bulletin.Bulletin) error {
	rec := toBulletinRecord(b)
	result := g.db.WithContext(ctx).
		Model(&bulletinRecord{}).
		Where("id = ? AND church_id = ?", b.ID, b.ChurchID).
		Select("*").
		Omit("id", "church_id", "created_at").
		Updates(&rec)
	if result.Error != nil {
		return fmt.Errorf("update bulletin %s: %w", b.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("bulletin %s: %w", b.ID, bulletin.ErrNotFound)
	}
	return nil
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, bulletin.ErrNotFound)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func toTemplateRecord(t *bulletin.Template) templateRecord {
	return templateRecord{
		ID:                t.ID,
		ChurchID:          t.ChurchID,
		Name:              t.Name,
		LayoutFingerprint: t.LayoutFingerprint,
		FieldDefinitions:  t.FieldDefinitions,
		SourceBulletinID:  t.SourceBulletinID,
		CreatedAt:         t.CreatedAt,
	}
}

func fromTemplateRecord(rec templateRecord) bulletin.Template {
	return bulletin.Template{
		ID:                rec.ID,
		ChurchID:          rec.ChurchID,
		Name:              rec.Name,
		LayoutFingerprint: rec.LayoutFingerprint,
		FieldDefinitions:  rec.FieldDefinitions,
		SourceBulletinID:  rec.SourceBulletinID,
		CreatedAt:         rec.CreatedAt,
	}
}

func toBulletinRecord(b *bulletin.Bulletin) bulletinRecord {
	return bulletinRecord{
		ID:                b.ID,
		ChurchID:          b.ChurchID,
		OriginalPDFURL:    b.OriginalPDFURL,
		WeekOf:            b.WeekOf,
		IsTemplate:        b.IsTemplate,
		TemplateID:        b.TemplateID,
		FieldValues:       b.FieldValues,
		LayoutFingerprint: b.LayoutFingerprint,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func fromBulletinRecord(rec bulletinRecord) bulletin.Bulletin {
	values := rec.FieldValues
	if values == nil {
		values = map[string]string{}
	}
	return bulletin.Bulletin{
		ID:                rec.ID,
		ChurchID:          rec.ChurchID,
		OriginalPDFURL:    rec.OriginalPDFURL,
		WeekOf:            rec.WeekOf,
		IsTemplate:        rec.IsTemplate,
		TemplateID:        rec.TemplateID,
		FieldValues:       values,
		LayoutFingerprint: rec.LayoutFingerprint,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}
