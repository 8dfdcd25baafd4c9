package bulletin

import "context"

// Store persists templates and bulletins keyed by church. Lookups for a
// record owned by another church return ErrNotFound.
type Store interface {
	CreateTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, churchID, id string) (*Template, error)
	// ListTemplates returns the church's templates, newest first
	ListTemplates(ctx context.Context, churchID string) ([]Template, error)

	CreateBulletin(ctx context.Context, b *Bulletin) error
	GetBulletin(ctx context.Context, churchID, id string) (*Bulletin, error)
	// UpdateBulletin overwrites the stored record; the last write wins
	UpdateBulletin(ctx context.Context, b *Bulletin) error
}

// Blobs stores uploaded PDFs and resolves their URLs back to bytes
type Blobs interface {
	Put(ctx context.Context, churchID, name string, data []byte) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
	Delete(ctx context.Context, url string) error
}
