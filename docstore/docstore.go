// Package docstore records uploaded documents per user and resolves them back
// into pipeline sources for summarization.
package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/hazyhaar/docsum/blob"
	"github.com/hazyhaar/docsum/dbopen"
	"github.com/hazyhaar/docsum/docpipe"
	"github.com/hazyhaar/docsum/horosafe"
	"github.com/hazyhaar/docsum/idgen"
)

const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id     TEXT NOT NULL,
    name        TEXT NOT NULL,
    blob_key    TEXT NOT NULL UNIQUE,
    size_bytes  INTEGER NOT NULL,
    uploaded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id, id);
`

var (
	ErrNotFound    = errors.New("docstore: document not found")
	ErrUnsupported = errors.New("docstore: unsupported file type")
)

// UnsupportedError names the rejected extension.
type UnsupportedError struct {
	Ext string
}

func (e *UnsupportedError) Error() string { return "Unsupported file type: " + e.Ext }

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// Document is an uploaded file owned by one user.
type Document struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user"`
	Name       string    `json:"name"`
	Key        string    `json:"-"`
	URL        string    `json:"file"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Config struct {
	// MaxFileSize caps uploads (default docpipe.DefaultMaxFileSize).
	MaxFileSize int64
	// FileURL builds the download link of a document. When nil the blob
	// store's URL for the object is used.
	FileURL func(id int64) string
	IDs     idgen.Generator
	Logger  *slog.Logger
}

type Store struct {
	db     *sql.DB
	blobs  blob.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func New(db *sql.DB, blobs blob.Store, cfg Config) *Store {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = docpipe.DefaultMaxFileSize
	}
	if cfg.IDs == nil {
		cfg.IDs = idgen.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{db: db, blobs: blobs, cfg: cfg, logger: cfg.Logger, now: time.Now}
}

// Allowed reports whether a filename has an extension the pipeline has a
// dedicated extractor for.
func Allowed(name string) error {
	if docpipe.Sniff(name) == docpipe.FormatUnknown {
		return &UnsupportedError{Ext: strings.ToLower(path.Ext(strings.ReplaceAll(name, `\`, "/")))}
	}
	return nil
}

// Upload stores the content under documents/<user>/<id>_<name> and records it.
func (s *Store) Upload(ctx context.Context, userID, filename string, r io.Reader) (*Document, error) {
	name := horosafe.SafeFilename(filename)
	if err := Allowed(name); err != nil {
		return nil, err
	}
	data, err := horosafe.LimitedReadAll(r, s.cfg.MaxFileSize)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("documents/%s/%s_%s", userID, s.cfg.IDs(), strings.ReplaceAll(name, "..", "."))
	if err := s.blobs.Create(ctx, key, bytes.NewReader(data), ""); err != nil {
		return nil, fmt.Errorf("docstore: store %s: %w", name, err)
	}

	now := s.now().UTC()
	res, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO documents (user_id, name, blob_key, size_bytes, uploaded_at) VALUES (?, ?, ?, ?, ?)`,
		userID, name, key, len(data), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("docstore: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("docstore: insert id: %w", err)
	}
	s.logger.Info("docstore: uploaded", "document_id", id, "user_id", userID, "name", name, "size", len(data))
	return &Document{
		ID: id, UserID: userID, Name: name, Key: key, URL: s.fileURL(id, key),
		Size: int64(len(data)), UploadedAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

func (s *Store) fileURL(id int64, key string) string {
	if s.cfg.FileURL != nil {
		return s.cfg.FileURL(id)
	}
	return s.blobs.URL(key)
}

// Open returns the stored bytes of d.
func (s *Store) Open(ctx context.Context, d *Document) (io.ReadCloser, error) {
	rc, err := s.blobs.Get(ctx, d.Key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rc, err
}

const selectCols = `SELECT id, user_id, name, blob_key, size_bytes, uploaded_at FROM documents`

func (s *Store) scan(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		var ts int64
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Key, &d.Size, &ts); err != nil {
			return nil, err
		}
		d.UploadedAt = time.UnixMilli(ts).UTC()
		d.URL = s.fileURL(d.ID, d.Key)
		out = append(out, d)
	}
	return out, rows.Err()
}

// List returns the user's documents, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("docstore: list: %w", err)
	}
	return s.scan(rows)
}

// Get returns one document if userID owns it.
func (s *Store) Get(ctx context.Context, userID string, id int64) (*Document, error) {
	docs, err := s.Lookup(ctx, userID, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

// Lookup returns the documents among ids that userID owns, in ascending id
// order. Unknown and foreign ids are dropped silently.
func (s *Store) Lookup(ctx context.Context, userID string, ids []int64) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	q := selectCols + ` WHERE user_id = ? AND id IN (?` + strings.Repeat(",?", len(ids)-1) + `) ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: lookup: %w", err)
	}
	return s.scan(rows)
}

// Sources loads document contents for the extraction pipeline. A document
// whose object is missing or oversized still yields a source carrying the
// cause, so the pipeline reports it with a placeholder instead of failing
// the batch.
func (s *Store) Sources(ctx context.Context, docs []Document) ([]docpipe.Source, error) {
	srcs := make([]docpipe.Source, 0, len(docs))
	for _, d := range docs {
		src := docpipe.Source{Name: d.Name}
		data, err := blob.ReadAll(ctx, s.blobs, d.Key, s.cfg.MaxFileSize)
		switch {
		case errors.Is(err, blob.ErrNotFound):
			s.logger.Warn("docstore: object missing", "document_id", d.ID, "key", d.Key)
			src.Err = errors.New("stored file is missing")
		case errors.Is(err, horosafe.ErrTooLarge):
			s.logger.Warn("docstore: object too large", "document_id", d.ID, "key", d.Key)
			src.Err = fmt.Errorf("%w (max %d bytes)", docpipe.ErrTooLarge, s.cfg.MaxFileSize)
		case err != nil:
			return nil, fmt.Errorf("docstore: read %s: %w", d.Key, err)
		default:
			src.Data = data
		}
		srcs = append(srcs, src)
	}
	return srcs, nil
}
