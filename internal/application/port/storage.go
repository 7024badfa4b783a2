package port

import "context"

// BlobStorage stores whole documents by relative name
type BlobStorage interface {
	Save(ctx context.Context, name string, content []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
	Exists(ctx context.Context, name string) bool
}
