package storageprovider

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"

	"github.com/getsentry/speedscope/internal/storageutil"
)

// Gcs implements storageutil.ObjectHandler with the native Cloud Storage
// client.
type Gcs struct {
	Client       *storage.Client
	BucketHandle *storage.BucketHandle
}

// NewGcs connects to bucket with the default credentials. STORAGE_EMULATOR_HOST
// is honored by the client.
func NewGcs(ctx context.Context, bucket string) (*Gcs, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Gcs{Client: client, BucketHandle: client.Bucket(bucket)}, nil
}

func (g *Gcs) Close() error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Close()
}

// Put writes a file to the storage provider with name being the path.
func (g *Gcs) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return g.BucketHandle.Object(name).NewWriter(ctx), nil
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (g *Gcs) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	rc, err := g.BucketHandle.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	return rc, nil
}
