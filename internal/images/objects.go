package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Filename    string
	ContentType string
	Size        int64
	UploadedAt  time.Time
}

// ObjectStore holds image bytes. Keys are opaque strings chosen by the
// caller.
type ObjectStore interface {
	Put(ctx context.Context, key, filename, contentType string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// GridFSStore keeps objects in a MongoDB GridFS bucket, using the key as
// the file id. The v1 bucket API takes no context, so ctx is only honoured
// between calls.
type GridFSStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

func ConnectGridFS(ctx context.Context, uri, database string) (*GridFSStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName("listing_images"))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFSStore{client: client, bucket: bucket}, nil
}

func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *GridFSStore) Put(ctx context.Context, key, filename, contentType string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"content_type": contentType})
	if err := s.bucket.UploadFromStreamWithID(key, filename, r, opts); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *GridFSStore) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}
	stream, err := s.bucket.OpenDownloadStream(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("open %s: %w", key, err)
	}

	f := stream.GetFile()
	info := ObjectInfo{
		Filename:   f.Name,
		Size:       f.Length,
		UploadedAt: f.UploadDate,
	}
	if f.Metadata != nil {
		if ct, ok := f.Metadata.Lookup("content_type").StringValueOK(); ok {
			info.ContentType = ct
		}
	}
	return stream, info, nil
}

func (s *GridFSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.bucket.Delete(key); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
