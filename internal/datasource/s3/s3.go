// Package s3 lists and streams delimited files stored in an S3-compatible
// bucket (AWS S3, MinIO) using the minio-go SDK.
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docetl/internal/datasource"
)

// Config selects a bucket prefix to read from.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
	Bucket          string
	Prefix          string
	// Ext is the object suffix to pick up, ".csv" when empty.
	Ext   string
	Rules []datasource.Rule
}

// objectStore is the subset of *minio.Client the catalog needs.
type objectStore interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Catalog is a datasource.Catalog over one bucket prefix.
type Catalog struct {
	cfg    Config
	client objectStore
}

// New builds a Catalog with static credentials.
func New(cfg Config) (*Catalog, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	endpoint, secure := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			secure = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &Catalog{cfg: cfg, client: client}, nil
}

// Datasets lists matching objects under the prefix, sorted by key.
func (c *Catalog) Datasets(ctx context.Context) ([]datasource.Dataset, error) {
	ext := c.cfg.Ext
	if ext == "" {
		ext = ".csv"
	}

	// Returning early on a listing error must stop the lister goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for obj := range c.client.ListObjects(ctx, c.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    c.cfg.Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3: list %s/%s: %w", c.cfg.Bucket, c.cfg.Prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") || !strings.EqualFold(path.Ext(obj.Key), ext) {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	out := make([]datasource.Dataset, 0, len(keys))
	for _, key := range keys {
		kind, coll := datasource.Resolve(key, c.cfg.Rules)
		out = append(out, datasource.Dataset{
			Name:       path.Base(key),
			Kind:       kind,
			Collection: coll,
			Src:        c.object(key),
		})
	}
	return out, nil
}

// object returns a Source that streams one object.
func (c *Catalog) object(key string) datasource.Source {
	return datasource.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		obj, err := c.client.GetObject(ctx, c.cfg.Bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("s3: get %s/%s: %w", c.cfg.Bucket, key, err)
		}
		// GetObject is lazy; Stat surfaces missing objects and auth errors now.
		if _, err := obj.Stat(); err != nil {
			obj.Close()
			return nil, fmt.Errorf("s3: stat %s/%s: %w", c.cfg.Bucket, key, err)
		}
		return obj, nil
	})
}
