package instrument

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig describes an S3-compatible endpoint.
type ObjectConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectGetter downloads objects and records each one as a remote input.
type ObjectGetter struct {
	client *minio.Client
	rec    Recorder
}

// NewObjectGetter creates a getter for the endpoint in cfg.
func NewObjectGetter(rec Recorder, cfg ObjectConfig) (*ObjectGetter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("object endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("object access key and secret key are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object client: %w", err)
	}
	return WrapObjectClient(rec, client), nil
}

// WrapObjectClient records downloads made through an existing client.
func WrapObjectClient(rec Recorder, client *minio.Client) *ObjectGetter {
	return &ObjectGetter{client: client, rec: rec}
}

// GetObject opens an object for reading.
func (g *ObjectGetter) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error) {
	obj, err := g.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	g.rec.RecordRemoteInput(g.ObjectURL(bucket, key))
	return obj, nil
}

// FGetObject downloads an object to filePath.
func (g *ObjectGetter) FGetObject(ctx context.Context, bucket, key, filePath string, opts minio.GetObjectOptions) error {
	if err := g.client.FGetObject(ctx, bucket, key, filePath, opts); err != nil {
		return err
	}
	g.rec.RecordRemoteInput(g.ObjectURL(bucket, key))
	return nil
}

// ObjectURL returns the path-style URL identifying an object.
func (g *ObjectGetter) ObjectURL(bucket, key string) string {
	return objectURL(g.client.EndpointURL(), bucket, key)
}

func objectURL(endpoint *url.URL, bucket, key string) string {
	u := url.URL{Scheme: endpoint.Scheme, Host: endpoint.Host}
	u.Path = "/" + bucket + "/" + strings.TrimLeft(key, "/")
	return u.String()
}
