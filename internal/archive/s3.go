package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"abus-go/internal/abus"
	"abus-go/internal/config"
)

// s3API is the subset of the S3 client used by S3Archive.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Archive reads an archive stored under a prefix of an S3 bucket, laid
// out like FileSystemArchive with object keys in place of paths.
type S3Archive struct {
	client s3API
	bucket string
	prefix string
}

var _ abus.ArchiveSource = (*S3Archive)(nil)

// NewS3Archive creates an S3Archive from configuration. Credentials come
// from the config when set and from the default AWS chain otherwise. A
// custom endpoint switches to path-style addressing for S3-compatible
// servers.
func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archive(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func newS3Archive(client s3API, bucket, prefix string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (a *S3Archive) key(dir, name string) string {
	return path.Join(a.prefix, dir, name)
}

func (a *S3Archive) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	key := a.key(dir, name)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("getting s3://%s/%s: %w", a.bucket, key, err)
	}
	return out.Body, nil
}

// Walk lists every object below the prefix. S3 returns keys in ascending
// UTF-8 order.
func (a *S3Archive) Walk(ctx context.Context, fn func(dir, name string) error) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(a.bucket)}
	if a.prefix != "" {
		input.Prefix = aws.String(a.prefix + "/")
	}

	pages := s3.NewListObjectsV2Paginator(a.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing s3://%s/%s: %w", a.bucket, a.prefix, err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), a.prefix)
			rel = strings.TrimPrefix(rel, "/")
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			dir, name := path.Split(rel)
			if err := fn(strings.TrimSuffix(dir, "/"), name); err != nil {
				return err
			}
		}
	}
	return nil
}
