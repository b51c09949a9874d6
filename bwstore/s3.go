package bwstore

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/advdv/bworker"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cockroachdb/errors"
)

// S3API is the part of the S3 client the store uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores object state as S3 objects at "<prefix><object id>/<key>". It suits large values
// that are read as a whole.
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 inits the store for the bucket. Prefix is prepended to every object key.
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// Object returns the storage of the object with the given id.
func (s *S3) Object(id string) bworker.Storage {
	return &s3Object{s: s, base: s.prefix + id + "/"}
}

type s3Object struct {
	s    *S3
	base string
}

func (o *s3Object) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := o.s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.s.bucket),
		Key:    aws.String(o.base + key),
	})

	var nsk *types.NoSuchKey
	switch {
	case errors.As(err, &nsk):
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Wrap(err, "get object")
	}

	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, errors.Wrap(err, "read object body")
	}

	return data, true, nil
}

func (o *s3Object) Put(ctx context.Context, key string, value []byte) error {
	if _, err := o.s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(o.s.bucket),
		Key:           aws.String(o.base + key),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
		ContentType:   aws.String("application/octet-stream"),
	}); err != nil {
		return errors.Wrap(err, "put object")
	}

	return nil
}

func (o *s3Object) Delete(ctx context.Context, key string) error {
	if _, err := o.s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.s.bucket),
		Key:    aws.String(o.base + key),
	}); err != nil {
		return errors.Wrap(err, "delete object")
	}

	return nil
}

// List lists the object's keys and reads each value. Keys are returned in ascending byte order.
func (o *s3Object) List(ctx context.Context, prefix string) ([]bworker.Entry, error) {
	var entries []bworker.Entry

	pages := s3.NewListObjectsV2Paginator(o.s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.s.bucket),
		Prefix: aws.String(o.base + prefix),
	})

	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "list objects")
		}

		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), o.base)

			data, ok, err := o.Get(ctx, key)
			if err != nil {
				return nil, err
			} else if !ok {
				continue // deleted while listing
			}

			entries = append(entries, bworker.Entry{Key: key, Value: data})
		}
	}

	return entries, nil
}
