package bwstore_test

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/samber/lo"
)

const fakePageSize = 2

// fakeDynamo emulates a table keyed by "pk" and "sk" and pages query results.
type fakeDynamo struct {
	mu      sync.Mutex
	items   map[string]map[string][]byte
	queries int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string][]byte{}}
}

func attrS(item map[string]dynamotypes.AttributeValue, name string) string {
	if v, ok := item[name].(*dynamotypes.AttributeValueMemberS); ok {
		return v.Value
	}

	return ""
}

func (f *fakeDynamo) GetItem(
	_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk, sk := attrS(in.Key, "pk"), attrS(in.Key, "sk")

	v, ok := f.items[pk][sk]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}

	return &dynamodb.GetItemOutput{Item: map[string]dynamotypes.AttributeValue{
		"pk": &dynamotypes.AttributeValueMemberS{Value: pk},
		"sk": &dynamotypes.AttributeValueMemberS{Value: sk},
		"v":  &dynamotypes.AttributeValueMemberB{Value: bytes.Clone(v)},
	}}, nil
}

func (f *fakeDynamo) PutItem(
	_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk, sk := attrS(in.Item, "pk"), attrS(in.Item, "sk")
	if f.items[pk] == nil {
		f.items[pk] = map[string][]byte{}
	}

	f.items[pk][sk] = bytes.Clone(in.Item["v"].(*dynamotypes.AttributeValueMemberB).Value)

	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(
	_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.items[attrS(in.Key, "pk")], attrS(in.Key, "sk"))

	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(
	_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options),
) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries++

	pk, prefix := attrS(in.ExpressionAttributeValues, ":pk"), attrS(in.ExpressionAttributeValues, ":prefix")
	after := attrS(in.ExclusiveStartKey, "sk")

	keys := lo.Filter(lo.Keys(f.items[pk]), func(k string, _ int) bool {
		return strings.HasPrefix(k, prefix) && (after == "" || k > after)
	})
	slices.Sort(keys)

	out := &dynamodb.QueryOutput{}
	for i, k := range keys {
		if i == fakePageSize {
			out.LastEvaluatedKey = map[string]dynamotypes.AttributeValue{
				"pk": &dynamotypes.AttributeValueMemberS{Value: pk},
				"sk": &dynamotypes.AttributeValueMemberS{Value: keys[i-1]},
			}

			break
		}

		out.Items = append(out.Items, map[string]dynamotypes.AttributeValue{
			"pk": &dynamotypes.AttributeValueMemberS{Value: pk},
			"sk": &dynamotypes.AttributeValueMemberS{Value: k},
			"v":  &dynamotypes.AttributeValueMemberB{Value: bytes.Clone(f.items[pk][k])},
		})
	}

	return out, nil
}

// fakeS3 emulates a bucket and pages listings.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	lists   int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(
	_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("not found")}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(bytes.Clone(v)))}, nil
}

func (f *fakeS3) PutObject(
	_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.objects[aws.ToString(in.Key)] = data

	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(
	_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, aws.ToString(in.Key))

	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(
	_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lists++

	prefix, after := aws.ToString(in.Prefix), aws.ToString(in.ContinuationToken)
	keys := lo.Filter(lo.Keys(f.objects), func(k string, _ int) bool {
		return strings.HasPrefix(k, prefix) && (after == "" || k > after)
	})
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(len(keys) > fakePageSize)}
	for _, k := range lo.Slice(keys, 0, fakePageSize) {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}

	if aws.ToBool(out.IsTruncated) {
		out.NextContinuationToken = aws.String(keys[fakePageSize-1])
	}

	return out, nil
}
