package bwstore

import (
	"context"

	"github.com/advdv/bworker"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
)

// Attribute names of the items in the table.
const (
	AttrObjectID = "pk"
	AttrKey      = "sk"
	AttrValue    = "v"
)

// DynamoDBAPI is the part of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDB stores object state in a table with a string partition key "pk" holding the object
// id, a string sort key "sk" holding the key, and a binary attribute "v" holding the value.
type DynamoDB struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoDB inits the store for the given table.
func NewDynamoDB(client DynamoDBAPI, table string) *DynamoDB {
	return &DynamoDB{client: client, table: table}
}

// Object returns the storage of the object with the given id.
func (d *DynamoDB) Object(id string) bworker.Storage {
	return &dynamoObject{d: d, id: id}
}

type dynamoObject struct {
	d  *DynamoDB
	id string
}

func (o *dynamoObject) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrObjectID: &types.AttributeValueMemberS{Value: o.id},
		AttrKey:      &types.AttributeValueMemberS{Value: key},
	}
}

func (o *dynamoObject) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := o.d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(o.d.table),
		Key:            o.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "get item")
	}

	if len(out.Item) == 0 {
		return nil, false, nil
	}

	v, err := itemValue(out.Item)
	if err != nil {
		return nil, false, err
	}

	return v, true, nil
}

func (o *dynamoObject) Put(ctx context.Context, key string, value []byte) error {
	item := o.itemKey(key)
	item[AttrValue] = &types.AttributeValueMemberB{Value: value}

	if _, err := o.d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(o.d.table),
		Item:      item,
	}); err != nil {
		return errors.Wrap(err, "put item")
	}

	return nil
}

func (o *dynamoObject) Delete(ctx context.Context, key string) error {
	if _, err := o.d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(o.d.table),
		Key:       o.itemKey(key),
	}); err != nil {
		return errors.Wrap(err, "delete item")
	}

	return nil
}

// List queries the object's partition. Sort keys are returned in ascending byte order.
func (o *dynamoObject) List(ctx context.Context, prefix string) ([]bworker.Entry, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(o.d.table),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrObjectID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: o.id},
		},
	}

	// empty strings are not allowed in key conditions
	if prefix != "" {
		in.KeyConditionExpression = aws.String("#pk = :pk AND begins_with(#sk, :prefix)")
		in.ExpressionAttributeNames["#sk"] = AttrKey
		in.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: prefix}
	}

	var entries []bworker.Entry

	pages := dynamodb.NewQueryPaginator(o.d.client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "query")
		}

		for _, item := range page.Items {
			key, ok := item[AttrKey].(*types.AttributeValueMemberS)
			if !ok {
				return nil, errors.Newf("item without string attribute %q", AttrKey)
			}

			v, err := itemValue(item)
			if err != nil {
				return nil, err
			}

			entries = append(entries, bworker.Entry{Key: key.Value, Value: v})
		}
	}

	return entries, nil
}

func itemValue(item map[string]types.AttributeValue) ([]byte, error) {
	switch v := item[AttrValue].(type) {
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case nil:
		return []byte{}, nil
	default:
		return nil, errors.Newf("attribute %q is not binary, got: %T", AttrValue, v)
	}
}
