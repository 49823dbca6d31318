package watermark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	keyAttr   = "entity"
	valueAttr = "watermark"
)

// DynamoDBAPI is the subset of the DynamoDB client used here.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var _ DynamoDBAPI = (*dynamodb.Client)(nil)

// DynamoDB stores one item per entity: {entity: S, watermark: S}.
type DynamoDB struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoDB creates a Store on the given table.
func NewDynamoDB(client DynamoDBAPI, table string) *DynamoDB {
	return &DynamoDB{client: client, table: table}
}

func (d *DynamoDB) Get(ctx context.Context, entity string) (string, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{keyAttr: &types.AttributeValueMemberS{Value: entity}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("dynamodb get %s/%s: %w", d.table, entity, err)
	}
	if out.Item == nil {
		return "", false, nil
	}
	v, ok := out.Item[valueAttr].(*types.AttributeValueMemberS)
	if !ok || v.Value == "" {
		return "", false, nil
	}
	return v.Value, true, nil
}

// Set writes ts with a condition that the stored value is absent or lower.
// Losing that condition means another run already advanced further, which
// is not an error.
func (d *DynamoDB) Set(ctx context.Context, entity, ts string) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			keyAttr:   &types.AttributeValueMemberS{Value: entity},
			valueAttr: &types.AttributeValueMemberS{Value: ts},
		},
		ConditionExpression:      aws.String("attribute_not_exists(#w) OR #w < :w"),
		ExpressionAttributeNames: map[string]string{"#w": valueAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":w": &types.AttributeValueMemberS{Value: ts},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		slog.Warn("watermark not advanced, stored value is newer", "entity", entity, "watermark", ts)
		return nil
	}
	if err != nil {
		return fmt.Errorf("dynamodb put %s/%s: %w", d.table, entity, err)
	}
	return nil
}
