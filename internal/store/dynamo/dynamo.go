// Package dynamo implements the keyed item store on DynamoDB. Zone-scoped
// reads go through a GSI on the zone attribute, falling back to a filtered
// scan when the index is absent.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/domain"
	"github.com/Ezhumalai-castellanre/lppmrentals-sub001/internal/store"
	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// Client implements store.KeyValue over DynamoDB.
type Client struct {
	db        *dynamodb.Client
	zoneIndex string
	logger    *zap.Logger
}

// NewClient creates a DynamoDB-backed keyed store. zoneIndex names the GSI
// whose partition key is the zone attribute; pass "" to always scan.
func NewClient(db *dynamodb.Client, zoneIndex string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{db: db, zoneIndex: zoneIndex, logger: logger}
}

func (c *Client) Put(ctx context.Context, table store.Table, item domain.Item, expectedVersion int) error {
	av, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return appErrors.NewInternal("failed to marshal item", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(table.Name),
		Item:      av,
	}
	if expectedVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(#pk)")
		input.ExpressionAttributeNames = map[string]string{"#pk": table.PartitionKey}
	} else {
		input.ConditionExpression = aws.String("#ver = :ver")
		input.ExpressionAttributeNames = map[string]string{"#ver": domain.AttrVersion}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedVersion)},
		}
	}

	if _, err := c.db.PutItem(ctx, input); err != nil {
		return c.mapError(err, "failed to put item into "+table.Name)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, table store.Table, key store.Key) (domain.Item, error) {
	out, err := c.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table.Name),
		Key: map[string]types.AttributeValue{
			table.PartitionKey: &types.AttributeValueMemberS{Value: key[table.PartitionKey]},
			table.SortKey:      &types.AttributeValueMemberS{Value: key[table.SortKey]},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, c.mapError(err, "failed to get item from "+table.Name)
	}
	if out.Item == nil {
		return nil, appErrors.NewNotFound(fmt.Sprintf("item not found in %s", table.Name))
	}

	var item map[string]any
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, appErrors.NewInternal("failed to unmarshal item", err)
	}
	return domain.Item(item), nil
}

func (c *Client) QueryByZone(ctx context.Context, table store.Table, zone string) ([]domain.Item, error) {
	if c.zoneIndex != "" {
		items, err := c.queryZoneIndex(ctx, table, zone, nil)
		if err == nil {
			return items, nil
		}
		var vErr *types.ResourceNotFoundException
		if !errors.As(err, &vErr) {
			return nil, err
		}
		c.logger.Warn("zone index missing, falling back to scan",
			zap.String("table", table.Name),
			zap.String("index", c.zoneIndex),
		)
	}
	return c.scanZone(ctx, table, zone, nil)
}

func (c *Client) QueryByApplication(ctx context.Context, table store.Table, zone, appID string) ([]domain.Item, error) {
	filter := expression.Name(domain.AttrAppID).Equal(expression.Value(appID))
	if c.zoneIndex != "" {
		items, err := c.queryZoneIndex(ctx, table, zone, &filter)
		if err == nil {
			return items, nil
		}
		var vErr *types.ResourceNotFoundException
		if !errors.As(err, &vErr) {
			return nil, err
		}
	}
	return c.scanZone(ctx, table, zone, &filter)
}

func (c *Client) QueryByUserPrefix(ctx context.Context, table store.Table, zone, userID string) ([]domain.Item, error) {
	filter := expression.Name(table.PartitionKey).BeginsWith(userID)
	var items []domain.Item
	var err error
	if c.zoneIndex != "" {
		items, err = c.queryZoneIndex(ctx, table, zone, &filter)
		if err != nil {
			var vErr *types.ResourceNotFoundException
			if !errors.As(err, &vErr) {
				return nil, err
			}
			items, err = c.scanZone(ctx, table, zone, &filter)
		}
	} else {
		items, err = c.scanZone(ctx, table, zone, &filter)
	}
	if err != nil {
		return nil, err
	}

	// begins_with also matches unrelated ids sharing the prefix; keep only
	// the exact id and its numeric-suffix family.
	out := items[:0]
	for _, item := range items {
		id, _ := item[table.PartitionKey].(string)
		if id == userID || isNumericSuffix(id, userID) {
			out = append(out, item)
		}
	}
	return out, nil
}

func isNumericSuffix(id, userID string) bool {
	if len(id) <= len(userID) {
		return false
	}
	for _, r := range id[len(userID):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Client) queryZoneIndex(ctx context.Context, table store.Table, zone string, filter *expression.ConditionBuilder) ([]domain.Item, error) {
	builder := expression.NewBuilder().
		WithKeyCondition(expression.Key(domain.AttrZone).Equal(expression.Value(zone)))
	if filter != nil {
		builder = builder.WithFilter(*filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, appErrors.NewInternal("failed to build query expression", err)
	}

	var items []domain.Item
	paginator := dynamodb.NewQueryPaginator(c.db, &dynamodb.QueryInput{
		TableName:                 aws.String(table.Name),
		IndexName:                 aws.String(c.zoneIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var vErr *types.ResourceNotFoundException
			if errors.As(err, &vErr) {
				return nil, err
			}
			return nil, c.mapError(err, "failed to query zone index on "+table.Name)
		}
		items, err = appendItems(items, page.Items)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (c *Client) scanZone(ctx context.Context, table store.Table, zone string, filter *expression.ConditionBuilder) ([]domain.Item, error) {
	cond := expression.Name(domain.AttrZone).Equal(expression.Value(zone))
	if filter != nil {
		cond = cond.And(*filter)
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, appErrors.NewInternal("failed to build scan expression", err)
	}

	var items []domain.Item
	paginator := dynamodb.NewScanPaginator(c.db, &dynamodb.ScanInput{
		TableName:                 aws.String(table.Name),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, c.mapError(err, "failed to scan "+table.Name)
		}
		items, err = appendItems(items, page.Items)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func appendItems(items []domain.Item, raw []map[string]types.AttributeValue) ([]domain.Item, error) {
	for _, av := range raw {
		var item map[string]any
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, appErrors.NewInternal("failed to unmarshal item", err)
		}
		items = append(items, domain.Item(item))
	}
	return items, nil
}

func (c *Client) Delete(ctx context.Context, table store.Table, key store.Key) error {
	_, err := c.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table.Name),
		Key: map[string]types.AttributeValue{
			table.PartitionKey: &types.AttributeValueMemberS{Value: key[table.PartitionKey]},
			table.SortKey:      &types.AttributeValueMemberS{Value: key[table.SortKey]},
		},
	})
	if err != nil {
		return c.mapError(err, "failed to delete item from "+table.Name)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.db.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	if err != nil {
		return c.mapError(err, "keyed store unreachable")
	}
	return nil
}

// mapError translates SDK failures into the application error taxonomy.
func (c *Client) mapError(err error, message string) error {
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return appErrors.NewConflict(message, err)
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		// A missing table is a deployment problem, not a transient one.
		return appErrors.NewInternal(message+": table does not exist", err)
	}

	var throughput *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughput) {
		return appErrors.NewUnavailable(message, err)
	}
	var limited *types.RequestLimitExceeded
	if errors.As(err, &limited) {
		return appErrors.NewUnavailable(message, err)
	}

	if coded, ok := err.(interface{ ErrorCode() string }); ok {
		switch coded.ErrorCode() {
		case "ExpiredTokenException", "ExpiredToken", "UnrecognizedClientException":
			return appErrors.NewAuthExpired(message+": credentials rejected", err)
		case "ThrottlingException", "Throttling", "ServiceUnavailable", "RequestTimeout":
			return appErrors.NewUnavailable(message, err)
		}
	}

	return appErrors.NewInternal(message, err)
}
