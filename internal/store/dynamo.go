package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mcpgate/pkg/logging"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoConfig holds the settings for a DynamoDB-backed store.
type DynamoConfig struct {
	TableName string
	Region    string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string
}

// DynamoStore persists server records in a DynamoDB table with partition key
// ServerId and sort key UserId.
type DynamoStore struct {
	api       DynamoAPI
	tableName string
}

// NewDynamoStore wraps an existing DynamoDB client.
func NewDynamoStore(api DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{api: api, tableName: tableName}
}

// NewDynamoStoreFromConfig loads the default AWS configuration and creates a store.
func NewDynamoStoreFromConfig(ctx context.Context, cfg DynamoConfig) (*DynamoStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logging.Info("ServerStore", "Using DynamoDB table %s in %s", cfg.TableName, cfg.Region)
	return NewDynamoStore(client, cfg.TableName), nil
}

func (s *DynamoStore) key(serverID, userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ServerId": &types.AttributeValueMemberS{Value: serverID},
		"UserId":   &types.AttributeValueMemberS{Value: userID},
	}
}

func (s *DynamoStore) Get(ctx context.Context, serverID, userID string) (*ServerRecord, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(serverID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get server record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: server %s user %s", ErrNotFound, serverID, userID)
	}

	var rec ServerRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server record: %w", err)
	}
	return &rec, nil
}

func (s *DynamoStore) Put(ctx context.Context, record *ServerRecord) error {
	if record == nil || record.ID == "" || record.UserID == "" {
		return fmt.Errorf("record requires id and userId")
	}
	rec := record.Clone()
	if rec.AuthStatus == "" {
		rec.AuthStatus = AuthStatusUnknown
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal server record: %w", err)
	}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to put server record: %w", err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, serverID, userID string, update Update) error {
	if update.IsEmpty() {
		return nil
	}

	expr, err := buildUpdateExpression(update)
	if err != nil {
		return err
	}

	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(serverID, userID),
		UpdateExpression:          aws.String(expr.expression),
		ConditionExpression:       aws.String("attribute_exists(ServerId)"),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: server %s user %s", ErrNotFound, serverID, userID)
		}
		return fmt.Errorf("failed to update server record: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, serverID, userID string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.key(serverID, userID),
		ConditionExpression: aws.String("attribute_exists(ServerId)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: server %s user %s", ErrNotFound, serverID, userID)
		}
		return fmt.Errorf("failed to delete server record: %w", err)
	}
	return nil
}

type updateExpression struct {
	expression string
	names      map[string]string
	values     map[string]types.AttributeValue
}

// buildUpdateExpression turns a partial Update into a SET/REMOVE expression.
// Only fields present in the update are touched.
func buildUpdateExpression(u Update) (*updateExpression, error) {
	set := map[string]interface{}{}
	var remove []string

	if u.Enabled != nil {
		set["Enabled"] = *u.Enabled
	}
	if u.AuthStatus != nil {
		set["AuthStatus"] = string(*u.AuthStatus)
	}
	if u.ClientID != nil {
		if *u.ClientID == "" {
			remove = append(remove, "ClientId")
		} else {
			set["ClientId"] = *u.ClientID
		}
	}

	if u.ClearTokens {
		remove = append(remove, "AccessToken", "RefreshToken", "TokenExpiresAt")
	} else {
		for attr, v := range map[string]*string{"AccessToken": u.AccessToken, "RefreshToken": u.RefreshToken} {
			if v == nil {
				continue
			}
			if *v == "" {
				remove = append(remove, attr)
			} else {
				set[attr] = *v
			}
		}
		if u.TokenExpiresAt != nil {
			set["TokenExpiresAt"] = *u.TokenExpiresAt
		} else if u.ClearExpiry {
			remove = append(remove, "TokenExpiresAt")
		}
	}

	expr := &updateExpression{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}

	setAttrs := make([]string, 0, len(set))
	for attr := range set {
		setAttrs = append(setAttrs, attr)
	}
	sort.Strings(setAttrs)
	sort.Strings(remove)

	var clauses []string
	if len(setAttrs) > 0 {
		parts := make([]string, 0, len(setAttrs))
		for _, attr := range setAttrs {
			av, err := attributevalue.Marshal(set[attr])
			if err != nil {
				return nil, fmt.Errorf("failed to marshal %s: %w", attr, err)
			}
			expr.names["#"+attr] = attr
			expr.values[":"+attr] = av
			parts = append(parts, fmt.Sprintf("#%s = :%s", attr, attr))
		}
		clauses = append(clauses, "SET "+strings.Join(parts, ", "))
	}
	if len(remove) > 0 {
		parts := make([]string, 0, len(remove))
		for _, attr := range remove {
			expr.names["#"+attr] = attr
			parts = append(parts, "#"+attr)
		}
		clauses = append(clauses, "REMOVE "+strings.Join(parts, ", "))
	}

	expr.expression = strings.Join(clauses, " ")
	if len(expr.values) == 0 {
		expr.values = nil
	}
	return expr, nil
}
