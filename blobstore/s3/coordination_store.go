package s3

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/soulcraft-research/brainy-sub005/blobstore"
)

// CoordinationStore layers DynamoDB over an S3 store for keys that need
// strong compare-and-swap semantics. Lock records and other small
// coordination objects live as DynamoDB items with conditional writes;
// bulk data stays in S3. Useful where S3 conditional puts are not
// available or where lock churn would be costly as S3 requests.
//
// Table schema:
//   - Partition key: base_uri (string) - logical store identity
//   - Sort key: object_key (string) - the coordination key
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name brainy-coordination \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=object_key,AttributeType=S \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=object_key,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CoordinationStore struct {
	bulk       blobstore.Store
	ddbClient  DDBClient
	tableName  string
	baseURI    string
	coorPrefix string
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// NewCoordinationStore creates a store that routes keys under
// coordinationPrefix (e.g. "locks/") to DynamoDB and everything else to
// bulk. baseURI identifies this store in the table, "s3://bucket/prefix"
// by convention.
func NewCoordinationStore(bulk blobstore.Store, ddbClient DDBClient, tableName, baseURI, coordinationPrefix string) *CoordinationStore {
	return &CoordinationStore{
		bulk:       bulk,
		ddbClient:  ddbClient,
		tableName:  tableName,
		baseURI:    baseURI,
		coorPrefix: coordinationPrefix,
	}
}

func (s *CoordinationStore) coordinated(key string) bool {
	return strings.HasPrefix(key, s.coorPrefix)
}

func (s *CoordinationStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"base_uri":   &types.AttributeValueMemberS{Value: s.baseURI},
		"object_key": &types.AttributeValueMemberS{Value: key},
	}
}

// Get reads the full object stored under key.
func (s *CoordinationStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.coordinated(key) {
		return s.bulk.Get(ctx, key)
	}

	resp, err := s.ddbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if resp.Item == nil {
		return nil, blobstore.ErrNotFound
	}
	value, ok := resp.Item["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New("invalid value attribute in DynamoDB")
	}
	return value.Value, nil
}

// Put writes an object, replacing any existing value.
func (s *CoordinationStore) Put(ctx context.Context, key string, data []byte) error {
	if !s.coordinated(key) {
		return s.bulk.Put(ctx, key, data)
	}

	item := s.itemKey(key)
	item["value"] = &types.AttributeValueMemberB{Value: data}
	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return err
}

// PutIfAbsent writes an object only if the key does not exist yet. For
// coordination keys this is a DynamoDB conditional write, which is
// atomic across all writers of the table.
func (s *CoordinationStore) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	if !s.coordinated(key) {
		return s.bulk.PutIfAbsent(ctx, key, data)
	}

	item := s.itemKey(key)
	item["value"] = &types.AttributeValueMemberB{Value: data}
	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(object_key)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return blobstore.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Delete removes an object.
func (s *CoordinationStore) Delete(ctx context.Context, key string) error {
	if !s.coordinated(key) {
		return s.bulk.Delete(ctx, key)
	}

	_, err := s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(key),
	})
	return err
}

// CompareAndDelete removes an object only while its stored value still
// equals expected. For coordination keys this is a DynamoDB conditional
// delete, which is atomic across all writers of the table.
func (s *CoordinationStore) CompareAndDelete(ctx context.Context, key string, expected []byte) error {
	if !s.coordinated(key) {
		return s.bulk.CompareAndDelete(ctx, key, expected)
	}

	_, err := s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 s.itemKey(key),
		ConditionExpression: aws.String("#v = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#v": "value",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberB{Value: expected},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return blobstore.ErrPreconditionFailed
		}
		return err
	}
	return nil
}

// List returns the keys under prefix in lexicographic order, merging
// both backends when the prefix spans them.
func (s *CoordinationStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	if !s.coordinated(prefix) {
		bulkKeys, err := s.bulk.List(ctx, prefix)
		if err != nil {
			return nil, err
		}
		keys = append(keys, bulkKeys...)
	}

	if strings.HasPrefix(prefix, s.coorPrefix) || strings.HasPrefix(s.coorPrefix, prefix) {
		queryPrefix := prefix
		if len(s.coorPrefix) > len(prefix) {
			queryPrefix = s.coorPrefix
		}
		resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("base_uri = :uri AND begins_with(object_key, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uri":    &types.AttributeValueMemberS{Value: s.baseURI},
				":prefix": &types.AttributeValueMemberS{Value: queryPrefix},
			},
		})
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			if keyAttr, ok := item["object_key"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, keyAttr.Value)
			}
		}
	}

	sort.Strings(keys)
	return keys, nil
}
