package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"ledger/internal/repository/accounts_repo"
)

const DefaultTable = "Accounts"

// attrRequests is the string set of request ids applied to an item.
const attrRequests = "appliedRequests"

// API is the subset of the DynamoDB client used by AccountRepository.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// AccountRepository keeps one item per account, keyed by accountId.
type AccountRepository struct {
	api   API
	table string
}

func NewAccountRepository(api API, table string) *AccountRepository {
	if table == "" {
		table = DefaultTable
	}
	return &AccountRepository{api: api, table: table}
}

func (r *AccountRepository) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		accounts_repo.AttrAccountID: &types.AttributeValueMemberS{Value: key},
	}
}

func (r *AccountRepository) Get(ctx context.Context, key string) (accounts_repo.Attributes, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            r.itemKey(key),
		ConsistentRead: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, accounts_repo.ErrItemNotFound
	}
	attrs := fromItem(out.Item)
	delete(attrs, attrRequests)
	return attrs, nil
}

func (r *AccountRepository) Put(ctx context.Context, key string, attrs accounts_repo.Attributes, mode accounts_repo.PutMode) error {
	item, err := toItem(attrs)
	if err != nil {
		return fmt.Errorf("failed to put account %s: %w", key, err)
	}
	item[accounts_repo.AttrAccountID] = &types.AttributeValueMemberS{Value: key}

	in := &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}
	if mode == accounts_repo.PutIfAbsent {
		in.ConditionExpression = aws.String("attribute_not_exists(#pk)")
		in.ExpressionAttributeNames = map[string]string{"#pk": accounts_repo.AttrAccountID}
	}

	if _, err := r.api.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return accounts_repo.ErrConditionFailed
		}
		return fmt.Errorf("failed to put account %s: %w", key, err)
	}
	return nil
}

// Add issues a single conditional UpdateItem. The condition always requires
// the item to exist; on failure the old item is returned with the exception,
// which tells a missing item, an already applied request and a failed guard
// apart. A RequestID is added to the item's request set by the same update.
func (r *AccountRepository) Add(ctx context.Context, key string, in accounts_repo.AddInput) (accounts_repo.Attributes, error) {
	update := "SET #attr = #attr + :delta"
	condition := "attribute_exists(#pk)"
	names := map[string]string{
		"#pk":   accounts_repo.AttrAccountID,
		"#attr": in.Attribute,
	}
	values := map[string]types.AttributeValue{
		":delta": &types.AttributeValueMemberN{Value: in.Delta.String()},
	}
	if in.RequestID != "" {
		update += " ADD #req :req_set"
		condition += " AND NOT contains(#req, :req_id)"
		names["#req"] = attrRequests
		values[":req_set"] = &types.AttributeValueMemberSS{Value: []string{in.RequestID}}
		values[":req_id"] = &types.AttributeValueMemberS{Value: in.RequestID}
	}
	if in.Min != nil {
		condition += " AND #attr >= :min_bal"
		values[":min_bal"] = &types.AttributeValueMemberN{Value: in.Min.String()}
	}

	out, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.table),
		Key:                                 r.itemKey(key),
		UpdateExpression:                    aws.String(update),
		ConditionExpression:                 aws.String(condition),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueUpdatedNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			switch {
			case len(ccf.Item) == 0:
				return nil, accounts_repo.ErrItemNotFound
			case in.RequestID != "" && hasRequest(ccf.Item, in.RequestID):
				return nil, accounts_repo.ErrDuplicateRequest
			default:
				return nil, accounts_repo.ErrConditionFailed
			}
		}
		return nil, fmt.Errorf("failed to update %s of %s: %w", in.Attribute, key, err)
	}
	if out.Attributes == nil {
		return nil, nil
	}
	attrs := fromItem(out.Attributes)
	delete(attrs, attrRequests)
	return attrs, nil
}

func hasRequest(item map[string]types.AttributeValue, requestID string) bool {
	set, ok := item[attrRequests].(*types.AttributeValueMemberSS)
	if !ok {
		return false
	}
	for _, id := range set.Value {
		if id == requestID {
			return true
		}
	}
	return false
}

func toItem(attrs accounts_repo.Attributes) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(attrs)+1)
	for name, v := range attrs {
		switch val := v.(type) {
		case string:
			item[name] = &types.AttributeValueMemberS{Value: val}
		case accounts_repo.Number:
			item[name] = &types.AttributeValueMemberN{Value: string(val)}
		default:
			return nil, fmt.Errorf("unsupported attribute %s of type %T", name, v)
		}
	}
	return item, nil
}

// fromItem converts S and N values. Any other attribute type is passed
// through as is and reported as malformed when read.
func fromItem(item map[string]types.AttributeValue) accounts_repo.Attributes {
	attrs := make(accounts_repo.Attributes, len(item))
	for name, av := range item {
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			attrs[name] = v.Value
		case *types.AttributeValueMemberN:
			attrs[name] = accounts_repo.Number(v.Value)
		default:
			attrs[name] = av
		}
	}
	return attrs
}

var _ accounts_repo.AccountStore = (*AccountRepository)(nil)
