package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
)

const DefaultKeyPrefix = "account:"

// putIfAbsent writes all fields of a hash only when the key does not exist yet.
var putIfAbsent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// numericAttrs lists the hash fields decoded as numbers. Every other field is
// a plain string.
var numericAttrs = map[string]bool{
	accounts_repo.AttrBalance: true,
}

// AccountRepository stores each account as a hash. Arithmetic is done in Go
// on exact decimals inside a WATCH/MULTI transaction, which is retried when a
// concurrent writer touches the same key.
type AccountRepository struct {
	client      redis.UniversalClient
	prefix      string
	maxAttempts int
	logger      *zap.Logger
}

func NewAccountRepository(client redis.UniversalClient, prefix string, maxAttempts int, logger *zap.Logger) *AccountRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &AccountRepository{
		client:      client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (r *AccountRepository) key(key string) string {
	return r.prefix + key
}

// requestsKey names the set of request ids applied to key.
func (r *AccountRepository) requestsKey(key string) string {
	return r.prefix + key + ":requests"
}

func (r *AccountRepository) Get(ctx context.Context, key string) (accounts_repo.Attributes, error) {
	fields, err := r.client.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, accounts_repo.ErrItemNotFound
	}
	return decode(fields), nil
}

func (r *AccountRepository) Put(ctx context.Context, key string, attrs accounts_repo.Attributes, mode accounts_repo.PutMode) error {
	args, err := encode(attrs)
	if err != nil {
		return fmt.Errorf("failed to put account %s: %w", key, err)
	}
	k := r.key(key)

	if mode == accounts_repo.PutIfAbsent {
		written, err := putIfAbsent.Run(ctx, r.client, []string{k}, args...).Int()
		if err != nil {
			return fmt.Errorf("failed to put account %s: %w", key, err)
		}
		if written == 0 {
			return accounts_repo.ErrConditionFailed
		}
		return nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, args...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put account %s: %w", key, err)
	}
	return nil
}

func (r *AccountRepository) Add(ctx context.Context, key string, in accounts_repo.AddInput) (accounts_repo.Attributes, error) {
	k := r.key(key)
	rk := r.requestsKey(key)
	var updated string

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return accounts_repo.ErrItemNotFound
		}
		if in.RequestID != "" {
			done, err := tx.SIsMember(ctx, rk, in.RequestID).Result()
			if err != nil {
				return err
			}
			if done {
				return accounts_repo.ErrDuplicateRequest
			}
		}

		current := domain.Amount{}
		if raw, ok := fields[in.Attribute]; ok {
			current, err = domain.ParseStoredAmount(raw)
			if err != nil {
				return fmt.Errorf("%s holds malformed number %q", in.Attribute, raw)
			}
		}
		if in.Min != nil && current.Cmp(*in.Min) < 0 {
			return accounts_repo.ErrConditionFailed
		}

		updated = current.Add(in.Delta).String()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, in.Attribute, updated)
			if in.RequestID != "" {
				pipe.SAdd(ctx, rk, in.RequestID)
			}
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, k, rk)
		if err == nil {
			return accounts_repo.Attributes{in.Attribute: accounts_repo.Number(updated)}, nil
		}
		if errors.Is(err, accounts_repo.ErrItemNotFound) ||
			errors.Is(err, accounts_repo.ErrConditionFailed) ||
			errors.Is(err, accounts_repo.ErrDuplicateRequest) {
			return nil, err
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("failed to update %s of %s: %w", in.Attribute, key, err)
		}
		r.logger.Debug("Optimistic transaction conflict, retrying",
			zap.String("key", key), zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("failed to update %s of %s: gave up after %d conflicting attempts", in.Attribute, key, r.maxAttempts)
}

func encode(attrs accounts_repo.Attributes) ([]any, error) {
	args := make([]any, 0, len(attrs)*2)
	for name, v := range attrs {
		switch val := v.(type) {
		case string:
			args = append(args, name, val)
		case accounts_repo.Number:
			args = append(args, name, string(val))
		default:
			return nil, fmt.Errorf("unsupported attribute %s of type %T", name, v)
		}
	}
	if len(args) == 0 {
		return nil, errors.New("no attributes to store")
	}
	return args, nil
}

func decode(fields map[string]string) accounts_repo.Attributes {
	attrs := make(accounts_repo.Attributes, len(fields))
	for name, v := range fields {
		if numericAttrs[name] {
			attrs[name] = accounts_repo.Number(v)
			continue
		}
		attrs[name] = v
	}
	return attrs
}

var _ accounts_repo.AccountStore = (*AccountRepository)(nil)
