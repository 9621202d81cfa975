// Package redis provides a Redis-backed confirmation request store. It is
// suitable for deployments where the API serving resolutions runs on a
// different host than the execution engine awaiting them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/runweave/runweave/pkg/models"
	"github.com/runweave/runweave/pkg/persistence"
)

const keyPrefix = "runweave:confirmations:"

// resolveScript applies a decision only when the request is still pending.
// Running it server-side makes first-writer-wins atomic across processes.
var resolveScript = redis.NewScript(`
	local raw = redis.call('GET', KEYS[1])
	if not raw then
		return {err = 'not_found'}
	end
	local request = cjson.decode(raw)
	if request['resolved_decision'] ~= cjson.null and request['resolved_decision'] ~= nil then
		return {0, raw}
	end
	request['resolved_decision'] = ARGV[1]
	request['source'] = ARGV[2]
	request['resolved_at'] = ARGV[3]
	local updated = cjson.encode(request)
	redis.call('SET', KEYS[1], updated, 'KEEPTTL')
	return {1, updated}
`)

// ConfirmationRepository implements persistence.ConfirmationRepository on
// Redis. Requests expire from the store after the retention period.
type ConfirmationRepository struct {
	client    redis.UniversalClient
	logger    *slog.Logger
	retention time.Duration
}

// NewConfirmationRepository connects to Redis and verifies the connection.
func NewConfirmationRepository(ctx context.Context, logger *slog.Logger, addr string, retention time.Duration) (*ConfirmationRepository, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	if retention <= 0 {
		retention = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", addr)

	return &ConfirmationRepository{
		client:    client,
		logger:    logger.With("module", "redis_confirmations"),
		retention: retention,
	}, nil
}

func (cr *ConfirmationRepository) Create(ctx context.Context, request *models.ConfirmationRequest) error {
	data, err := json.Marshal(request)
	if err != nil {
		return &persistence.ConfirmationError{Op: "Create", ConfirmID: request.ID, Err: err}
	}

	ok, err := cr.client.SetNX(ctx, keyPrefix+request.ID, data, cr.retention).Result()
	if err != nil {
		return &persistence.ConfirmationError{Op: "Create", ConfirmID: request.ID, Err: err}
	}

	if !ok {
		return &persistence.ConfirmationError{Op: "Create", ConfirmID: request.ID, Err: errors.New("confirmation request already exists")}
	}

	return nil
}

func (cr *ConfirmationRepository) GetByID(ctx context.Context, id string) (*models.ConfirmationRequest, error) {
	raw, err := cr.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &persistence.ConfirmationError{Op: "GetByID", ConfirmID: id, Err: persistence.ErrConfirmationNotFound}
		}

		return nil, &persistence.ConfirmationError{Op: "GetByID", ConfirmID: id, Err: err}
	}

	var request models.ConfirmationRequest

	err = json.Unmarshal(raw, &request)
	if err != nil {
		return nil, &persistence.ConfirmationError{Op: "GetByID", ConfirmID: id, Err: err}
	}

	return &request, nil
}

// Resolve records the decision unless another caller resolved the request
// first. The stored request is returned either way.
func (cr *ConfirmationRepository) Resolve(ctx context.Context, id string, decision models.Decision, source string) (*models.ConfirmationRequest, bool, error) {
	resolvedAt := time.Now().UTC().Format(time.RFC3339Nano)

	result, err := resolveScript.Run(ctx, cr.client,
		[]string{keyPrefix + id},
		string(decision), source, resolvedAt).Slice()
	if err != nil {
		if err.Error() == "not_found" {
			return nil, false, &persistence.ConfirmationError{Op: "Resolve", ConfirmID: id, Err: persistence.ErrConfirmationNotFound}
		}

		return nil, false, &persistence.ConfirmationError{Op: "Resolve", ConfirmID: id, Err: err}
	}

	if len(result) != 2 {
		return nil, false, &persistence.ConfirmationError{Op: "Resolve", ConfirmID: id, Err: fmt.Errorf("unexpected script result: %v", result)}
	}

	won, _ := result[0].(int64)
	raw, _ := result[1].(string)

	var request models.ConfirmationRequest

	err = json.Unmarshal([]byte(raw), &request)
	if err != nil {
		return nil, false, &persistence.ConfirmationError{Op: "Resolve", ConfirmID: id, Err: err}
	}

	return &request, won == 1, nil
}

// HealthCheck verifies the Redis connection.
func (cr *ConfirmationRepository) HealthCheck(ctx context.Context) error {
	return cr.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (cr *ConfirmationRepository) Close(_ context.Context) error {
	return cr.client.Close()
}
