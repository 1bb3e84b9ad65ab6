package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "carta:session:"

	// SessionCounterKey holds the last session ID handed out across all
	// relay nodes.
	SessionCounterKey = "carta:session_counter"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour
)

// Session is a frontend session as stored in Redis.
type Session struct {
	ID         uint32 `redis:"id"`
	Node       string `redis:"node"`        // relay node holding the WebSocket
	RemoteAddr string `redis:"remote_addr"` // frontend address
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
	Actions    int64  `redis:"actions"`     // actions relayed so far
}

// Store manages session state in Redis.
type Store struct {
	client   *redis.Client
	nodeName string
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string, nodeName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return NewStoreWithClient(client, nodeName), nil
}

// NewStoreWithClient wraps an existing Redis client.
func NewStoreWithClient(client *redis.Client, nodeName string) *Store {
	return &Store{client: client, nodeName: nodeName}
}

// NodeName returns the relay node this store registers sessions for.
func (s *Store) NodeName() string {
	return s.nodeName
}

func key(sessionID uint32) string {
	return SessionPrefix + strconv.FormatUint(uint64(sessionID), 10)
}

// NextID allocates a session ID that is unique across every relay node
// sharing this Redis instance.
func (s *Store) NextID(ctx context.Context) (uint32, error) {
	n, err := s.client.Incr(ctx, SessionCounterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("session: allocate id: %w", err)
	}
	// Zero is never a valid session ID.
	id := uint32(n)
	if id == 0 {
		return s.NextID(ctx)
	}
	return id, nil
}

// Create registers a session owned by this node with a 1h TTL.
func (s *Store) Create(ctx context.Context, sessionID uint32, remoteAddr string) error {
	k := key(sessionID)
	now := time.Now().Unix()

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, k, map[string]interface{}{
		"id":          sessionID,
		"node":        s.nodeName,
		"remote_addr": remoteAddr,
		"created_at":  now,
		"last_active": now,
		"actions":     0,
	})
	pipe.Expire(ctx, k, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID uint32) (*Session, error) {
	var session Session
	if err := s.client.HGetAll(ctx, key(sessionID)).Scan(&session); err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil // not found
	}
	return &session, nil
}

// Touch records one relayed action and refreshes the TTL.
func (s *Store) Touch(ctx context.Context, sessionID uint32) error {
	k := key(sessionID)
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, k, "actions", 1)
	pipe.HSet(ctx, k, "last_active", time.Now().Unix())
	pipe.Expire(ctx, k, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RefreshTTL extends the session's TTL.
func (s *Store) RefreshTTL(ctx context.Context, sessionID uint32) error {
	return s.client.Expire(ctx, key(sessionID), SessionTTL).Err()
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, sessionID uint32) error {
	return s.client.Del(ctx, key(sessionID)).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
