package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store over a single Redis instance, for deployments
// that already run Redis for other agents (spec.md §6 allows "any
// transactional KV or SQL engine" as the backing store).
//
// Layout:
//   - entries are a Redis LIST at "conductor:mem:{workflowID}:{agentName}",
//     one JSON-free "seq\x00kind\x00createdAtUnixNano\x00content" string per
//     RPUSH — seq is the list's length (LLEN) plus one, read under a
//     process-local per-key mutex; the RPUSH then runs in a MULTI/EXEC
//     pipeline. The key is not WATCHed, so appends from other processes to
//     the same list are not serialized against it.
//   - artifacts are a Redis HASH at "conductor:art:{workflowID}", field=key.
//   - a workflow's agent names are tracked in a Redis SET at
//     "conductor:agents:{workflowID}" so Snapshot can enumerate without a
//     KEYS scan.
//   - Expire is approximated via each entry's embedded timestamp: Redis has
//     no native "delete older than X" range query on a list, so Expire scans
//     and rewrites each tracked workflow's lists. This backend is meant for
//     small/medium retention windows; the SQL backend's indexed DELETE is
//     the better fit for large archives.
type RedisStore struct {
	client *redis.Client

	mu       sync.Mutex
	seqLocks map[string]*sync.Mutex
}

// NewRedisStore wraps an already-configured *redis.Client. The caller owns
// connection options (TLS, auth, pool size); this package only issues
// commands.
func NewRedisStore(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("memory: redis client is required")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("memory: redis ping: %w", err)
	}
	return &RedisStore{client: client, seqLocks: make(map[string]*sync.Mutex)}, nil
}

func entriesKey(workflowID, agentName string) string {
	return "conductor:mem:" + workflowID + ":" + agentName
}

func agentsKey(workflowID string) string {
	return "conductor:agents:" + workflowID
}

func artifactsKey(workflowID string) string {
	return "conductor:art:" + workflowID
}

func (s *RedisStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.seqLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.seqLocks[key] = m
	}
	return m
}

func encodeEntry(e Entry) string {
	return strconv.FormatUint(e.Seq, 10) + "\x00" + string(e.Kind) + "\x00" +
		strconv.FormatInt(e.CreatedAt.UnixNano(), 10) + "\x00" + e.Content
}

func decodeEntry(workflowID, agentName, raw string) (Entry, error) {
	parts := strings.SplitN(raw, "\x00", 4)
	if len(parts) != 4 {
		return Entry{}, fmt.Errorf("memory: malformed redis entry record")
	}
	seq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("memory: malformed seq: %w", err)
	}
	nanos, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("memory: malformed timestamp: %w", err)
	}
	return Entry{
		WorkflowID: workflowID,
		AgentName:  agentName,
		Seq:        seq,
		Kind:       EntryKind(parts[1]),
		Content:    parts[3],
		CreatedAt:  time.Unix(0, nanos).UTC(),
	}, nil
}

// Append uses the list length plus one as the next seq. LLEN and the
// following MULTI/EXEC pipeline (RPUSH plus the agent-set SADD) run under a
// process-local lock keyed by workflowID+agentName; LLEN itself is not part
// of the pipeline.
func (s *RedisStore) Append(ctx context.Context, workflowID, agentName string, kind EntryKind, content string) (uint64, error) {
	if workflowID == "" || agentName == "" {
		return 0, fmt.Errorf("memory: workflowID and agentName are required")
	}
	key := entriesKey(workflowID, agentName)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	length, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("memory: llen: %w", err)
	}
	seq := uint64(length) + 1
	entry := Entry{Seq: seq, Kind: kind, Content: content, CreatedAt: time.Now().UTC()}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, encodeEntry(entry))
	pipe.SAdd(ctx, agentsKey(workflowID), agentName)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("memory: append tx: %w", err)
	}
	return seq, nil
}

func (s *RedisStore) readAll(ctx context.Context, workflowID, agentName string) ([]Entry, error) {
	raws, err := s.client.LRange(ctx, entriesKey(workflowID, agentName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: lrange: %w", err)
	}
	entries := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeEntry(workflowID, agentName, raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Read(ctx context.Context, workflowID, agentName string, lastN int) ([]Entry, error) {
	entries, err := s.readAll(ctx, workflowID, agentName)
	if err != nil {
		return nil, err
	}
	if lastN > 0 && len(entries) > lastN {
		entries = entries[len(entries)-lastN:]
	}
	return entries, nil
}

func (s *RedisStore) ReadBudgeted(ctx context.Context, workflowID, agentName string, lastN, maxTokens int) ([]Entry, error) {
	entries, err := s.Read(ctx, workflowID, agentName, lastN)
	if err != nil {
		return nil, err
	}
	if maxTokens <= 0 || len(entries) == 0 {
		return entries, nil
	}
	return trimToTokenBudget(entries, maxTokens)
}

func (s *RedisStore) PutArtifact(ctx context.Context, workflowID, key, value string) error {
	if workflowID == "" || key == "" {
		return fmt.Errorf("memory: workflowID and key are required")
	}
	if err := s.client.HSet(ctx, artifactsKey(workflowID), key, value).Err(); err != nil {
		return fmt.Errorf("memory: hset artifact: %w", err)
	}
	return nil
}

func (s *RedisStore) GetArtifact(ctx context.Context, workflowID, key string) (string, bool, error) {
	value, err := s.client.HGet(ctx, artifactsKey(workflowID), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("memory: hget artifact: %w", err)
	}
	return value, true, nil
}

func (s *RedisStore) Snapshot(ctx context.Context, workflowID string) ([]Entry, error) {
	agents, err := s.client.SMembers(ctx, agentsKey(workflowID)).Result()
	if err != nil {
		return nil, fmt.Errorf("memory: smembers agents: %w", err)
	}
	var all []Entry
	for _, agentName := range agents {
		entries, err := s.readAll(ctx, workflowID, agentName)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].AgentName != all[j].AgentName {
			return all[i].AgentName < all[j].AgentName
		}
		return all[i].Seq < all[j].Seq
	})
	return all, nil
}

// Expire rewrites each tracked workflow's entry lists, dropping entries
// older than olderThan. Artifacts carry no per-field timestamp in the hash
// representation, so artifact expiry is not supported by this backend
// (documented limitation; the SQL backend should be used when artifact
// retention sweeps matter).
func (s *RedisStore) Expire(ctx context.Context, olderThan time.Time) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "conductor:agents:*", 100).Result()
		if err != nil {
			return fmt.Errorf("memory: scan workflows: %w", err)
		}
		for _, agentsK := range keys {
			workflowID := strings.TrimPrefix(agentsK, "conductor:agents:")
			agents, err := s.client.SMembers(ctx, agentsK).Result()
			if err != nil {
				return fmt.Errorf("memory: smembers during expire: %w", err)
			}
			for _, agentName := range agents {
				if err := s.expireAgentLog(ctx, workflowID, agentName, olderThan); err != nil {
					return err
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (s *RedisStore) expireAgentLog(ctx context.Context, workflowID, agentName string, olderThan time.Time) error {
	key := entriesKey(workflowID, agentName)
	entries, err := s.readAll(ctx, workflowID, agentName)
	if err != nil {
		return err
	}
	kept := entries[:0:0]
	for _, e := range entries {
		if !e.CreatedAt.Before(olderThan) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		raws := make([]interface{}, 0, len(kept))
		for _, e := range kept {
			raws = append(raws, encodeEntry(e))
		}
		pipe.RPush(ctx, key, raws...)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("memory: rewrite expired log: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
