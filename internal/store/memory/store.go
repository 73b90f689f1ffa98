// Package memory stores recent conversation turns per session in Redis and
// scores them against the current query by token overlap. Session memory is
// best-effort context: an empty session or an unreachable Redis never fails a
// query, it only removes this source from fusion.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stratumhq/stratum/internal/model"
	"github.com/stratumhq/stratum/internal/text"
)

// maxTurns caps how many turns are kept per session.
const maxTurns = 50

// Turn is one recorded conversation exchange.
type Turn struct {
	ID        string    `json:"turn_id"`
	SessionID string    `json:"session_id"`
	Namespace string    `json:"namespace"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	TurnTTL  time.Duration
}

func NewStore(cfg Config, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{client: client, ttl: cfg.TurnTTL, logger: logger}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// HealthCheck reports store reachability.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("memory store: %w: %v", model.ErrBackendUnavailable, err)
	}
	return nil
}

func sessionKey(namespace, sessionID string) string {
	return "memory:" + namespace + ":" + sessionID
}

// AppendTurn records a turn at the head of the session list, trims to the cap
// and refreshes the TTL.
func (s *Store) AppendTurn(ctx context.Context, turn Turn) error {
	if turn.Namespace == "" {
		return model.SchemaViolationf("memory turn %s has no namespace", turn.ID)
	}
	if turn.SessionID == "" {
		return model.SchemaViolationf("memory turn %s has no session", turn.ID)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := sessionKey(turn.Namespace, turn.SessionID)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxTurns-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("memory store: %w: %v", model.ErrBackendUnavailable, err)
	}
	return nil
}

// Search scores the session's recorded turns against the query by token
// overlap and returns the top k as scored chunks. A missing session yields an
// empty result, not an error.
func (s *Store) Search(ctx context.Context, query, namespace, sessionID string, topK int) ([]model.ScoredChunk, error) {
	if sessionID == "" {
		return nil, nil
	}

	key := sessionKey(namespace, sessionID)
	raw, err := s.client.LRange(ctx, key, 0, maxTurns-1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("memory store: %w: %v", model.ErrBackendUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	queryTokens := text.TokenSet(query)
	if queryTokens.Cardinality() == 0 {
		return nil, nil
	}

	results := make([]model.ScoredChunk, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			s.logger.WithError(err).Warn("Skipping unreadable memory turn")
			continue
		}
		turnTokens := text.TokenSet(turn.Text)
		if turnTokens.Cardinality() == 0 {
			continue
		}
		overlap := queryTokens.Intersect(turnTokens).Cardinality()
		if overlap == 0 {
			continue
		}
		score := float64(overlap) / float64(queryTokens.Cardinality())
		results = append(results, model.ScoredChunk{
			Chunk: model.Chunk{
				ID:         turn.ID,
				DocumentID: "session:" + turn.SessionID,
				Namespace:  turn.Namespace,
				Text:       turn.Text,
			},
			Score: score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
