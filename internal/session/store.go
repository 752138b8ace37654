// Package session keeps live tracking-session state in Redis so a host can
// observe or resume a run. The tracker itself stays single-writer; the store
// is a mirror of accepted state, guarded by optimistic WATCH transactions
// against concurrent writers misusing the same session id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chesslens/chesslens/internal/obslog"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
	StatusAborted  Status = "ABORTED"
)

// FrameOutcome labels what one processed frame contributed.
type FrameOutcome string

const (
	OutcomeMove       FrameOutcome = "move"
	OutcomeNoChange   FrameOutcome = "no_change"
	OutcomeRejected   FrameOutcome = "rejected"
	OutcomeUnresolved FrameOutcome = "unresolved"
)

// State is the persisted view of one tracking session.
type State struct {
	ID         string    `json:"id"`
	InitialFEN string    `json:"initial_fen"`
	MovesUCI   []string  `json:"moves_uci"`
	Frames     int       `json:"frames"`
	Rejected   int       `json:"rejected"`
	Unresolved int       `json:"unresolved"`
	Status     Status    `json:"status"`
	Result     string    `json:"result,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var (
	ErrNotFound  = errors.New("session: not found")
	ErrNotActive = errors.New("session: not active")
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(redisURL string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for session store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Create opens a new session from the initial position.
func (s *Store) Create(ctx context.Context, initialFEN string) (*State, error) {
	now := time.Now()
	st := &State{
		ID:         uuid.NewString(),
		InitialFEN: initialFEN,
		MovesUCI:   []string{},
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.save(ctx, st); err != nil {
		return nil, err
	}
	obslog.L().Info("session_create",
		zap.String("session_id", st.ID),
		zap.String("initial_fen", st.InitialFEN),
	)
	return st, nil
}

// Get returns the session by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*State, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RecordFrame applies one processed frame to the session under a WATCH
// transaction: the frame counter always advances, a move outcome appends its
// UCI string, rejected/unresolved outcomes bump their counters.
func (s *Store) RecordFrame(ctx context.Context, id string, outcome FrameOutcome, uci string) (*State, error) {
	return s.update(ctx, id, func(st *State) error {
		if st.Status != StatusActive {
			return ErrNotActive
		}
		st.Frames++
		switch outcome {
		case OutcomeMove:
			if strings.TrimSpace(uci) == "" {
				return fmt.Errorf("session: move outcome without a move")
			}
			st.MovesUCI = append(st.MovesUCI, uci)
		case OutcomeRejected:
			st.Rejected++
		case OutcomeUnresolved:
			st.Unresolved++
		}
		return nil
	})
}

// Finish closes the session with the derived game result.
func (s *Store) Finish(ctx context.Context, id, result string) (*State, error) {
	st, err := s.update(ctx, id, func(st *State) error {
		if st.Status != StatusActive {
			return ErrNotActive
		}
		st.Status = StatusFinished
		st.Result = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_finish",
		zap.String("session_id", st.ID),
		zap.String("result", st.Result),
		zap.Int("moves", len(st.MovesUCI)),
		zap.Int("frames", st.Frames),
	)
	return st, nil
}

func (s *Store) update(ctx context.Context, id string, mutate func(*State) error) (*State, error) {
	key := sessionKey(id)
	var out *State
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var st State
		if err := json.Unmarshal(raw, &st); err != nil {
			return err
		}
		if err := mutate(&st); err != nil {
			return err
		}
		st.UpdatedAt = time.Now()

		pipe := tx.TxPipeline()
		newRaw, err := json.Marshal(&st)
		if err != nil {
			return err
		}
		pipe.Set(ctx, key, newRaw, s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = &st
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("session: concurrent update detected")
		}
		return nil, err
	}
	return out, nil
}

func (s *Store) save(ctx context.Context, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(st.ID), raw, s.ttl).Err()
}

func sessionKey(id string) string { return "lens:session:" + strings.TrimSpace(id) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
