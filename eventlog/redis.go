package eventlog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog is the production Log implementation, grounded on the
// project's existing redis/go-redis/v9 dependency. Each subject maps to
// one Redis stream key; XADD supplies the monotonic per-subject sequence
// (the stream entry ID's millisecond-sequence pair, re-exposed here as a
// flat uint64 counter so callers never see Redis's own ID format);
// prefix listing uses SCAN; purge uses UNLINK.
type RedisLog struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisLog wraps an existing redis client. keyPrefix namespaces every
// stream key (e.g. "cb:events:") so the log can share a Redis instance
// with other subsystems without key collisions.
func NewRedisLog(client *redis.Client, keyPrefix string) *RedisLog {
	return &RedisLog{client: client, keyPrefix: keyPrefix}
}

func (l *RedisLog) streamKey(subject string) string {
	return l.keyPrefix + subject
}

func (l *RedisLog) subjectFromKey(key string) string {
	return strings.TrimPrefix(key, l.keyPrefix)
}

func (l *RedisLog) Append(ctx context.Context, subject string, payload []byte) (Message, error) {
	key := l.streamKey(subject)
	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{"payload": payload},
	}).Result()
	if err != nil {
		return Message{}, fmt.Errorf("eventlog: append to %s: %w", subject, err)
	}
	seq, ts, err := parseStreamID(id)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Sequence: seq, Timestamp: ts, Payload: payload}, nil
}

func (l *RedisLog) ReadFrom(ctx context.Context, subject string, fromSeq uint64) ([]Message, error) {
	key := l.streamKey(subject)
	start := "-"
	if fromSeq > 0 {
		start = fmt.Sprintf("%d-%d", fromSeq/10000, fromSeq%10000)
	}
	entries, err := l.client.XRange(ctx, key, start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("eventlog: read %s: %w", subject, err)
	}
	if len(entries) == 0 {
		if exists, _ := l.client.Exists(ctx, key).Result(); exists == 0 {
			return nil, ErrSubjectNotFound
		}
	}
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		seq, ts, err := parseStreamID(e.ID)
		if err != nil {
			continue
		}
		if seq < fromSeq {
			continue
		}
		payload, _ := e.Values["payload"].(string)
		out = append(out, Message{Subject: subject, Sequence: seq, Timestamp: ts, Payload: []byte(payload)})
	}
	return out, nil
}

func (l *RedisLog) LastSequenceForSubject(ctx context.Context, subject string) (uint64, error) {
	key := l.streamKey(subject)
	entries, err := l.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("eventlog: last sequence for %s: %w", subject, err)
	}
	if len(entries) == 0 {
		return 0, ErrSubjectNotFound
	}
	seq, _, err := parseStreamID(entries[0].ID)
	return seq, err
}

func (l *RedisLog) ListSubjects(ctx context.Context, prefix string) ([]string, error) {
	var subjects []string
	iter := l.client.Scan(ctx, 0, l.keyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		subjects = append(subjects, l.subjectFromKey(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: list subjects: %w", err)
	}
	sort.Strings(subjects)
	return subjects, nil
}

func (l *RedisLog) Purge(ctx context.Context, prefix string) error {
	subjects, err := l.ListSubjects(ctx, prefix)
	if err != nil {
		return err
	}
	for _, s := range subjects {
		if err := l.client.Unlink(ctx, l.streamKey(s)).Err(); err != nil {
			return fmt.Errorf("eventlog: purge %s: %w", s, err)
		}
	}
	return nil
}

func (l *RedisLog) Close() error { return l.client.Close() }

// parseStreamID converts a Redis stream entry ID ("<ms>-<seq>") into a
// flat monotonic sequence number (ms*10000+seq, safe up to year ~3000 at
// sub-millisecond entry rates far below Redis's own per-ms counter limit)
// plus the millisecond component as a time.Time.
func parseStreamID(id string) (uint64, time.Time, error) {
	msPart, seqPart, ok := strings.Cut(id, "-")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("eventlog: malformed stream id %q", id)
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("eventlog: malformed stream id %q: %w", id, err)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("eventlog: malformed stream id %q: %w", id, err)
	}
	flat := uint64(ms)*10000 + seq
	return flat, time.UnixMilli(ms), nil
}
