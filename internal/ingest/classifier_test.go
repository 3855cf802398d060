package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/events"
	"dolphinpod/internal/nightmode"
)

type memStore struct {
	mu     sync.Mutex
	users  map[uint]*dbpkg.User
	logs   map[string]dbpkg.UsageLog
	nextID uint
	calls  int
	err    error
}

func newMemStore(users ...dbpkg.User) *memStore {
	s := &memStore{users: map[uint]*dbpkg.User{}, logs: map[string]dbpkg.UsageLog{}}
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
	}
	return s
}

func (s *memStore) FindUser(_ context.Context, id uint) (*dbpkg.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

func (s *memStore) InsertUsageLogs(_ context.Context, logs []dbpkg.UsageLog) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	n := 0
	for i := range logs {
		k := key(logs[i].UserID, logs[i].PackageName, logs[i].FirstTimeStamp)
		if _, ok := s.logs[k]; ok {
			continue
		}
		s.nextID++
		logs[i].ID = s.nextID
		s.logs[k] = logs[i]
		n++
	}
	return n, nil
}

func (s *memStore) all() []dbpkg.UsageLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dbpkg.UsageLog, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l)
	}
	return out
}

func key(user uint, pkg string, start int64) string {
	return fmt.Sprintf("%d|%s|%d", user, pkg, start)
}

type capturePublisher struct {
	events []events.UsageIngested
	err    error
}

func (p *capturePublisher) PublishUsageIngested(_ context.Context, ev events.UsageIngested) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

func newTestClassifier(t *testing.T, store Store, pub events.Publisher) *Classifier {
	t.Helper()
	w, err := nightmode.ParseWindow("23:00", "07:00")
	require.NoError(t, err)
	return NewClassifier(store, pub, Defaults{Window: w, Location: seoul(t)}, zerolog.Nop())
}

func session(pkg, start, end string) Session {
	return Session{PackageName: pkg, AppName: pkg, UsageTime: 60, StartTime: start, EndTime: end}
}

func TestIngestClassifiesNightMode(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	c := newTestClassifier(t, store, nil)

	res, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{
		session("com.night", "2025-03-01T23:30:00+09:00", "2025-03-01T23:45:00+09:00"),
		session("com.early", "2025-03-02T06:59:00+09:00", "2025-03-02T07:10:00+09:00"),
		session("com.morning", "2025-03-02T07:00:00+09:00", "2025-03-02T07:05:00+09:00"),
		session("com.evening", "2025-03-01T22:59:00+09:00", "2025-03-01T23:05:00+09:00"),
	}})
	require.NoError(t, err)
	assert.Equal(t, Result{Submitted: 4, Accepted: 4}, res)

	flags := map[string]bool{}
	for _, l := range store.all() {
		flags[l.PackageName] = l.IsNightMode
	}
	assert.Equal(t, map[string]bool{
		"com.night":   true,
		"com.early":   true,
		"com.morning": false,
		"com.evening": false,
	}, flags)
}

func TestIngestUsesUserWindowAndTimezone(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 7, NightModeStart: "09:00", NightModeEnd: "17:00", Timezone: "UTC"})
	c := newTestClassifier(t, store, nil)

	_, err := c.Ingest(context.Background(), 7, Batch{Logs: []Session{
		session("com.work", "2025-03-01T09:00:00Z", "2025-03-01T09:10:00Z"),
		session("com.before", "2025-03-01T08:59:00Z", "2025-03-01T09:00:00Z"),
		session("com.end", "2025-03-01T17:00:00Z", "2025-03-01T17:10:00Z"),
	}})
	require.NoError(t, err)

	flags := map[string]bool{}
	for _, l := range store.all() {
		flags[l.PackageName] = l.IsNightMode
	}
	assert.True(t, flags["com.work"])
	assert.False(t, flags["com.before"])
	assert.False(t, flags["com.end"])
}

func TestIngestNaiveTimestampUsesUserTimezone(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	c := newTestClassifier(t, store, nil)

	_, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{
		session("com.naive", "2025-03-01T23:30:00", "2025-03-01T23:40:00"),
	}})
	require.NoError(t, err)

	logs := store.all()
	require.Len(t, logs, 1)
	assert.True(t, logs[0].IsNightMode)
	want := time.Date(2025, 3, 1, 23, 30, 0, 0, seoul(t)).UnixMilli()
	assert.Equal(t, want, logs[0].FirstTimeStamp)
}

func TestIngestResubmissionIsIdempotent(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	pub := &capturePublisher{}
	c := newTestClassifier(t, store, pub)

	batch := Batch{Logs: []Session{
		session("com.a", "2025-03-01T23:30:00+09:00", "2025-03-01T23:45:00+09:00"),
		session("com.b", "2025-03-01T12:00:00+09:00", "2025-03-01T12:30:00+09:00"),
	}}

	first, err := c.Ingest(context.Background(), 1, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Accepted)

	second, err := c.Ingest(context.Background(), 1, batch)
	require.NoError(t, err)
	assert.Equal(t, Result{Submitted: 2, Accepted: 0}, second)
	assert.Len(t, store.all(), 2)

	require.Len(t, pub.events, 1)
	assert.Equal(t, 1, pub.events[0].NightMode)
}

func TestIngestSkipsDuplicateOfStoredSession(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	c := newTestClassifier(t, store, nil)

	_, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{
		session("com.x", "2025-03-01T23:30:00+09:00", "2025-03-01T23:40:00+09:00"),
	}})
	require.NoError(t, err)

	// Same key with a different end time is still the same session.
	res, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{
		session("com.x", "2025-03-01T23:30:00+09:00", "2025-03-01T23:59:00+09:00"),
		session("com.x", "2025-03-01T23:50:00+09:00", "2025-03-01T23:55:00+09:00"),
	}})
	require.NoError(t, err)
	assert.Equal(t, Result{Submitted: 2, Accepted: 1}, res)

	logs := store.all()
	require.Len(t, logs, 2)
	for _, l := range logs {
		if l.FirstTimeStamp == time.Date(2025, 3, 1, 23, 30, 0, 0, seoul(t)).UnixMilli() {
			assert.Equal(t, time.Date(2025, 3, 1, 23, 40, 0, 0, seoul(t)).UnixMilli(), l.LastTimeStamp)
		}
	}
}

func TestIngestDropsDuplicatesWithinBatch(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	c := newTestClassifier(t, store, nil)

	res, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{
		session("com.a", "2025-03-01T10:00:00+09:00", "2025-03-01T10:05:00+09:00"),
		session("com.a", "2025-03-01T10:00:00+09:00", "2025-03-01T10:05:00+09:00"),
		session("com.b", "2025-03-01T10:00:00+09:00", "2025-03-01T10:05:00+09:00"),
	}})
	require.NoError(t, err)
	assert.Equal(t, Result{Submitted: 3, Accepted: 2}, res)
}

func TestIngestSameSessionForDifferentUsers(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1}, dbpkg.User{ID: 2})
	c := newTestClassifier(t, store, nil)
	batch := Batch{Logs: []Session{session("com.a", "2025-03-01T10:00:00Z", "2025-03-01T10:05:00Z")}}

	r1, err := c.Ingest(context.Background(), 1, batch)
	require.NoError(t, err)
	r2, err := c.Ingest(context.Background(), 2, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Accepted)
	assert.Equal(t, 1, r2.Accepted)
}

func TestIngestUnknownUserWritesNothing(t *testing.T) {
	store := newMemStore()
	c := newTestClassifier(t, store, nil)

	_, err := c.Ingest(context.Background(), 99, Batch{Logs: []Session{
		session("com.a", "2025-03-01T10:00:00Z", "2025-03-01T10:05:00Z"),
	}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Zero(t, store.calls)
}

func TestIngestEmptyBatchForUnknownUserIsNotFound(t *testing.T) {
	store := newMemStore()
	c := newTestClassifier(t, store, nil)

	_, err := c.Ingest(context.Background(), 99, Batch{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Zero(t, store.calls)
	assert.Empty(t, store.all())
}

func TestIngestRejectsInvalidBatches(t *testing.T) {
	cases := map[string][]Session{
		"malformed start": {
			session("com.ok", "2025-03-01T10:00:00Z", "2025-03-01T10:05:00Z"),
			session("com.bad", "yesterday", "2025-03-01T10:05:00Z"),
		},
		"missing end":     {session("com.a", "2025-03-01T10:00:00Z", "")},
		"missing package": {session(" ", "2025-03-01T10:00:00Z", "2025-03-01T10:05:00Z")},
		"end before start": {
			session("com.a", "2025-03-01T10:05:00Z", "2025-03-01T10:00:00Z"),
		},
		"negative usage": {
			{PackageName: "com.a", UsageTime: -1, StartTime: "2025-03-01T10:00:00Z", EndTime: "2025-03-01T10:05:00Z"},
		},
		"empty": {},
	}
	for name, logs := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemStore(dbpkg.User{ID: 1})
			c := newTestClassifier(t, store, nil)

			_, err := c.Ingest(context.Background(), 1, Batch{Logs: logs})
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Zero(t, store.calls)
			assert.Empty(t, store.all())
		})
	}
}

func TestIngestAppliesBatchUnlockCountToFirstRecord(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	c := newTestClassifier(t, store, nil)
	unlocks := 12

	_, err := c.Ingest(context.Background(), 1, Batch{
		UnlockCount: &unlocks,
		Logs: []Session{
			session("com.first", "2025-03-01T10:00:00Z", "2025-03-01T10:05:00Z"),
			session("com.second", "2025-03-01T11:00:00Z", "2025-03-01T11:05:00Z"),
		},
	})
	require.NoError(t, err)

	for _, l := range store.all() {
		switch l.PackageName {
		case "com.first":
			assert.Equal(t, 12, l.UnlockCount)
		case "com.second":
			assert.Zero(t, l.UnlockCount)
		}
	}
}

func TestIngestIgnoresClientNightModeFlagAndDefaultsCategory(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	c := newTestClassifier(t, store, nil)
	claimed := true

	s := session("com.day", "2025-03-01T12:00:00+09:00", "2025-03-01T12:05:00+09:00")
	s.IsNightMode = &claimed
	_, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{s}})
	require.NoError(t, err)

	logs := store.all()
	require.Len(t, logs, 1)
	assert.False(t, logs[0].IsNightMode)
	assert.Equal(t, "Uncategorized", logs[0].Category)
}

func TestIngestStoreFailureIsReported(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	store.err = errors.New("connection reset")
	pub := &capturePublisher{}
	c := newTestClassifier(t, store, pub)

	_, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{
		session("com.a", "2025-03-01T10:00:00Z", "2025-03-01T10:05:00Z"),
	}})
	require.Error(t, err)
	assert.Empty(t, pub.events)
}

func TestIngestPublishFailureDoesNotFailBatch(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	pub := &capturePublisher{err: errors.New("broker down")}
	c := newTestClassifier(t, store, pub)

	res, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{
		session("com.a", "2025-03-01T10:00:00Z", "2025-03-01T10:05:00Z"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.Len(t, pub.events, 1)
}

type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

func TestIngestDoesNotWaitOnStalledBroker(t *testing.T) {
	store := newMemStore(dbpkg.User{ID: 1})
	pub := events.NewKafkaPublisherWithWriter(stalledWriter{}, 50*time.Millisecond)
	c := newTestClassifier(t, store, pub)

	start := time.Now()
	res, err := c.Ingest(context.Background(), 1, Batch{Logs: []Session{
		session("com.a", "2025-03-01T10:00:00Z", "2025-03-01T10:05:00Z"),
	}})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, res.Accepted)
	assert.Len(t, store.all(), 1)
}

func TestParseTimestamp(t *testing.T) {
	loc := seoul(t)

	got, err := ParseTimestamp("2025-03-01T23:30:00.123Z", loc)
	require.NoError(t, err)
	assert.Equal(t, int64(123), got.UnixMilli()%1000)

	got, err = ParseTimestamp("2025-03-01 23:30:00", loc)
	require.NoError(t, err)
	assert.Equal(t, "23:30", nightmode.ClockOf(got, loc))

	_, err = ParseTimestamp("03/01/2025", loc)
	assert.Error(t, err)
}
