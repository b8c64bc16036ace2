package summary

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMemoryTranscripts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryTranscripts()

	now := time.Now()
	require.NoError(t, m.Append(ctx, "room_1", TranscriptEntry{SpeakerIdentity: "c1", Text: "hello", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, m.Append(ctx, "room_2", TranscriptEntry{SpeakerIdentity: "c2", Text: "hi", Timestamp: now}))

	got, err := m.Transcript(ctx, "room_1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	got[0].Text = "mutated"

	again, _ := m.Transcript(ctx, "room_1")
	assert.Equal(t, "hello", again[0].Text)

	empty, err := m.Transcript(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)

	assert.Equal(t, 1, m.Cleanup(ctx, now.Add(-24*time.Hour)))
	gone, _ := m.Transcript(ctx, "room_1")
	assert.Empty(t, gone)
}

func TestRedisTranscripts(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	r := NewRedisTranscripts(client, "test:", time.Hour)

	conf := 0.9
	ts := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.Append(ctx, "room_1", TranscriptEntry{SpeakerIdentity: "c1", SpeakerName: "Carol", Text: "hello", Timestamp: ts, Confidence: &conf}))
	require.NoError(t, r.Append(ctx, "room_1", TranscriptEntry{SpeakerIdentity: "a1", Text: "hi", Timestamp: ts.Add(time.Second)}))

	assert.True(t, mr.Exists("test:transcript:room_1"))
	assert.Equal(t, time.Hour, mr.TTL("test:transcript:room_1"))

	got, err := r.Transcript(ctx, "room_1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Carol", got[0].SpeakerName)
	require.NotNil(t, got[0].Confidence)
	assert.InDelta(t, 0.9, *got[0].Confidence, 1e-9)
	assert.True(t, ts.Equal(got[0].Timestamp))
	assert.Equal(t, "a1", got[1].SpeakerIdentity)

	empty, err := r.Transcript(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisTranscripts_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	r := NewRedisTranscripts(client, "", 0)
	mr.Close()

	_, err := r.Transcript(context.Background(), "room_1")
	assert.Error(t, err)
}

func TestService_GenerateAndLookup(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryTranscripts(), NewBasicProvider(), zap.NewNop())

	require.NoError(t, svc.AddEntry(ctx, "room_1", TranscriptEntry{SpeakerIdentity: "c1", Text: "I need help"}))
	require.NoError(t, svc.AddEntry(ctx, "room_1", TranscriptEntry{SpeakerIdentity: "a1", Text: "Sure"}))

	s, err := svc.Generate(ctx, "room_1", GenerateOptions{})
	require.NoError(t, err)
	assert.True(t, s.TranscriptIncluded)
	assert.Equal(t, 2, s.ParticipantCount)

	got, ok := svc.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s, got)
	assert.Len(t, svc.List("room_1"), 1)
	assert.Empty(t, svc.List("room_2"))

	excluded, err := svc.Generate(ctx, "room_1", GenerateOptions{ExcludeTranscript: true})
	require.NoError(t, err)
	assert.False(t, excluded.TranscriptIncluded)
	assert.Len(t, svc.List(""), 2)
}

func TestService_AddEntryValidation(t *testing.T) {
	svc := NewService(nil, nil, nil)
	assert.Error(t, svc.AddEntry(context.Background(), "", TranscriptEntry{SpeakerIdentity: "c1", Text: "x"}))
	assert.Error(t, svc.AddEntry(context.Background(), "room_1", TranscriptEntry{Text: "x"}))
	assert.Error(t, svc.AddEntry(context.Background(), "room_1", TranscriptEntry{SpeakerIdentity: "c1"}))
}

func TestService_MaxAgeFilter(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, nil, nil)
	now := time.Now()
	require.NoError(t, svc.AddEntry(ctx, "room_1", TranscriptEntry{SpeakerIdentity: "c1", Text: "old", Timestamp: now.Add(-time.Hour)}))
	require.NoError(t, svc.AddEntry(ctx, "room_1", TranscriptEntry{SpeakerIdentity: "c1", Text: "new", Timestamp: now}))

	s, err := svc.Generate(ctx, "room_1", GenerateOptions{MaxAge: 10 * time.Minute})
	require.NoError(t, err)
	assert.Contains(t, s.Content, "1 exchanges")
	assert.Contains(t, s.Content, "new")
}
