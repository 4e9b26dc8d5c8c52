package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/intake-bot/internal/domain"
)

func newRecords(t *testing.T) *RecordStore {
	t.Helper()
	s, err := OpenRecords(filepath.Join(t.TempDir(), "data", "data.json"), nil)
	require.NoError(t, err)
	return s
}

func submission(userID string) domain.Submission {
	return domain.Submission{
		UserID:   userID,
		Username: "user" + userID,
		Answers: domain.Answers{
			FullName:    "Иванов Иван Иванович",
			PhoneNumber: "+79991234567",
		},
	}
}

func TestAppendAssignsConsecutiveSequence(t *testing.T) {
	ctx := context.Background()
	s := newRecords(t)

	for i := 1; i <= 3; i++ {
		before, err := s.Count(ctx)
		require.NoError(t, err)

		got, err := s.Append(ctx, submission("u"))
		require.NoError(t, err)
		assert.Equal(t, int64(before+1), got.Seq)
		assert.NotEmpty(t, got.ID)
		assert.False(t, got.SubmittedAt.IsZero())
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Иванов Иван Иванович", all[2].FullName)
}

func TestConcurrentAppendsNeverDuplicateOrSkip(t *testing.T) {
	ctx := context.Background()
	s := newRecords(t)

	const n = 24
	seqs := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.Append(ctx, submission(string(rune('a'+i))))
			assert.NoError(t, err)
			seqs[i] = got.Seq
		}(i)
	}
	wg.Wait()

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestTwoStoresOnSameFileSerialize(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	a, err := OpenRecords(path, nil)
	require.NoError(t, err)
	b, err := OpenRecords(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, err := a.Append(ctx, submission("a")); assert.NoError(t, err) }()
		go func() { defer wg.Done(); _, err := b.Append(ctx, submission("b")); assert.NoError(t, err) }()
	}
	wg.Wait()

	all, err := a.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 20)
	for i, r := range all {
		assert.Equal(t, int64(i+1), r.Seq)
	}
}

func TestAppendOverCorruptLogMovesItAside(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := OpenRecords(path, nil)
	require.NoError(t, err)

	_, err = s.Count(ctx)
	require.Error(t, err)
	assert.True(t, IsCorrupt(err))

	got, err := s.Append(ctx, submission("u"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Seq)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	old, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(old))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPersistedLayoutIsFlatJSONArray(t *testing.T) {
	ctx := context.Background()
	s := newRecords(t)
	sub := submission("7")
	sub.SubmittedAt = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err := s.Append(ctx, sub)
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal(raw, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Иванов Иван Иванович", docs[0]["full_name"])
	assert.Equal(t, "7", docs[0]["user_id"])
	assert.EqualValues(t, 1, docs[0]["seq"])
	assert.Equal(t, false, docs[0]["military_id"])
	assert.Contains(t, string(raw), "Иванов", "non-ASCII text is stored unescaped")
}

func TestNextSeqSkipsPastHandEditedNumbers(t *testing.T) {
	assert.Equal(t, int64(1), nextSeq(nil))
	assert.Equal(t, int64(3), nextSeq([]domain.Submission{{Seq: 1}, {Seq: 2}}))
	assert.Equal(t, int64(11), nextSeq([]domain.Submission{{Seq: 9}, {Seq: 10}}))
	assert.Equal(t, int64(3), nextSeq([]domain.Submission{{}, {}}))
}

func TestLatestAndUserIDs(t *testing.T) {
	ctx := context.Background()
	s := newRecords(t)

	_, ok, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	t1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "1"} {
		sub := submission(id)
		sub.SubmittedAt = t1.Add(time.Duration(i) * time.Minute)
		_, err := s.Append(ctx, sub)
		require.NoError(t, err)
	}

	latest, ok, err := s.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.Equal(t1.Add(2*time.Minute)))

	ids, err := s.UserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
}
