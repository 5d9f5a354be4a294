package repomanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_WithTxRestoresOnError(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryRepositoryManager()

	err := m.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, _, err := m.Files(tx).GetOrCreate(ctx, "d1", 1, models.VisibilityPublic); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = m.Files(m.Conn()).GetByDigest(ctx, "d1")
	assert.Error(t, err, "file must not survive a failed transaction")
}

func TestInMemory_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryRepositoryManager()

	err := m.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		f, created, err := m.Files(tx).GetOrCreate(ctx, "d1", 1, models.VisibilityPublic)
		if err != nil {
			return err
		}
		assert.True(t, created)
		b := &models.Batch{Author: "alice", Message: "m"}
		if err := m.Batches(tx).Create(ctx, b); err != nil {
			return err
		}
		return m.Batches(tx).AddFile(ctx, &models.BatchFile{BatchID: b.ID, FileID: f.ID, Filename: "a.txt"})
	})
	require.NoError(t, err)

	got, err := m.Files(m.Conn()).Search(ctx, "a.t")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].Digest)
}

func TestInMemory_PendingDeleteRequiresSameExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryRepositoryManager()
	repo := m.PendingUploads(m.Conn())

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &models.PendingUpload{FileID: 1, Region: "r", Expires: t0}))
	require.NoError(t, repo.Upsert(ctx, &models.PendingUpload{FileID: 1, Region: "r", Expires: t0.Add(time.Minute)}))

	deleted, err := repo.Delete(ctx, 1, "r", t0)
	require.NoError(t, err)
	assert.False(t, deleted)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, t0.Add(time.Minute), all[0].Expires)
}

func TestInMemory_ConcurrentInstanceCreate(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryRepositoryManager()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.Instances(m.Conn()).Create(ctx, 1, "r")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestInMemory_ListUnderReplicated(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryRepositoryManager()
	db := m.Conn()

	a, _, _ := m.Files(db).GetOrCreate(ctx, "a", 1, models.VisibilityPublic)
	b, _, _ := m.Files(db).GetOrCreate(ctx, "b", 1, models.VisibilityPublic)
	_, _, _ = m.Files(db).GetOrCreate(ctx, "c", 1, models.VisibilityPublic)

	_, _ = m.Instances(db).Create(ctx, a.ID, "r1")
	_, _ = m.Instances(db).Create(ctx, b.ID, "r1")
	_, _ = m.Instances(db).Create(ctx, b.ID, "r2")

	got, err := m.Files(db).ListUnderReplicated(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Digest)
}
