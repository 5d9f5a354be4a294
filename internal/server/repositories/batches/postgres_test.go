package batches

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

var uploaded = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreate_SetsID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO batches \(uploaded, author, message\).*RETURNING id`).
		WithArgs(uploaded, "alice", "toolchain").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	b := &models.Batch{Uploaded: uploaded, Author: "alice", Message: "toolchain"}
	require.NoError(t, repo.Create(context.Background(), b))
	assert.Equal(t, int64(42), b.ID)
}

func TestAddFile(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO batch_files \(batch_id, file_id, filename\)`).
		WithArgs(int64(42), int64(1), "gcc.tar.xz").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddFile(context.Background(), &models.BatchFile{BatchID: 42, FileID: 1, Filename: "gcc.tar.xz"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT id, uploaded, author, message FROM batches WHERE id=\$1`).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded", "author", "message"}).
				AddRow(int64(42), uploaded, "alice", "toolchain"))

		b, err := repo.GetByID(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, &models.Batch{ID: 42, Uploaded: uploaded, Author: "alice", Message: "toolchain"}, b)
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(`FROM batches WHERE id=\$1`).
			WithArgs(int64(0)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), 0)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestSearch(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE strpos\(author, \$1\) > 0 OR strpos\(message, \$1\) > 0`).
		WithArgs("tool").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded", "author", "message"}).
			AddRow(int64(1), uploaded, "alice", "toolchain").
			AddRow(int64(2), uploaded, "bob", "tools"))

	got, err := repo.Search(context.Background(), "tool")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[1].Author)
}

func TestListFiles(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM batch_files bf JOIN files f ON f\.id = bf\.file_id`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"filename", "id", "sha512", "size", "visibility"}).
			AddRow("a.txt", int64(1), "d1", int64(3), "public"))

	got, err := repo.ListFiles(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.txt", got[0].Filename)
	assert.Equal(t, models.File{ID: 1, Digest: "d1", Size: 3, Visibility: models.VisibilityPublic}, got[0].File)
}

func TestListFiles_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM batch_files`).WillReturnError(errors.New("boom"))

	_, err := repo.ListFiles(context.Background(), 1)
	assert.ErrorContains(t, err, "failed to select batch files: boom")
}
