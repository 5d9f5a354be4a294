package services

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/digest"
	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/config"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/regions"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tooltool/internal/server/storage/storagetest"
	"github.com/stretchr/testify/require"
)

type published struct {
	route   string
	payload any
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{routingKey, payload})
	return nil
}

func (p *recordingPublisher) Ping(ctx context.Context) error { return nil }

type fixture struct {
	repos *repomanager.InMemoryRepositoryManager
	store *storagetest.MemoryStore
	pub   *recordingPublisher
	cfg   *config.Config
	now   time.Time
	deps  Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Regions = map[string]string{"us-east-1": "tt-use1", "us-west-2": "tt-usw2"}

	f := &fixture{
		repos: repomanager.NewInMemoryRepositoryManager(),
		store: storagetest.NewMemoryStore(),
		pub:   &recordingPublisher{},
		cfg:   cfg,
		now:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.deps = Deps{
		Repos:    f.repos,
		Store:    f.store,
		Regions:  regions.New(cfg.Regions),
		Selector: regions.FirstSelector{},
		Now:      func() time.Time { return f.now },
		Log:      logging.Nop(),
	}
	return f
}

func sum(b []byte) string {
	h := sha512.Sum512(b)
	return hex.EncodeToString(h[:])
}

func spec(content string, v models.Visibility) FileSpec {
	return FileSpec{Algorithm: digest.Algorithm, Digest: sum([]byte(content)), Size: int64(len(content)), Visibility: v}
}

var uploader = auth.Caller{ID: "builder@example.com", Scopes: []string{common.ScopePrefix + "/upload/*"}}

// verified records content as a file with an instance in each region.
func (f *fixture) verified(t *testing.T, content string, v models.Visibility, regionNames ...string) *models.File {
	t.Helper()
	ctx := context.Background()
	db := f.repos.Conn()
	file, _, err := f.repos.Files(db).GetOrCreate(ctx, sum([]byte(content)), int64(len(content)), v)
	require.NoError(t, err)
	for _, r := range regionNames {
		_, err := f.repos.Instances(db).Create(ctx, file.ID, r)
		require.NoError(t, err)
		f.store.Put(r, digest.KeyName(file.Digest), []byte(content))
	}
	return file
}

func (f *fixture) grants(t *testing.T, file *models.File) []*models.PendingUpload {
	t.Helper()
	got, err := f.repos.PendingUploads(f.repos.Conn()).ListByFile(context.Background(), file.ID)
	require.NoError(t, err)
	return got
}
