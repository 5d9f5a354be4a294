package repomanager

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/batches"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/files"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/instances"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/pendinguploads"
)

type fileRegion struct {
	fileID int64
	region string
}

type memoryState struct {
	nextFileID  int64
	nextBatchID int64
	files       map[int64]models.File
	instances   map[fileRegion]struct{}
	pending     map[fileRegion]time.Time
	batches     map[int64]models.Batch
	batchFiles  []models.BatchFile
}

func newMemoryState() *memoryState {
	return &memoryState{
		files:     map[int64]models.File{},
		instances: map[fileRegion]struct{}{},
		pending:   map[fileRegion]time.Time{},
		batches:   map[int64]models.Batch{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		nextFileID:  s.nextFileID,
		nextBatchID: s.nextBatchID,
		files:       make(map[int64]models.File, len(s.files)),
		instances:   make(map[fileRegion]struct{}, len(s.instances)),
		pending:     make(map[fileRegion]time.Time, len(s.pending)),
		batches:     make(map[int64]models.Batch, len(s.batches)),
		batchFiles:  append([]models.BatchFile(nil), s.batchFiles...),
	}
	for k, v := range s.files {
		c.files[k] = v
	}
	for k := range s.instances {
		c.instances[k] = struct{}{}
	}
	for k, v := range s.pending {
		c.pending[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	return c
}

// InMemoryRepositoryManager keeps the catalog in process memory.
// Transactions are serialized; a failed transaction restores the state it
// started from.
type InMemoryRepositoryManager struct {
	mu    sync.Mutex
	state *memoryState
}

// memoryTx marks a handle that already holds the manager's lock.
type memoryTx struct {
	dbx.DBTX
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{state: newMemoryState()}
}

func (m *InMemoryRepositoryManager) Conn() dbx.DBTX {
	return nil
}

func (m *InMemoryRepositoryManager) WithTx(ctx context.Context, fn dbx.TxFunc) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	defer func() {
		if p := recover(); p != nil {
			m.state = snapshot
			panic(p)
		}
		if err != nil {
			m.state = snapshot
		}
	}()

	return fn(ctx, memoryTx{})
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Ping(ctx context.Context) error { return nil }

func (m *InMemoryRepositoryManager) Close() error { return nil }

func (m *InMemoryRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return &memoryFiles{m: m, inTx: isTx(db)}
}

func (m *InMemoryRepositoryManager) Instances(db dbx.DBTX) instances.Repository {
	return &memoryInstances{m: m, inTx: isTx(db)}
}

func (m *InMemoryRepositoryManager) PendingUploads(db dbx.DBTX) pendinguploads.Repository {
	return &memoryPendingUploads{m: m, inTx: isTx(db)}
}

func (m *InMemoryRepositoryManager) Batches(db dbx.DBTX) batches.Repository {
	return &memoryBatches{m: m, inTx: isTx(db)}
}

func isTx(db dbx.DBTX) bool {
	_, ok := db.(memoryTx)
	return ok
}

// lock acquires the manager lock unless the caller runs inside WithTx,
// and returns the matching unlock.
func (m *InMemoryRepositoryManager) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

type memoryFiles struct {
	m    *InMemoryRepositoryManager
	inTx bool
}

func (r *memoryFiles) GetOrCreate(ctx context.Context, digest string, size int64, visibility models.Visibility) (*models.File, bool, error) {
	defer r.m.lock(r.inTx)()
	s := r.m.state
	for _, f := range s.files {
		if f.Digest == digest {
			return &f, false, nil
		}
	}
	s.nextFileID++
	f := models.File{ID: s.nextFileID, Digest: digest, Size: size, Visibility: visibility}
	s.files[f.ID] = f
	return &f, true, nil
}

func (r *memoryFiles) GetByDigest(ctx context.Context, digest string) (*models.File, error) {
	defer r.m.lock(r.inTx)()
	for _, f := range r.m.state.files {
		if f.Digest == digest {
			return &f, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memoryFiles) GetByID(ctx context.Context, id int64) (*models.File, error) {
	defer r.m.lock(r.inTx)()
	f, ok := r.m.state.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (r *memoryFiles) Search(ctx context.Context, q string) ([]*models.File, error) {
	defer r.m.lock(r.inTx)()
	s := r.m.state
	ids := map[int64]struct{}{}
	for _, bf := range s.batchFiles {
		f, ok := s.files[bf.FileID]
		if !ok {
			continue
		}
		if strings.Contains(bf.Filename, q) || strings.HasPrefix(f.Digest, q) {
			ids[f.ID] = struct{}{}
		}
	}
	var result []*models.File
	for id := range ids {
		f := s.files[id]
		result = append(result, &f)
	}
	sortFiles(result)
	return result, nil
}

func (r *memoryFiles) SetVisibility(ctx context.Context, id int64, visibility models.Visibility) error {
	defer r.m.lock(r.inTx)()
	f, ok := r.m.state.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	f.Visibility = visibility
	r.m.state.files[id] = f
	return nil
}

func (r *memoryFiles) ListUnderReplicated(ctx context.Context, regionCount int) ([]*models.File, error) {
	defer r.m.lock(r.inTx)()
	s := r.m.state
	counts := map[int64]int{}
	for k := range s.instances {
		counts[k.fileID]++
	}
	var result []*models.File
	for id, n := range counts {
		if n < regionCount {
			f := s.files[id]
			result = append(result, &f)
		}
	}
	sortFiles(result)
	return result, nil
}

func sortFiles(fs []*models.File) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].ID < fs[j].ID })
}

type memoryInstances struct {
	m    *InMemoryRepositoryManager
	inTx bool
}

func (r *memoryInstances) Create(ctx context.Context, fileID int64, region string) (bool, error) {
	defer r.m.lock(r.inTx)()
	k := fileRegion{fileID, region}
	if _, ok := r.m.state.instances[k]; ok {
		return false, nil
	}
	r.m.state.instances[k] = struct{}{}
	return true, nil
}

func (r *memoryInstances) ListByFile(ctx context.Context, fileID int64) ([]string, error) {
	defer r.m.lock(r.inTx)()
	var result []string
	for k := range r.m.state.instances {
		if k.fileID == fileID {
			result = append(result, k.region)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (r *memoryInstances) Delete(ctx context.Context, fileID int64, region string) error {
	defer r.m.lock(r.inTx)()
	delete(r.m.state.instances, fileRegion{fileID, region})
	return nil
}

type memoryPendingUploads struct {
	m    *InMemoryRepositoryManager
	inTx bool
}

func (r *memoryPendingUploads) Upsert(ctx context.Context, pu *models.PendingUpload) error {
	defer r.m.lock(r.inTx)()
	r.m.state.pending[fileRegion{pu.FileID, pu.Region}] = pu.Expires
	return nil
}

func (r *memoryPendingUploads) ListByFile(ctx context.Context, fileID int64) ([]*models.PendingUpload, error) {
	defer r.m.lock(r.inTx)()
	var result []*models.PendingUpload
	for k, exp := range r.m.state.pending {
		if k.fileID == fileID {
			result = append(result, &models.PendingUpload{FileID: k.fileID, Region: k.region, Expires: exp})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Region < result[j].Region })
	return result, nil
}

func (r *memoryPendingUploads) ListAll(ctx context.Context) ([]*models.PendingUpload, error) {
	defer r.m.lock(r.inTx)()
	var result []*models.PendingUpload
	for k, exp := range r.m.state.pending {
		result = append(result, &models.PendingUpload{FileID: k.fileID, Region: k.region, Expires: exp})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Expires.Equal(b.Expires) {
			return a.Expires.Before(b.Expires)
		}
		if a.FileID != b.FileID {
			return a.FileID < b.FileID
		}
		return a.Region < b.Region
	})
	return result, nil
}

func (r *memoryPendingUploads) Delete(ctx context.Context, fileID int64, region string, expires time.Time) (bool, error) {
	defer r.m.lock(r.inTx)()
	k := fileRegion{fileID, region}
	exp, ok := r.m.state.pending[k]
	if !ok || !exp.Equal(expires) {
		return false, nil
	}
	delete(r.m.state.pending, k)
	return true, nil
}

type memoryBatches struct {
	m    *InMemoryRepositoryManager
	inTx bool
}

func (r *memoryBatches) Create(ctx context.Context, b *models.Batch) error {
	defer r.m.lock(r.inTx)()
	s := r.m.state
	s.nextBatchID++
	b.ID = s.nextBatchID
	s.batches[b.ID] = *b
	return nil
}

func (r *memoryBatches) AddFile(ctx context.Context, bf *models.BatchFile) error {
	defer r.m.lock(r.inTx)()
	s := r.m.state
	if _, ok := s.batches[bf.BatchID]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := s.files[bf.FileID]; !ok {
		return common.ErrorNotFound
	}
	for _, existing := range s.batchFiles {
		if existing.BatchID == bf.BatchID && existing.Filename == bf.Filename {
			return common.Malformed("duplicate filename %q in batch", bf.Filename)
		}
	}
	s.batchFiles = append(s.batchFiles, *bf)
	return nil
}

func (r *memoryBatches) GetByID(ctx context.Context, id int64) (*models.Batch, error) {
	defer r.m.lock(r.inTx)()
	b, ok := r.m.state.batches[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &b, nil
}

func (r *memoryBatches) Search(ctx context.Context, q string) ([]*models.Batch, error) {
	defer r.m.lock(r.inTx)()
	var result []*models.Batch
	for _, b := range r.m.state.batches {
		if strings.Contains(b.Author, q) || strings.Contains(b.Message, q) {
			result = append(result, &b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *memoryBatches) ListFiles(ctx context.Context, batchID int64) ([]*models.NamedFile, error) {
	defer r.m.lock(r.inTx)()
	s := r.m.state
	var result []*models.NamedFile
	for _, bf := range s.batchFiles {
		if bf.BatchID == batchID {
			result = append(result, &models.NamedFile{Filename: bf.Filename, File: s.files[bf.FileID]})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Filename < result[j].Filename })
	return result, nil
}
