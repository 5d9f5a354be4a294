package http

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/digest"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/services"
)

type result[T any] struct {
	Result T `json:"result"`
}

type fileSpecJSON struct {
	Algorithm  string `json:"algorithm"`
	Digest     string `json:"digest"`
	Size       int64  `json:"size"`
	Visibility string `json:"visibility"`
}

// uploadBody.Author is kept raw so that a present key, null included, is
// told apart from an absent one.
type uploadBody struct {
	Message string                  `json:"message"`
	Author  json.RawMessage         `json:"author,omitempty"`
	Files   map[string]fileSpecJSON `json:"files"`
}

type uploadedFileJSON struct {
	fileSpecJSON
	PutURL string `json:"put_url,omitempty"`
}

type uploadResultJSON struct {
	ID       int64                       `json:"id"`
	Author   string                      `json:"author"`
	Uploaded time.Time                   `json:"uploaded"`
	Message  string                      `json:"message"`
	Files    map[string]uploadedFileJSON `json:"files"`
}

type fileJSON struct {
	fileSpecJSON
	HasInstances bool `json:"has_instances"`
}

type fileDetailJSON struct {
	fileJSON
	Instances []string `json:"instances"`
}

type batchJSON struct {
	ID       int64               `json:"id"`
	Author   string              `json:"author"`
	Uploaded time.Time           `json:"uploaded"`
	Message  string              `json:"message"`
	Files    map[string]fileJSON `json:"files"`
}

type patchOpJSON struct {
	Op         string `json:"op"`
	Visibility string `json:"visibility,omitempty"`
}

type permissionsJSON struct {
	Description string   `json:"description"`
	UserID      *string  `json:"user_id"`
	Permissions []string `json:"permissions"`
}

func (b uploadBody) request() *services.UploadRequest {
	req := &services.UploadRequest{
		Message: b.Message,
		Files:   make(map[string]services.FileSpec, len(b.Files)),
	}
	if len(b.Author) > 0 {
		author := string(b.Author)
		req.Author = &author
	}
	for name, f := range b.Files {
		req.Files[name] = services.FileSpec{
			Algorithm:  f.Algorithm,
			Digest:     f.Digest,
			Size:       f.Size,
			Visibility: models.Visibility(f.Visibility),
		}
	}
	return req
}

func specJSON(s services.FileSpec) fileSpecJSON {
	return fileSpecJSON{Algorithm: s.Algorithm, Digest: s.Digest, Size: s.Size, Visibility: string(s.Visibility)}
}

func toUploadResultJSON(r *services.UploadResult) uploadResultJSON {
	out := uploadResultJSON{
		ID:       r.BatchID,
		Author:   r.Author,
		Uploaded: r.Uploaded,
		Message:  r.Message,
		Files:    make(map[string]uploadedFileJSON, len(r.Files)),
	}
	for name, f := range r.Files {
		out.Files[name] = uploadedFileJSON{fileSpecJSON: specJSON(f.FileSpec), PutURL: f.PutURL}
	}
	return out
}

func toFileJSON(v services.FileView) fileJSON {
	return fileJSON{
		fileSpecJSON: fileSpecJSON{
			Algorithm:  digest.Algorithm,
			Digest:     v.File.Digest,
			Size:       v.File.Size,
			Visibility: string(v.File.Visibility),
		},
		HasInstances: v.HasInstances,
	}
}

func toFileDetailJSON(v services.FileView) fileDetailJSON {
	instances := append([]string{}, v.Instances...)
	sort.Strings(instances)
	return fileDetailJSON{fileJSON: toFileJSON(v), Instances: instances}
}

func toBatchJSON(v services.BatchView) batchJSON {
	out := batchJSON{
		ID:       v.Batch.ID,
		Author:   v.Batch.Author,
		Uploaded: v.Batch.Uploaded,
		Message:  v.Batch.Message,
		Files:    make(map[string]fileJSON, len(v.Files)),
	}
	for name, f := range v.Files {
		out.Files[name] = toFileJSON(f)
	}
	return out
}
