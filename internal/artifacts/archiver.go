package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/alitto/pond/v2"

	"github.com/dataagent/dataagent/internal/storage"
)

type ArchiverOptions struct {
	UploadWorkers int
	Logger        *slog.Logger
}

// Archiver copies session directories to an object store.
type Archiver struct {
	store      storage.ObjectStore
	uploadPool pond.ResultPool[storage.ObjectInfo]
	log        *slog.Logger
}

func NewArchiver(store storage.ObjectStore, opts ArchiverOptions) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if opts.UploadWorkers <= 0 {
		opts.UploadWorkers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Archiver{
		store:      store,
		uploadPool: pond.NewResultPool[storage.ObjectInfo](opts.UploadWorkers),
		log:        opts.Logger,
	}, nil
}

// Archive uploads every regular file in dir, plus the result as parquet when
// there is one, under sessions/<id>/ and returns that prefix.
func (a *Archiver) Archive(ctx context.Context, sessionID, dir string, result any) (string, error) {
	prefix, err := storage.BuildSessionPrefix(sessionID)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read session dir: %w", err)
	}

	group := a.uploadPool.NewGroupContext(ctx)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		group.SubmitErr(func() (storage.ObjectInfo, error) {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return storage.ObjectInfo{}, fmt.Errorf("read %s: %w", name, err)
			}
			return a.put(ctx, sessionID, name, data)
		})
	}
	if result != nil {
		group.SubmitErr(func() (storage.ObjectInfo, error) {
			encoded, err := EncodeResultParquet(result)
			if err != nil {
				return storage.ObjectInfo{}, err
			}
			return a.put(ctx, sessionID, ResultFileName, encoded.Data)
		})
	}

	uploaded, err := group.Wait()
	if err != nil {
		return "", fmt.Errorf("archive session %s: %w", sessionID, err)
	}
	a.log.InfoContext(ctx, "archived session", slog.String("session_id", sessionID), slog.String("prefix", prefix), slog.Int("objects", len(uploaded)))
	return prefix, nil
}

// Files lists the archived objects of a session.
func (a *Archiver) Files(ctx context.Context, sessionID string) ([]storage.ObjectInfo, error) {
	prefix, err := storage.BuildSessionPrefix(sessionID)
	if err != nil {
		return nil, err
	}
	return a.store.List(ctx, prefix)
}

func (a *Archiver) put(ctx context.Context, sessionID, name string, data []byte) (storage.ObjectInfo, error) {
	key, err := storage.BuildSessionObjectPath(sessionID, name)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	return a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: contentType(name)})
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".sql":
		return "application/sql"
	case ".yml", ".yaml":
		return "application/yaml"
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
