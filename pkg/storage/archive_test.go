package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wehubfusion/outcome/pkg/boundary"
	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"github.com/wehubfusion/outcome/pkg/result"
)

// memoryBlobClient is an in-memory BlobStorageClient
type memoryBlobClient struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	metadata  map[string]map[string]string
	uploadErr error
}

func newMemoryBlobClient() *memoryBlobClient {
	return &memoryBlobClient{
		blobs:    make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func (m *memoryBlobClient) UploadResult(_ context.Context, blobPath string, data []byte, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	m.blobs[blobPath] = append([]byte(nil), data...)
	m.metadata[blobPath] = metadata
	return "memory://results/" + blobPath, nil
}

func (m *memoryBlobClient) DownloadResult(_ context.Context, blobPath string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[blobPath]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", blobPath)
	}
	return data, nil
}

func TestArchivePath(t *testing.T) {
	ts := time.Date(2026, time.March, 7, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))

	assert.Equal(t, "results/ProcessarDados/2026/03/08/abc.json", ArchivePath("ProcessarDados", "abc", ts))
	assert.Equal(t, "results/operation/2026/03/08/abc.json", ArchivePath("", "abc", ts))
}

func TestArchiveStoreAndLoad(t *testing.T) {
	client := newMemoryBlobClient()
	archive := NewArchive(client, nil)

	res := result.Error("boom", "ExecutionError")
	rec := boundary.Record{Operation: "ProcessarDados", InvocationID: "inv-1", Result: res}

	url, err := archive.Store(context.Background(), rec)
	require.NoError(t, err)

	blobPath := ArchivePath("ProcessarDados", "inv-1", res.Timestamp())
	assert.Equal(t, "memory://results/"+blobPath, url)
	assert.Equal(t, map[string]string{
		"operation":     "ProcessarDados",
		"invocation_id": "inv-1",
		"success":       "false",
		"error_type":    "ExecutionError",
	}, client.metadata[blobPath])

	loaded, err := archive.Load(context.Background(), blobPath)
	require.NoError(t, err)
	assert.True(t, loaded.Equal(res), "loaded %s, stored %s", loaded, res)
}

func TestArchiveLoadIntegerData(t *testing.T) {
	archive := NewArchive(newMemoryBlobClient(), nil)

	res := result.Success(map[string]any{"count": int64(3), "ids": []int{1, 2}}, "ok")
	rec := boundary.Record{Operation: "Count", InvocationID: "inv-2", Result: res}

	_, err := archive.Store(context.Background(), rec)
	require.NoError(t, err)

	loaded, err := archive.Load(context.Background(), ArchivePath("Count", "inv-2", res.Timestamp()))
	require.NoError(t, err)
	assert.True(t, loaded.Equal(res), "loaded %s, stored %s", loaded, res)
}

func TestArchiveSuccessMetadata(t *testing.T) {
	client := newMemoryBlobClient()
	archive := NewArchive(client, nil)

	res := result.Success(map[string]any{"status": "ok"}, "done")
	rec := boundary.Record{Operation: "ProcessarDados", InvocationID: "inv-2", Result: res}
	require.NoError(t, archive.Deliver(context.Background(), rec))

	metadata := client.metadata[ArchivePath("ProcessarDados", "inv-2", res.Timestamp())]
	assert.Equal(t, "true", metadata["success"])
	assert.NotContains(t, metadata, "error_type")
}

func TestArchiveRejectsIncompleteRecords(t *testing.T) {
	archive := NewArchive(newMemoryBlobClient(), nil)

	_, err := archive.Store(context.Background(), boundary.Record{InvocationID: "x"})
	assert.True(t, sdkerrors.IsValidation(err))

	_, err = archive.Store(context.Background(), boundary.Record{Result: result.Success(nil, "")})
	assert.True(t, errors.Is(err, sdkerrors.ErrInvalidRecord))

	_, err = NewArchive(nil, nil).Store(context.Background(), boundary.Record{})
	assert.Error(t, err)
}

func TestArchiveUploadFailure(t *testing.T) {
	client := newMemoryBlobClient()
	client.uploadErr = errors.New("503 service unavailable")
	archive := NewArchive(client, nil)

	err := archive.Deliver(context.Background(), boundary.Record{
		Operation: "op", InvocationID: "inv", Result: result.Success(nil, "ok"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestArchiveLoadErrors(t *testing.T) {
	client := newMemoryBlobClient()
	client.blobs["bad.json"] = []byte(`{"success":false,"error":"x","error_type":"E","data":1,"message":null,"timestamp":"2026-01-01T00:00:00Z"}`)
	archive := NewArchive(client, nil)

	_, err := archive.Load(context.Background(), "missing.json")
	assert.Error(t, err)

	_, err = archive.Load(context.Background(), "bad.json")
	assert.True(t, sdkerrors.IsValidation(err))
}

func TestArchiveAsBoundarySink(t *testing.T) {
	client := newMemoryBlobClient()
	b := boundary.New("ProcessarDados", boundary.WithSinks(NewArchive(client, nil)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(context.Background(), nil)
		}()
	}
	wg.Wait()

	assert.Len(t, client.blobs, 10)
}
