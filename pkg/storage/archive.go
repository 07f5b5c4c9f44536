package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/wehubfusion/outcome/pkg/boundary"
	sdkerrors "github.com/wehubfusion/outcome/pkg/errors"
	"github.com/wehubfusion/outcome/pkg/result"
	"go.uber.org/zap"
)

// Archive stores every delivered result as its own blob. It implements boundary.Sink.
type Archive struct {
	blobClient BlobStorageClient
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewArchive creates an archive over blobClient
func NewArchive(blobClient BlobStorageClient, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		blobClient: blobClient,
		logger:     logger,
	}
}

// ArchivePath returns the blob path for one invocation's result:
// results/<operation>/<yyyy>/<mm>/<dd>/<invocation-id>.json, dated by ts in UTC.
func ArchivePath(operation, invocationID string, ts time.Time) string {
	if operation == "" {
		operation = boundary.DefaultOperation
	}
	ts = ts.UTC()
	return fmt.Sprintf("results/%s/%04d/%02d/%02d/%s.json",
		operation, ts.Year(), int(ts.Month()), ts.Day(), invocationID)
}

// Deliver implements boundary.Sink
func (a *Archive) Deliver(ctx context.Context, rec boundary.Record) error {
	_, err := a.Store(ctx, rec)
	return err
}

// Store uploads rec's result and returns the blob URL
func (a *Archive) Store(ctx context.Context, rec boundary.Record) (string, error) {
	if a.blobClient == nil {
		return "", fmt.Errorf("blob client not initialized")
	}
	if rec.Result == nil {
		return "", sdkerrors.NewValidationError("record has no result", "INVALID_RECORD", sdkerrors.ErrInvalidRecord)
	}
	if rec.InvocationID == "" {
		return "", sdkerrors.NewValidationError("record has no invocation id", "INVALID_RECORD", sdkerrors.ErrInvalidRecord)
	}

	data, err := json.Marshal(rec.Result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	blobPath := ArchivePath(rec.Operation, rec.InvocationID, rec.Result.Timestamp())
	metadata := map[string]string{
		"operation":     rec.Operation,
		"invocation_id": rec.InvocationID,
		"success":       strconv.FormatBool(rec.Result.Succeeded()),
	}
	if errorType, ok := rec.Result.ErrorType(); ok {
		metadata["error_type"] = errorType
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	blobURL, err := a.blobClient.UploadResult(ctx, blobPath, data, metadata)
	if err != nil {
		return "", fmt.Errorf("failed to archive result: %w", err)
	}

	a.logger.Info("Archived result",
		zap.String("operation", rec.Operation),
		zap.String("invocation_id", rec.InvocationID),
		zap.String("blob_path", blobPath),
		zap.Int("size_bytes", len(data)))

	return blobURL, nil
}

// Load downloads and decodes an archived result by blob path or URL
func (a *Archive) Load(ctx context.Context, reference string) (*result.OperationResult, error) {
	if a.blobClient == nil {
		return nil, fmt.Errorf("blob client not initialized")
	}

	data, err := a.blobClient.DownloadResult(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to download result: %w", err)
	}

	var res result.OperationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &res, nil
}
