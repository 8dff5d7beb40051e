// Package ingest accepts detector snapshots from HTTP, SQS and AMQP and
// hands them to the occupancy service.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"parktronic/internal/domain"
	"parktronic/internal/repository"
)

// Error is the class of transport failures.
var Error = errs.Class("ingest")

// Ingester stores one camera snapshot.
type Ingester interface {
	Ingest(ctx context.Context, in domain.SnapshotInput) (domain.IngestResult, error)
}

type Handler struct {
	svc Ingester
	log *zap.Logger
}

func NewHandler(svc Ingester, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Decode parses a snapshot payload. Any decoding failure is a validation error.
func Decode(body []byte) (domain.SnapshotInput, error) {
	var in domain.SnapshotInput
	if err := json.Unmarshal(body, &in); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return in, fmt.Errorf("decode snapshot: %w", err)
		}
		return in, fmt.Errorf("%w: decode snapshot: %v", domain.ErrValidation, err)
	}
	return in, nil
}

func (h *Handler) Handle(ctx context.Context, body []byte) (domain.IngestResult, error) {
	in, err := Decode(body)
	if err == nil {
		err = in.Validate()
	}
	if err != nil {
		h.log.Debug("snapshot rejected", zap.Int("bytes", len(body)), zap.Error(err))
		return domain.IngestResult{}, err
	}
	return h.svc.Ingest(ctx, in)
}

// Permanent reports errors that redelivery cannot fix: a malformed payload,
// a lot id that names no lot, or a conflicting record.
func Permanent(err error) bool {
	return errors.Is(err, repository.ErrValidation) ||
		errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrConflict)
}
