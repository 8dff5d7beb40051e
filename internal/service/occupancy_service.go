package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"parktronic/internal/domain"
	"parktronic/internal/projection"
	"parktronic/internal/repository"
)

type OccupancyService struct {
	store repository.OccupancyStore
	log   *zap.Logger
}

func NewOccupancyService(store repository.OccupancyStore, log *zap.Logger) *OccupancyService {
	return &OccupancyService{store: store, log: log}
}

// Ingest stores one camera snapshot: the lot is created or updated and the
// camera's view is replaced, all in one transaction.
func (s *OccupancyService) Ingest(ctx context.Context, in domain.SnapshotInput) (domain.IngestResult, error) {
	res, err := s.store.IngestSnapshot(ctx, in)
	if err != nil {
		return domain.IngestResult{}, err
	}
	s.log.Info("snapshot ingested",
		zap.Int("lot_id", res.LotID),
		zap.Int("view_id", res.ViewID),
		zap.Int("camera", in.Camera),
		zap.Int("rows", len(in.Rows)))
	return res, nil
}

func (s *OccupancyService) GetLot(ctx context.Context, lotID int) (*domain.ParkingLot, error) {
	return s.store.GetLot(ctx, lotID)
}

func (s *OccupancyService) ListLots(ctx context.Context) (domain.ListingResponse, error) {
	lots, err := s.store.ListLots(ctx)
	if err != nil {
		return domain.ListingResponse{}, err
	}
	return projection.Listing(lots), nil
}

func (s *OccupancyService) DeleteLot(ctx context.Context, lotID int) error {
	if err := s.store.DeleteLot(ctx, lotID); err != nil {
		return err
	}
	s.log.Info("parking lot deleted", zap.Int("lot_id", lotID))
	return nil
}

// Features returns the detector feature of every view holding rows. Views
// without rows, and lots removed while iterating, are skipped.
func (s *OccupancyService) Features(ctx context.Context) ([]domain.Feature, error) {
	ids, err := s.store.ListLotIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lot ids: %w", err)
	}

	features := []domain.Feature{}
	for _, id := range ids {
		lot, err := s.store.GetLot(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get lot %d: %w", id, err)
		}
		views, err := s.store.ListViews(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list views of lot %d: %w", id, err)
		}
		for _, v := range views {
			row, err := s.store.LatestRowByView(ctx, v.ID)
			if errors.Is(err, repository.ErrNotFound) {
				s.log.Debug("view has no rows, skipping", zap.Int("lot_id", id), zap.Int("view_id", v.ID))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("latest row of view %d: %w", v.ID, err)
			}
			features = append(features, projection.LatestRowFeature(*lot, v, *row))
		}
	}
	return features, nil
}
