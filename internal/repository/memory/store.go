// Package memory keeps every repository in process memory. A single lock
// guards the whole dataset, so each operation is atomic and readers observe
// either the state before a write or the state after it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"parktronic/internal/domain"
	"parktronic/internal/repository"
)

type favorite struct {
	userID, lotID int
}

// DB is the shared dataset behind the memory repositories.
type DB struct {
	mu  sync.RWMutex
	now func() time.Time

	lotSeq, viewSeq, rowSeq, userSeq int

	lots      map[int]domain.ParkingLot
	lotOrder  []int
	views     map[int]domain.View // Rows unset; see rows
	rows      map[int][]domain.Row
	users     map[int]domain.User
	favorites []favorite
	dataset   []domain.DatasetRecord
}

func NewDB() *DB {
	return &DB{
		now:   func() time.Time { return time.Now().UTC() },
		lots:  map[int]domain.ParkingLot{},
		views: map[int]domain.View{},
		rows:  map[int][]domain.Row{},
		users: map[int]domain.User{},
	}
}

// SetClock replaces the clock used for timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

func (db *DB) OccupancyStore() repository.OccupancyStore { return &occupancyStore{db: db} }
func (db *DB) Users() repository.UserRepository         { return &userRepository{db: db} }
func (db *DB) Favorites() repository.FavoriteRepository { return &favoriteRepository{db: db} }
func (db *DB) Dataset() repository.DatasetRepository    { return &datasetRepository{db: db} }

// Records returns a copy of everything appended to the dataset.
func (db *DB) Records() []domain.DatasetRecord {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]domain.DatasetRecord(nil), db.dataset...)
}

type occupancyStore struct{ db *DB }

func (s *occupancyStore) UpsertLot(ctx context.Context, in domain.LotInput) (int, error) {
	if err := in.Validate(); err != nil {
		return 0, fmt.Errorf("OccupancyStore.UpsertLot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, ctxError("OccupancyStore.UpsertLot", err)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	id, err := s.db.upsertLot(in)
	if err != nil {
		return 0, fmt.Errorf("OccupancyStore.UpsertLot: %w", err)
	}
	return id, nil
}

func (s *occupancyStore) ReplaceView(ctx context.Context, lotID, camera int, rows []domain.RowInput) (int, error) {
	if err := domain.ValidateRows(camera, rows); err != nil {
		return 0, fmt.Errorf("OccupancyStore.ReplaceView: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, ctxError("OccupancyStore.ReplaceView", err)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	id, err := s.db.replaceView(lotID, camera, rows)
	if err != nil {
		return 0, fmt.Errorf("OccupancyStore.ReplaceView: %w", err)
	}
	return id, nil
}

func (s *occupancyStore) IngestSnapshot(ctx context.Context, in domain.SnapshotInput) (domain.IngestResult, error) {
	if err := in.Validate(); err != nil {
		return domain.IngestResult{}, fmt.Errorf("OccupancyStore.IngestSnapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.IngestResult{}, ctxError("OccupancyStore.IngestSnapshot", err)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	// Both steps are validated up front and cannot fail halfway once the lot
	// exists, so no undo log is needed.
	lotID, err := s.db.upsertLot(in.Lot())
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("OccupancyStore.IngestSnapshot: %w", err)
	}
	viewID, err := s.db.replaceView(lotID, in.Camera, in.Rows)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("OccupancyStore.IngestSnapshot: %w", err)
	}
	return domain.IngestResult{LotID: lotID, ViewID: viewID}, nil
}

func (db *DB) upsertLot(in domain.LotInput) (int, error) {
	now := db.now()
	if !in.ID.Valid {
		db.lotSeq++
		lot := domain.ParkingLot{ID: db.lotSeq, CreatedAt: now}
		applyLotInput(&lot, in, now)
		db.lots[lot.ID] = lot
		db.lotOrder = append(db.lotOrder, lot.ID)
		return lot.ID, nil
	}
	id := int(in.ID.Int64)
	lot, ok := db.lots[id]
	if !ok {
		return 0, fmt.Errorf("lot %d: %w", id, repository.ErrNotFound)
	}
	applyLotInput(&lot, in, now)
	db.lots[id] = lot
	return id, nil
}

func applyLotInput(lot *domain.ParkingLot, in domain.LotInput, now time.Time) {
	lot.Coordinates = clonePolyline(in.Coordinates)
	lot.Description = in.Description
	lot.City = in.City
	lot.Street = in.Street
	lot.House = in.House
	lot.UpdatedAt = now
}

func (db *DB) replaceView(lotID, camera int, rows []domain.RowInput) (int, error) {
	if _, ok := db.lots[lotID]; !ok {
		return 0, fmt.Errorf("lot %d: %w", lotID, repository.ErrNotFound)
	}
	for id, v := range db.views {
		if v.LotID == lotID && v.Camera == camera {
			db.deleteView(id)
		}
	}

	db.viewSeq++
	view := domain.View{ID: db.viewSeq, LotID: lotID, Camera: camera}
	db.views[view.ID] = view

	now := db.now()
	stored := make([]domain.Row, 0, len(rows))
	for _, in := range rows {
		db.rowSeq++
		stored = append(stored, domain.Row{
			ID:          db.rowSeq,
			ViewID:      view.ID,
			Coordinates: cloneRowCoordinates(in.Coordinates),
			Capacity:    in.Capacity,
			FreePlaces:  append(domain.FreePlaces{}, in.FreePlaces...),
			LastUpdated: now,
		})
	}
	db.rows[view.ID] = stored
	return view.ID, nil
}

func (db *DB) deleteView(id int) {
	delete(db.views, id)
	delete(db.rows, id)
}

func (s *occupancyStore) GetLot(ctx context.Context, lotID int) (*domain.ParkingLot, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	lot, ok := s.db.lots[lotID]
	if !ok {
		return nil, fmt.Errorf("OccupancyStore.GetLot(%d): %w", lotID, repository.ErrNotFound)
	}
	lot.Coordinates = clonePolyline(lot.Coordinates)
	return &lot, nil
}

func (s *occupancyStore) ListLots(ctx context.Context) ([]domain.LotSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, ctxError("OccupancyStore.ListLots", err)
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	snapshots := make([]domain.LotSnapshot, 0, len(s.db.lotOrder))
	for _, id := range s.db.lotOrder {
		lot := s.db.lots[id]
		lot.Coordinates = clonePolyline(lot.Coordinates)
		views := s.db.lotViews(id)
		for i := range views {
			views[i].Rows = cloneRows(s.db.rows[views[i].ID])
		}
		snapshots = append(snapshots, domain.LotSnapshot{Lot: lot, Views: views})
	}
	return snapshots, nil
}

// lotViews returns the lot's views ordered by camera, then id, without rows.
func (db *DB) lotViews(lotID int) []domain.View {
	views := []domain.View{}
	for _, v := range db.views {
		if v.LotID == lotID {
			views = append(views, v)
		}
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Camera != views[j].Camera {
			return views[i].Camera < views[j].Camera
		}
		return views[i].ID < views[j].ID
	})
	return views
}

func (s *occupancyStore) ListLotIDs(ctx context.Context) ([]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return append([]int{}, s.db.lotOrder...), nil
}

func (s *occupancyStore) ListViews(ctx context.Context, lotID int) ([]domain.View, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if _, ok := s.db.lots[lotID]; !ok {
		return nil, fmt.Errorf("OccupancyStore.ListViews(%d): %w", lotID, repository.ErrNotFound)
	}
	return s.db.lotViews(lotID), nil
}

func (s *occupancyStore) LatestRowByView(ctx context.Context, viewID int) (*domain.Row, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var latest *domain.Row
	for _, r := range s.db.rows[viewID] {
		if latest == nil || r.LastUpdated.After(latest.LastUpdated) ||
			(r.LastUpdated.Equal(latest.LastUpdated) && r.ID > latest.ID) {
			r := r
			latest = &r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("OccupancyStore.LatestRowByView(%d): %w", viewID, repository.ErrNotFound)
	}
	row := cloneRows([]domain.Row{*latest})[0]
	return &row, nil
}

func (s *occupancyStore) DeleteLot(ctx context.Context, lotID int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.lots[lotID]; !ok {
		return fmt.Errorf("OccupancyStore.DeleteLot(%d): %w", lotID, repository.ErrNotFound)
	}
	delete(s.db.lots, lotID)
	for i, id := range s.db.lotOrder {
		if id == lotID {
			s.db.lotOrder = append(s.db.lotOrder[:i:i], s.db.lotOrder[i+1:]...)
			break
		}
	}
	for id, v := range s.db.views {
		if v.LotID == lotID {
			s.db.deleteView(id)
		}
	}
	kept := s.db.favorites[:0]
	for _, f := range s.db.favorites {
		if f.lotID != lotID {
			kept = append(kept, f)
		}
	}
	s.db.favorites = kept
	return nil
}

func (s *occupancyStore) DeleteView(ctx context.Context, viewID int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.views[viewID]; !ok {
		return fmt.Errorf("OccupancyStore.DeleteView(%d): %w", viewID, repository.ErrNotFound)
	}
	s.db.deleteView(viewID)
	return nil
}

type userRepository struct{ db *DB }

func (r *userRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	email := normalizeEmail(user.Email)
	for _, u := range r.db.users {
		if u.Email == email {
			return nil, fmt.Errorf("UserRepository.Create: email %q: %w", email, repository.ErrConflict)
		}
	}
	r.db.userSeq++
	user.ID = r.db.userSeq
	user.Email = email
	user.CreatedAt = r.db.now()
	r.db.users[user.ID] = *user
	return user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	email = normalizeEmail(email)
	for _, u := range r.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("UserRepository.FindByEmail: %w", repository.ErrNotFound)
}

func (r *userRepository) FindByID(ctx context.Context, id int) (*domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, fmt.Errorf("UserRepository.FindByID: %w", repository.ErrNotFound)
	}
	return &u, nil
}

func (r *userRepository) UpdatePasswordHash(ctx context.Context, id int, hash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return fmt.Errorf("UserRepository.UpdatePasswordHash: %w", repository.ErrNotFound)
	}
	u.PasswordHash = hash
	r.db.users[id] = u
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[id]; !ok {
		return fmt.Errorf("UserRepository.Delete: %w", repository.ErrNotFound)
	}
	delete(r.db.users, id)
	kept := r.db.favorites[:0]
	for _, f := range r.db.favorites {
		if f.userID != id {
			kept = append(kept, f)
		}
	}
	r.db.favorites = kept
	return nil
}

type favoriteRepository struct{ db *DB }

func (r *favoriteRepository) Add(ctx context.Context, userID, lotID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[userID]; !ok {
		return fmt.Errorf("FavoriteRepository.Add: user %d: %w", userID, repository.ErrNotFound)
	}
	if _, ok := r.db.lots[lotID]; !ok {
		return fmt.Errorf("FavoriteRepository.Add: lot %d: %w", lotID, repository.ErrNotFound)
	}
	for _, f := range r.db.favorites {
		if f.userID == userID && f.lotID == lotID {
			return fmt.Errorf("FavoriteRepository.Add: favorite (%d, %d): %w", userID, lotID, repository.ErrConflict)
		}
	}
	r.db.favorites = append(r.db.favorites, favorite{userID: userID, lotID: lotID})
	return nil
}

func (r *favoriteRepository) Remove(ctx context.Context, userID, lotID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.favorites[:0]
	for _, f := range r.db.favorites {
		if f.userID != userID || f.lotID != lotID {
			kept = append(kept, f)
		}
	}
	r.db.favorites = kept
	return nil
}

func (r *favoriteRepository) ListByUser(ctx context.Context, userID int) ([]int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	ids := []int{}
	for _, f := range r.db.favorites {
		if f.userID == userID {
			ids = append(ids, f.lotID)
		}
	}
	return ids, nil
}

type datasetRepository struct{ db *DB }

func (r *datasetRepository) Append(ctx context.Context, records []domain.DatasetRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.dataset = append(r.db.dataset, records...)
	return nil
}

func ctxError(op string, err error) error {
	if err == context.DeadlineExceeded {
		return fmt.Errorf("%s: %w: %w", op, repository.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clonePolyline(p domain.Polyline) domain.Polyline {
	return append(domain.Polyline{}, p...)
}

func cloneRowCoordinates(c domain.RowCoordinates) domain.RowCoordinates {
	return domain.RowCoordinates{clonePolyline(c[0]), clonePolyline(c[1]), clonePolyline(c[2])}
}

func cloneRows(rows []domain.Row) []domain.Row {
	out := make([]domain.Row, 0, len(rows))
	for _, r := range rows {
		r.Coordinates = cloneRowCoordinates(r.Coordinates)
		r.FreePlaces = append(domain.FreePlaces{}, r.FreePlaces...)
		out = append(out, r)
	}
	return out
}
