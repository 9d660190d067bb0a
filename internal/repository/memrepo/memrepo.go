// Package memrepo is an in-process implementation of repository.Store.
// It enforces the same uniqueness rules as the relational schema and is
// used by tests and by STORAGE_DRIVER=memory.
package memrepo

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"onloc/internal/models"
	"onloc/internal/repository"
)

// Store keeps every table in maps guarded by one RWMutex. Records are
// copied on the way in and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	users     map[uint]models.User
	tokens    map[uint]models.Token
	devices   map[uint]models.Device
	locations map[uint]models.Location
	settings  map[uint]models.Setting

	seq map[string]uint
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     make(map[uint]models.User),
		tokens:    make(map[uint]models.Token),
		devices:   make(map[uint]models.Device),
		locations: make(map[uint]models.Location),
		settings:  make(map[uint]models.Setting),
		seq:       make(map[string]uint),
		now:       time.Now,
	}
}

func (s *Store) next(table string) uint {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return repository.ErrDuplicate
		}
		if u.AdminSlot != nil && existing.AdminSlot != nil {
			return repository.ErrDuplicate
		}
	}
	u.ID = s.next("users")
	s.stamp(&u.CreatedAt, &u.UpdatedAt)
	s.users[u.ID] = *u
	return nil
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, existing := range s.users {
		if id == u.ID {
			continue
		}
		if existing.Username == u.Username || (u.AdminSlot != nil && existing.AdminSlot != nil) {
			return repository.ErrDuplicate
		}
	}
	s.stamp(&u.CreatedAt, &u.UpdatedAt)
	s.users[u.ID] = *u
	return nil
}

func (s *Store) AdminExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.IsAdmin {
			return true, nil
		}
	}
	return false, nil
}

// Tokens

func (s *Store) CreateToken(ctx context.Context, t *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tokens {
		if existing.TokenHash == t.TokenHash {
			return repository.ErrDuplicate
		}
	}
	t.ID = s.next("tokens")
	s.stamp(&t.CreatedAt, nil)
	s.tokens[t.ID] = *t
	return nil
}

func (s *Store) TokenByHash(ctx context.Context, hash string) (*models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) TouchToken(ctx context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	at = at.UTC()
	t.LastUsedAt = &at
	s.tokens[id] = t
	return nil
}

func (s *Store) TokensForUser(ctx context.Context, userID uint) ([]models.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Token, 0)
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b models.Token) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) DeleteToken(ctx context.Context, userID, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok || t.UserID != userID {
		return repository.ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

// Devices

func (s *Store) CreateDevice(ctx context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deviceNameTaken(d.UserID, d.Name, 0) {
		return repository.ErrDuplicate
	}
	d.ID = s.next("devices")
	s.stamp(&d.CreatedAt, &d.UpdatedAt)
	s.devices[d.ID] = *d
	return nil
}

func (s *Store) deviceNameTaken(userID uint, name string, except uint) bool {
	for id, existing := range s.devices {
		if id != except && existing.UserID == userID && existing.Name == name {
			return true
		}
	}
	return false
}

func (s *Store) DeviceByID(ctx context.Context, id uint) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (s *Store) DevicesForUser(ctx context.Context, userID uint) ([]models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Device, 0)
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b models.Device) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) UpdateDevice(ctx context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[d.ID]; !ok {
		return repository.ErrNotFound
	}
	if s.deviceNameTaken(d.UserID, d.Name, d.ID) {
		return repository.ErrDuplicate
	}
	s.stamp(&d.CreatedAt, &d.UpdatedAt)
	s.devices[d.ID] = *d
	return nil
}

func (s *Store) DeleteDevice(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return repository.ErrNotFound
	}
	for lid, l := range s.locations {
		if l.DeviceID == id {
			delete(s.locations, lid)
		}
	}
	delete(s.devices, id)
	return nil
}

// Locations

func (s *Store) CreateLocation(ctx context.Context, l *models.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[l.DeviceID]; !ok {
		return repository.ErrNotFound
	}
	l.ID = s.next("locations")
	s.stamp(&l.CreatedAt, &l.UpdatedAt)
	s.locations[l.ID] = *l
	return nil
}

func (s *Store) LocationByID(ctx context.Context, id uint) (*models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.locations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (s *Store) UpdateLocation(ctx context.Context, l *models.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[l.ID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.devices[l.DeviceID]; !ok {
		return repository.ErrNotFound
	}
	s.stamp(&l.CreatedAt, &l.UpdatedAt)
	s.locations[l.ID] = *l
	return nil
}

func (s *Store) DeleteLocation(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.locations, id)
	return nil
}

// FindLocations ignores LatestOnly; the full ordered match set is always returned.
func (s *Store) FindLocations(ctx context.Context, f repository.LocationFilter) ([]models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Location, 0)
	for _, l := range s.locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, ok := s.devices[l.DeviceID]
		if !ok || d.UserID != f.OwnerID {
			continue
		}
		if f.DeviceID != nil && l.DeviceID != *f.DeviceID {
			continue
		}
		if f.From != nil && l.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && l.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b models.Location) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Settings

func (s *Store) CreateSetting(ctx context.Context, st *models.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settingKeyTaken(st.Key, 0) {
		return repository.ErrDuplicate
	}
	st.ID = s.next("settings")
	s.stamp(&st.CreatedAt, &st.UpdatedAt)
	s.settings[st.ID] = *st
	return nil
}

func (s *Store) settingKeyTaken(key string, except uint) bool {
	for id, existing := range s.settings {
		if id != except && existing.Key == key {
			return true
		}
	}
	return false
}

func (s *Store) SettingByID(ctx context.Context, id uint) (*models.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (s *Store) SettingByKey(ctx context.Context, key string) (*models.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.settings {
		if st.Key == key {
			return &st, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListSettings(ctx context.Context) ([]models.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Setting, 0, len(s.settings))
	for _, st := range s.settings {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b models.Setting) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) UpdateSetting(ctx context.Context, st *models.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[st.ID]; !ok {
		return repository.ErrNotFound
	}
	if s.settingKeyTaken(st.Key, st.ID) {
		return repository.ErrDuplicate
	}
	s.stamp(&st.CreatedAt, &st.UpdatedAt)
	s.settings[st.ID] = *st
	return nil
}

func (s *Store) DeleteSetting(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.settings, id)
	return nil
}
