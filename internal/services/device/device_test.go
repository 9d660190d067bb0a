package device

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"go.uber.org/zap/zaptest"

	"onloc/internal/apperr"
	"onloc/internal/models"
	"onloc/internal/repository"
	"onloc/internal/repository/memrepo"
	"onloc/internal/services/location"
)

// brokenLocations fails every location query.
type brokenLocations struct{ *memrepo.Store }

func (brokenLocations) FindLocations(context.Context, repository.LocationFilter) ([]models.Location, error) {
	return nil, errors.New("storage unavailable")
}

type fixture struct {
	store     *memrepo.Store
	svc       *Service
	locations *location.Service
	alice     *models.User
	bob       *models.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memrepo.New()
	lg := zaptest.NewLogger(t).Sugar()
	f := fixture{
		store:     store,
		svc:       NewService(store, location.NewEngine(store, lg), lg),
		locations: location.NewService(store, store, nil, lg),
		alice:     &models.User{Username: "alice", PasswordHash: "x"},
		bob:       &models.User{Username: "bob", PasswordHash: "x"},
	}
	for _, u := range []*models.User{f.alice, f.bob} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func TestNameUniquePerUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Create(ctx, f.alice, Input{Name: "phone"}); err != nil {
		t.Fatalf("first phone: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.alice, Input{Name: "phone"}); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("second phone for same user: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.bob, Input{Name: "phone"}); err != nil {
		t.Errorf("phone for another user: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	long := string(make([]byte, 256))
	for _, in := range []Input{{Name: ""}, {Name: "   "}, {Name: "ok", Icon: &long}} {
		if _, err := f.svc.Create(ctx, f.alice, in); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("Create(%+v) = %v, want validation", in, err)
		}
	}
}

func TestOwnershipOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, _ := f.svc.Create(ctx, f.alice, Input{Name: "phone"})

	if _, err := f.svc.Get(ctx, f.bob, d.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign Get: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.bob, 999); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing Get: %v", err)
	}
	name := "stolen"
	if _, err := f.svc.Update(ctx, f.bob, d.ID, UpdateInput{Name: &name}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign Update: %v", err)
	}
	if err := f.svc.Delete(ctx, f.bob, d.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign Delete: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	icon := "smartphone"
	d, _ := f.svc.Create(ctx, f.alice, Input{Name: "phone", Icon: &icon})
	if _, err := f.svc.Create(ctx, f.alice, Input{Name: "tablet"}); err != nil {
		t.Fatal(err)
	}

	taken := "tablet"
	if _, err := f.svc.Update(ctx, f.alice, d.ID, UpdateInput{Name: &taken}); !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("rename collision: %v", err)
	}

	name, empty := "pixel", ""
	got, err := f.svc.Update(ctx, f.alice, d.ID, UpdateInput{Name: &name, Icon: &empty})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "pixel" || got.Icon != nil || got.UserID != f.alice.ID {
		t.Errorf("updated = %+v", got)
	}
}

func TestListForOwnerWithLatest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	phone, _ := f.svc.Create(ctx, f.alice, Input{Name: "phone"})
	tablet, _ := f.svc.Create(ctx, f.alice, Input{Name: "tablet"})
	if _, err := f.svc.Create(ctx, f.bob, Input{Name: "phone"}); err != nil {
		t.Fatal(err)
	}

	lat, lon := 1.0, 2.0
	var last *models.Location
	for i := 0; i < 3; i++ {
		l, err := f.locations.Append(ctx, f.alice, location.Sample{DeviceID: phone.ID, Latitude: &lat, Longitude: &lon})
		if err != nil {
			t.Fatal(err)
		}
		last = l
	}

	list, err := f.svc.ListForOwner(ctx, f.alice)
	if err != nil {
		t.Fatalf("ListForOwner: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d devices, want 2", len(list))
	}
	for _, d := range list {
		switch d.ID {
		case phone.ID:
			if d.LatestLocation == nil || d.LatestLocation.ID != last.ID {
				t.Errorf("phone latest = %+v, want id %d", d.LatestLocation, last.ID)
			}
		case tablet.ID:
			if d.LatestLocation != nil {
				t.Errorf("tablet latest = %+v, want nil", d.LatestLocation)
			}
		default:
			t.Errorf("unexpected device %d", d.ID)
		}
	}
}

func TestDeleteRemovesLocations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d, _ := f.svc.Create(ctx, f.alice, Input{Name: "phone"})
	lat, lon := 1.0, 2.0
	l, err := f.locations.Append(ctx, f.alice, location.Sample{DeviceID: d.ID, Latitude: &lat, Longitude: &lon})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Delete(ctx, f.alice, d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.locations.Get(ctx, f.alice, l.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("location survived its device: %v", err)
	}
	if err := f.svc.Delete(ctx, f.alice, d.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("second Delete: %v", err)
	}
}

func TestListForOwnerReportsLocationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Create(ctx, f.alice, Input{Name: "phone"}); err != nil {
		t.Fatal(err)
	}
	lg := zaptest.NewLogger(t).Sugar()
	svc := NewService(f.store, location.NewEngine(brokenLocations{f.store}, lg), lg)

	list, err := svc.ListForOwner(ctx, f.alice)
	if !apperr.Is(err, apperr.KindInternal) || list != nil {
		t.Errorf("ListForOwner = %v, %v; want nil, internal", list, err)
	}
}

// TestForeignDevicesUntouchable assigns devices to random owners and checks
// that nobody else can read, rename or delete them.
func TestForeignDevicesUntouchable(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 10; round++ {
		f := newFixture(t)
		carol := &models.User{Username: "carol", PasswordHash: "x"}
		if err := f.store.CreateUser(ctx, carol); err != nil {
			t.Fatal(err)
		}
		users := []*models.User{f.alice, f.bob, carol}

		var devices []*models.Device
		for i := 0; i < 8; i++ {
			d, err := f.svc.Create(ctx, users[rng.Intn(len(users))], Input{Name: fmt.Sprintf("d%d", i)})
			if err != nil {
				t.Fatal(err)
			}
			devices = append(devices, d)
		}

		for _, u := range users {
			for _, d := range devices {
				if d.UserID == u.ID {
					continue
				}
				if _, err := f.svc.Get(ctx, u, d.ID); !apperr.Is(err, apperr.KindForbidden) {
					t.Fatalf("round %d: user %d Get device %d: %v", round, u.ID, d.ID, err)
				}
				name := "taken-" + u.Username
				if _, err := f.svc.Update(ctx, u, d.ID, UpdateInput{Name: &name}); !apperr.Is(err, apperr.KindForbidden) {
					t.Fatalf("round %d: user %d Update device %d: %v", round, u.ID, d.ID, err)
				}
				if err := f.svc.Delete(ctx, u, d.ID); !apperr.Is(err, apperr.KindForbidden) {
					t.Fatalf("round %d: user %d Delete device %d: %v", round, u.ID, d.ID, err)
				}
			}

			list, err := f.svc.ListForOwner(ctx, u)
			if err != nil {
				t.Fatal(err)
			}
			for _, d := range list {
				if d.UserID != u.ID {
					t.Fatalf("round %d: user %d lists device %d of user %d", round, u.ID, d.ID, d.UserID)
				}
			}
		}

		for _, d := range devices {
			stored, err := f.store.DeviceByID(ctx, d.ID)
			if err != nil || stored.Name != d.Name || stored.UserID != d.UserID {
				t.Fatalf("round %d: device %d changed: %+v, %v", round, d.ID, stored, err)
			}
		}
	}
}
