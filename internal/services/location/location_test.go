package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"onloc/internal/apperr"
	"onloc/internal/models"
	"onloc/internal/repository/memrepo"
)

type recorder struct {
	mu     sync.Mutex
	events map[uint][]any
}

func (r *recorder) Publish(userID uint, event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[uint][]any{}
	}
	r.events[userID] = append(r.events[userID], event)
}

type world struct {
	store  *memrepo.Store
	svc    *Service
	engine *Engine
	pub    *recorder
	clock  time.Time
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store := memrepo.New()
	lg := zaptest.NewLogger(t).Sugar()
	w := &world{store: store, pub: &recorder{}, clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	w.svc = NewService(store, store, w.pub, lg)
	w.svc.now = func() time.Time { return w.clock }
	w.engine = NewEngine(store, lg)
	return w
}

func (w *world) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, PasswordHash: "x"}
	if err := w.store.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (w *world) device(t *testing.T, owner *models.User, name string) *models.Device {
	t.Helper()
	d := &models.Device{UserID: owner.ID, Name: name}
	if err := w.store.CreateDevice(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	return d
}

func (w *world) appendAt(t *testing.T, u *models.User, deviceID uint, at time.Time) *models.Location {
	t.Helper()
	w.clock = at
	lat, lon := 52.5, 13.4
	l, err := w.svc.Append(context.Background(), u, Sample{DeviceID: deviceID, Latitude: &lat, Longitude: &lon})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return l
}

func f64(v float64) *float64 { return &v }

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice := w.user(t, "alice")
	d := w.device(t, alice, "phone")

	cases := []struct {
		name  string
		in    Sample
		field string
	}{
		{"missing latitude", Sample{DeviceID: d.ID, Longitude: f64(1)}, "latitude"},
		{"missing longitude", Sample{DeviceID: d.ID, Latitude: f64(1)}, "longitude"},
		{"missing device", Sample{Latitude: f64(1), Longitude: f64(1)}, "device_id"},
		{"latitude range", Sample{DeviceID: d.ID, Latitude: f64(90.5), Longitude: f64(1)}, "latitude"},
		{"longitude range", Sample{DeviceID: d.ID, Latitude: f64(1), Longitude: f64(-181)}, "longitude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.svc.Append(ctx, alice, tc.in)
			ae, ok := err.(*apperr.Error)
			if !ok || ae.Kind != apperr.KindValidation || ae.Fields[tc.field] == "" {
				t.Errorf("err = %v, want validation on %s", err, tc.field)
			}
		})
	}

	// zero is a real coordinate
	if _, err := w.svc.Append(ctx, alice, Sample{DeviceID: d.ID, Latitude: f64(0), Longitude: f64(0)}); err != nil {
		t.Errorf("equator sample rejected: %v", err)
	}
}

func TestAppendOwnership(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice, bob := w.user(t, "alice"), w.user(t, "bob")
	d := w.device(t, alice, "phone")
	in := Sample{DeviceID: d.ID, Latitude: f64(1), Longitude: f64(1)}

	if _, err := w.svc.Append(ctx, bob, in); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign device: %v", err)
	}
	in.DeviceID = 999
	if _, err := w.svc.Append(ctx, alice, in); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown device: %v", err)
	}
}

func TestAppendIgnoresClientTimeAndPublishes(t *testing.T) {
	w := newWorld(t)
	alice := w.user(t, "alice")
	d := w.device(t, alice, "phone")

	at := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	l := w.appendAt(t, alice, d.ID, at)
	if !l.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want server clock %v", l.CreatedAt, at)
	}

	events := w.pub.events[alice.ID]
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	ev, ok := events[0].(Event)
	if !ok || ev.Type != EventLocation || ev.Data.ID != l.ID {
		t.Errorf("event = %#v", events[0])
	}
}

func TestGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	alice, bob := w.user(t, "alice"), w.user(t, "bob")
	phone := w.device(t, alice, "phone")
	tablet := w.device(t, alice, "tablet")
	bobs := w.device(t, bob, "phone")
	l := w.appendAt(t, alice, phone.ID, w.clock)

	if _, err := w.svc.Get(ctx, bob, l.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign Get: %v", err)
	}
	if _, err := w.svc.Get(ctx, alice, 12345); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing Get: %v", err)
	}

	if _, err := w.svc.Update(ctx, alice, l.ID, Patch{DeviceID: &bobs.ID}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("move to foreign device: %v", err)
	}
	if _, err := w.svc.Update(ctx, alice, l.ID, Patch{Latitude: f64(-91)}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("out-of-range patch: %v", err)
	}
	got, err := w.svc.Update(ctx, alice, l.ID, Patch{DeviceID: &tablet.ID, Speed: f64(3)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.DeviceID != tablet.ID || got.Speed == nil || *got.Speed != 3 || !got.CreatedAt.Equal(l.CreatedAt) {
		t.Errorf("updated = %+v", got)
	}

	if err := w.svc.Delete(ctx, bob, l.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("foreign Delete: %v", err)
	}
	if err := w.svc.Delete(ctx, alice, l.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := w.svc.Delete(ctx, alice, l.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("second Delete: %v", err)
	}
}
