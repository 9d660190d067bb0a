package location

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"onloc/internal/apperr"
	"onloc/internal/models"
	"onloc/internal/repository"
)

const dateLayout = "2006-01-02"

// Params are the raw query-string values of a history request.
type Params struct {
	DeviceID  string
	StartDate string
	EndDate   string
	Latest    string
}

// Query is a parsed history request. From and To are inclusive UTC bounds.
type Query struct {
	DeviceID *uint
	From     *time.Time
	To       *time.Time
	Latest   bool
}

// Group holds one device's samples in ascending (created_at, id) order.
type Group struct {
	DeviceID  uint              `json:"device_id"`
	Locations []models.Location `json:"locations"`
}

// ParseQuery validates raw parameters. All field problems are reported together.
func ParseQuery(p Params) (Query, error) {
	var q Query
	fields := map[string]string{}

	if v := strings.TrimSpace(p.DeviceID); v != "" {
		id, err := ParseDeviceID(v)
		if err != nil {
			fields["device_id"] = "must be a positive integer"
		} else {
			q.DeviceID = &id
		}
	}
	if v := strings.TrimSpace(p.StartDate); v != "" {
		from, _, err := dayBounds(v)
		if err != nil {
			fields["start_date"] = "is not a valid date"
		} else {
			q.From = &from
		}
	}
	if v := strings.TrimSpace(p.EndDate); v != "" {
		_, to, err := dayBounds(v)
		if err != nil {
			fields["end_date"] = "is not a valid date"
		} else {
			q.To = &to
		}
	}
	if v := strings.TrimSpace(p.Latest); v != "" {
		switch strings.ToLower(v) {
		case "true", "1":
			q.Latest = true
		case "false", "0":
		default:
			fields["latest"] = "must be true or false"
		}
	}

	if len(fields) > 0 {
		return Query{}, apperr.Validation("the given data was invalid", fields)
	}
	return q, nil
}

// ParseDeviceID accepts only positive decimal integers.
func ParseDeviceID(v string) (uint, error) {
	id, err := strconv.ParseUint(v, 10, strconv.IntSize)
	if err != nil || id == 0 {
		return 0, apperr.Field("device_id", "must be a positive integer")
	}
	return uint(id), nil
}

// dayBounds returns the first and last instant of the calendar day named by
// v. A bare date is a UTC day; an RFC 3339 timestamp names the day in its
// own offset.
func dayBounds(v string) (time.Time, time.Time, error) {
	var t time.Time
	var err error
	if len(v) == len(dateLayout) {
		t, err = time.Parse(dateLayout, v)
	} else {
		t, err = time.Parse(time.RFC3339Nano, v)
	}
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start.UTC(), end.UTC(), nil
}

// Engine answers read-only history queries. Every query is restricted to
// the requester's devices inside the storage filter.
type Engine struct {
	locations repository.LocationRepository
	lg        *zap.SugaredLogger
}

func NewEngine(locations repository.LocationRepository, lg *zap.SugaredLogger) *Engine {
	return &Engine{locations: locations, lg: lg}
}

// List returns the requester's samples grouped per device. An empty result
// is an empty slice.
func (e *Engine) List(ctx context.Context, requester *models.User, q Query) ([]Group, error) {
	locs, err := e.locations.FindLocations(ctx, repository.LocationFilter{
		OwnerID:    requester.ID,
		DeviceID:   q.DeviceID,
		From:       q.From,
		To:         q.To,
		LatestOnly: q.Latest,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	groups := Aggregate(locs, q.Latest)
	e.lg.Debugw("location query", "user_id", requester.ID, "matched", len(locs), "groups", len(groups), "latest", q.Latest)
	return groups, nil
}

// Aggregate groups samples by device in first-encounter order. The input
// must already be sorted by (created_at, id). With latest set each group
// keeps only its final sample.
func Aggregate(locs []models.Location, latest bool) []Group {
	groups := make([]Group, 0)
	index := make(map[uint]int)
	for _, l := range locs {
		i, ok := index[l.DeviceID]
		if !ok {
			i = len(groups)
			index[l.DeviceID] = i
			groups = append(groups, Group{DeviceID: l.DeviceID})
		}
		groups[i].Locations = append(groups[i].Locations, l)
	}
	if latest {
		for i := range groups {
			n := len(groups[i].Locations)
			groups[i].Locations = groups[i].Locations[n-1:]
		}
	}
	return groups
}

// Latest returns the newest sample of each of the requester's devices,
// keyed by device id.
func (e *Engine) Latest(ctx context.Context, requester *models.User) (map[uint]models.Location, error) {
	groups, err := e.List(ctx, requester, Query{Latest: true})
	if err != nil {
		return nil, err
	}
	out := make(map[uint]models.Location, len(groups))
	for _, g := range groups {
		out[g.DeviceID] = g.Locations[0]
	}
	return out, nil
}

// AvailableDates lists the distinct UTC calendar days on which the
// requester's devices reported, ascending.
func (e *Engine) AvailableDates(ctx context.Context, requester *models.User, deviceID *uint) ([]string, error) {
	locs, err := e.locations.FindLocations(ctx, repository.LocationFilter{
		OwnerID:  requester.ID,
		DeviceID: deviceID,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	dates := make([]string, 0)
	for _, l := range locs {
		d := l.CreatedAt.UTC().Format(dateLayout)
		// input is time-ordered, so equal days are adjacent
		if n := len(dates); n > 0 && dates[n-1] == d {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}
