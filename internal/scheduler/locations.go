package scheduler

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
	"github.com/Drakonis96/optimAIzer-sub001/internal/store"
	"github.com/Drakonis96/optimAIzer-sub001/internal/utils/id"
)

// defaultLocationCooldown keeps a geofence from re-firing on every position
// update while the user stays inside the radius.
const defaultLocationCooldown = 30 * time.Minute

const earthRadiusMeters = 6371000

// LocationReminder is a geofence: when an inbound location update falls
// within RadiusMeters of (Lat, Lon), the message fires. Matching happens in
// the transport gateway; the scheduler stores and filters.
type LocationReminder struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Message       string     `json:"message"`
	Lat           float64    `json:"lat"`
	Lon           float64    `json:"lon"`
	RadiusMeters  float64    `json:"radius_meters"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	Enabled       bool       `json:"enabled"`
}

// CreateLocationReminder validates and persists a reminder.
func (s *Scheduler) CreateLocationReminder(ctx context.Context, rem LocationReminder) (LocationReminder, error) {
	rem.Message = strings.TrimSpace(rem.Message)
	if rem.Message == "" {
		return LocationReminder{}, errors.NewValidation("message", "message is required")
	}
	if rem.Lat < -90 || rem.Lat > 90 {
		return LocationReminder{}, errors.NewValidation("lat", fmt.Sprintf("latitude %v out of range", rem.Lat))
	}
	if rem.Lon < -180 || rem.Lon > 180 {
		return LocationReminder{}, errors.NewValidation("lon", fmt.Sprintf("longitude %v out of range", rem.Lon))
	}
	if rem.RadiusMeters <= 0 {
		return LocationReminder{}, errors.NewValidation("radius_meters", "radius must be positive")
	}
	if rem.ID == "" {
		rem.ID = id.NewReminderID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rems := append(cloneLocations(s.locations), rem)
	if err := s.saveLocationsLocked(ctx, rems); err != nil {
		return LocationReminder{}, err
	}
	return rem, nil
}

// UpdateLocationReminder applies mutate to the stored reminder and persists.
func (s *Scheduler) UpdateLocationReminder(ctx context.Context, remID string, mutate func(*LocationReminder)) (LocationReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rems := cloneLocations(s.locations)
	idx := -1
	for i := range rems {
		if rems[i].ID == remID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LocationReminder{}, errors.NewNotFound("location reminder", remID)
	}
	mutate(&rems[idx])
	rems[idx].ID = remID
	if err := s.saveLocationsLocked(ctx, rems); err != nil {
		return LocationReminder{}, err
	}
	return rems[idx], nil
}

// DeleteLocationReminder removes the reminder.
func (s *Scheduler) DeleteLocationReminder(ctx context.Context, remID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rems := cloneLocations(s.locations)
	idx := -1
	for i := range rems {
		if rems[i].ID == remID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.NewNotFound("location reminder", remID)
	}
	rems = append(rems[:idx], rems[idx+1:]...)
	return s.saveLocationsLocked(ctx, rems)
}

// LocationReminders returns a copy of the reminder list.
func (s *Scheduler) LocationReminders() []LocationReminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLocations(s.locations)
}

// MatchLocation returns the reminders triggered by a position update: inside
// the radius, enabled, and past the re-fire cooldown. Matches are stamped and
// persisted before returning; the caller runs the resulting turns.
func (s *Scheduler) MatchLocation(ctx context.Context, lat, lon float64) []LocationReminder {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rems := cloneLocations(s.locations)
	matched := make([]LocationReminder, 0, 1)
	changed := false
	for i := range rems {
		if !rems[i].Enabled {
			continue
		}
		if haversineMeters(lat, lon, rems[i].Lat, rems[i].Lon) > rems[i].RadiusMeters {
			continue
		}
		if rems[i].LastTriggered != nil && now.Sub(*rems[i].LastTriggered) < defaultLocationCooldown {
			continue
		}
		stamp := now
		rems[i].LastTriggered = &stamp
		matched = append(matched, rems[i])
		changed = true
	}
	if changed {
		if err := s.saveLocationsLocked(ctx, rems); err != nil {
			s.logger.Warn("persist location trigger stamps failed: %v", err)
		}
	}
	return matched
}

func (s *Scheduler) saveLocationsLocked(ctx context.Context, rems []LocationReminder) error {
	if err := store.PutJSON(ctx, s.deps.Store, s.collectionKey(store.CollectionLocations), rems); err != nil {
		return fmt.Errorf("persist location reminders: %w", err)
	}
	s.locations = rems
	return nil
}

func cloneLocations(rems []LocationReminder) []LocationReminder {
	out := make([]LocationReminder, len(rems))
	copy(out, rems)
	return out
}

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
