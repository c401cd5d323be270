package schedule

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"screen-automations/internal/domain"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = domain.ErrInvalidTimezone

// Resolver переводит имена часовых поясов правил в *time.Location.
// Некорректные имена заменяются поясом по умолчанию.
type Resolver struct {
	fallback *time.Location

	mu    sync.RWMutex
	cache map[string]*time.Location
}

// NewResolver создаёт резолвер с поясом по умолчанию.
func NewResolver(defaultZone string) (*Resolver, error) {
	normalized, err := normalizeTimezone(defaultZone)
	if err != nil {
		return nil, fmt.Errorf("пояс по умолчанию %q: %w", defaultZone, err)
	}
	loc, err := time.LoadLocation(normalized)
	if err != nil {
		return nil, fmt.Errorf("пояс по умолчанию %q: %w", defaultZone, err)
	}
	return &Resolver{fallback: loc, cache: make(map[string]*time.Location)}, nil
}

// Default возвращает пояс по умолчанию.
func (r *Resolver) Default() *time.Location {
	return r.fallback
}

// Resolve возвращает пояс правила. При ошибке разбора возвращается
// пояс по умолчанию вместе с ошибкой.
func (r *Resolver) Resolve(raw string) (*time.Location, error) {
	key := strings.TrimSpace(raw)
	r.mu.RLock()
	loc, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return loc, nil
	}

	normalized, err := normalizeTimezone(key)
	if err != nil {
		return r.fallback, fmt.Errorf("%q: %w", raw, err)
	}
	loc, err = time.LoadLocation(normalized)
	if err != nil {
		return r.fallback, fmt.Errorf("%q: %w", raw, ErrInvalidTimezone)
	}

	r.mu.Lock()
	r.cache[key] = loc
	r.mu.Unlock()
	return loc, nil
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	// "Local" у time.LoadLocation означает пояс процесса, а не правила.
	if candidate == "" || strings.EqualFold(candidate, "local") {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
