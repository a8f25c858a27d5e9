package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryFloat reads an optional float in [min, max]. ok is false when
// the parameter is absent.
func ParseQueryFloat(r *http.Request, key string, min, max float64) (value float64, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, false, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, true, nil
}

// ParseQueryCoordinates reads the optional lat/lng pair. Both or neither
// must be present.
func ParseQueryCoordinates(r *http.Request) (lat, lng float64, ok bool, err error) {
	lat, hasLat, err := ParseQueryFloat(r, "lat", -90, 90)
	if err != nil {
		return 0, 0, false, err
	}
	lng, hasLng, err := ParseQueryFloat(r, "lng", -180, 180)
	if err != nil {
		return 0, 0, false, err
	}
	if hasLat != hasLng {
		return 0, 0, false, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be provided together")
	}
	return lat, lng, hasLat, nil
}
