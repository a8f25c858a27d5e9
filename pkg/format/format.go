// Package format renders money, distances and relative times for API
// responses and notification copy.
package format

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// earthRadiusMeters matches the WGS-84 equatorial radius.
const earthRadiusMeters = 6378137.0

var printer = message.NewPrinter(language.English)

// Rupiah groups thousands with commas. Whole amounts print without decimals,
// fractional amounts keep two places.
func Rupiah(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	if rounded.IsInteger() {
		return printer.Sprintf("%d", rounded.IntPart())
	}
	f, _ := rounded.Float64()
	return printer.Sprintf("%.2f", f)
}

// Location is a point in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude" firestore:"latitude"`
	Longitude float64 `json:"longitude" firestore:"longitude"`
}

// DistanceMeters is the great-circle distance between two points, rounded to
// whole meters.
func DistanceMeters(a, b Location) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return math.Round(earthRadiusMeters * c)
}

// Distance renders the distance between two optional points as "850 m" or
// "2.4 km". It returns nil when either point is missing.
func Distance(a, b *Location) *string {
	if a == nil || b == nil {
		return nil
	}
	meters := DistanceMeters(*a, *b)
	var out string
	if meters < 1000 {
		out = fmt.Sprintf("%.0f m", meters)
	} else {
		out = fmt.Sprintf("%.1f km", meters/1000)
	}
	return &out
}

// TimeAgo describes how long before now t happened.
func TimeAgo(t, now time.Time) string {
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return plural(int(elapsed/time.Minute), "minute")
	case elapsed < 24*time.Hour:
		return plural(int(elapsed/time.Hour), "hour")
	default:
		return plural(int(elapsed/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
