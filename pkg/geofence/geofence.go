package geofence

import (
	"fmt"
	"math"
	"time"
)

const earthRadiusMeters = 6371000.0

// DefaultRadiusMeters радиус геозоны по умолчанию
const DefaultRadiusMeters = 10.0

// Position координаты с временем получения
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"` // метры, 0 - неизвестно
	Timestamp time.Time `json:"timestamp"`
}

// IsValid проверяет диапазоны широты и долготы
func (p Position) IsValid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

func (p Position) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

// Region круговая геозона
type Region struct {
	ID           string  `json:"id"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Contains проверяет, находится ли точка внутри геозоны
func (r Region) Contains(p Position) bool {
	return Distance(r.Latitude, r.Longitude, p.Latitude, p.Longitude) <= r.RadiusMeters
}

// EventType тип перехода через границу геозоны
type EventType string

const (
	EventEnter EventType = "enter"
	EventExit  EventType = "exit"
)

// Event переход через границу геозоны
type Event struct {
	Type     EventType `json:"type"`
	RegionID string    `json:"region_id"`
	Position Position  `json:"position"`
}

// Distance расстояние между двумя точками в метрах (формула гаверсинусов)
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
