package adjust

import (
	"math"

	"github.com/sells-group/comps-cli/internal/model"
)

const earthRadiusKM = 6371.0088

// Distance returns the great-circle distance in km between the subject and a
// comparable, or nil when either side lacks coordinates.
func Distance(subject model.SubjectProperty, comp model.Transaction) *float64 {
	if !subject.HasCoordinates() || !comp.HasCoordinates() {
		return nil
	}
	d := HaversineKM(*subject.Lat, *subject.Lon, *comp.Lat, *comp.Lon)
	return &d
}

// HaversineKM computes the great-circle distance between two WGS84 points.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(a)))
}
