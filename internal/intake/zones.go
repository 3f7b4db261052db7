package intake

// zone is a fixed named area with an approximate coordinate. The USSD channel
// has no device GPS, so locations resolve through this table.
type zone struct {
	Lat float64
	Lng float64
}

// DetectedZone is the pseudo-zone used when the caller picks "Current
// (Detect)" or the zone name is unrecognized.
const DetectedZone = "Detected"

var zones = map[string]zone{
	"Bole":       {Lat: 8.9894, Lng: 38.7884},
	"Piassa":     {Lat: 9.0356, Lng: 38.7512},
	"Arada":      {Lat: 9.0300, Lng: 38.7500},
	DetectedZone: {Lat: 9.0197, Lng: 38.7469},
}

// resolveZone maps a zone label to its coordinate, falling back to the
// Detected pseudo-zone for unknown labels.
func resolveZone(name string) (float64, float64) {
	z, ok := zones[name]
	if !ok {
		z = zones[DetectedZone]
	}
	return z.Lat, z.Lng
}
