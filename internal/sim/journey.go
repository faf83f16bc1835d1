package sim

import (
	"math"
	"time"

	"trackerd/internal/scenario"
)

// Snapshot is the journey's ground truth at one instant.
type Snapshot struct {
	Lat      float64
	Lon      float64
	Leg      string
	Moving   bool
	Sky      scenario.Sky
	Coverage bool
	Ended    bool
}

// Journey plays a scenario's legs into positions over time.
type Journey struct {
	scn   *scenario.Scenario
	start time.Time
	end   time.Time
}

func NewJourney(scn *scenario.Scenario) *Journey {
	start := scn.Start()
	return &Journey{scn: scn, start: start, end: start.Add(scn.Duration())}
}

func (j *Journey) Start() time.Time { return j.start }
func (j *Journey) End() time.Time   { return j.end }

// Distance returns the total distance travelled over the whole journey,
// in meters.
func (j *Journey) Distance() float64 {
	var m float64
	for _, leg := range j.scn.Legs {
		m += leg.SpeedMPS * float64(leg.DurationSeconds)
	}
	return m
}

// At returns ground truth at time t: the active leg and the position
// integrated along every leg up to t. Past the end the asset sits parked
// at its terminal position under the final leg's conditions.
func (j *Journey) At(t time.Time) Snapshot {
	elapsed := t.Sub(j.start)
	if elapsed < 0 {
		elapsed = 0
	}
	lat, lon := j.scn.Lat, j.scn.Lon
	remaining := elapsed
	for _, leg := range j.scn.Legs {
		d := leg.Duration()
		if remaining < d {
			if leg.Moving() {
				lat, lon = advance(lat, lon, leg.SpeedMPS*remaining.Seconds(), leg.HeadingDeg)
			}
			return Snapshot{
				Lat:      lat,
				Lon:      lon,
				Leg:      leg.Name,
				Moving:   leg.Moving(),
				Sky:      leg.Sky,
				Coverage: !leg.NoCoverage,
			}
		}
		if leg.Moving() {
			lat, lon = advance(lat, lon, leg.SpeedMPS*d.Seconds(), leg.HeadingDeg)
		}
		remaining -= d
	}
	snap := Snapshot{Lat: lat, Lon: lon, Ended: true, Coverage: true, Sky: scenario.SkyOpen}
	if n := len(j.scn.Legs); n > 0 {
		last := j.scn.Legs[n-1]
		snap.Leg = last.Name
		snap.Sky = last.Sky
		snap.Coverage = !last.NoCoverage
	}
	return snap
}

// NextMotionOnset returns the first instant after from, and no later
// than from+within, at which the asset is moving. Motion already in
// progress reports an onset one second in, like an accelerometer
// interrupt firing as soon as it is armed.
func (j *Journey) NextMotionOnset(from time.Time, within time.Duration) (time.Time, bool) {
	deadline := from.Add(within)
	if j.At(from).Moving {
		t := from.Add(time.Second)
		if t.After(deadline) {
			return time.Time{}, false
		}
		return t, true
	}
	cursor := j.start
	for _, leg := range j.scn.Legs {
		if leg.Moving() && cursor.After(from) {
			if cursor.After(deadline) {
				return time.Time{}, false
			}
			return cursor, true
		}
		cursor = cursor.Add(leg.Duration())
	}
	return time.Time{}, false
}

// advance moves a position dist meters along a compass heading, using a
// flat-earth approximation good to a few meters at journey scale.
func advance(lat, lon, dist, headingDeg float64) (float64, float64) {
	rad := headingDeg * math.Pi / 180
	deltaLat := (dist * math.Cos(rad)) / 111000
	deltaLon := (dist * math.Sin(rad)) / (111000 * math.Cos(lat*math.Pi/180))
	return lat + deltaLat, lon + deltaLon
}

// distanceMeters calculates the haversine distance between two lat/lon
// points.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}
