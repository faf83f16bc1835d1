package scenario

// BuiltIn returns predefined journeys covering the situations the control
// loop has to survive: a daily commute, a long haul with a tunnel and a
// coverage gap, and a trailer that barely moves for a day.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"commute": {
			Name:        "Commute",
			Description: "A van tracker through one working day: short drives bracketing long stretches parked at the depot and at home.",
			StartUnix:   1772430300, // 2026-03-02 05:45 UTC
			Lat:         47.3769,
			Lon:         8.5417,
			Legs: []Leg{
				{Name: "overnight-park", DurationSeconds: 2700, Sky: SkyOpen},
				{Name: "drive-to-site", DurationSeconds: 2100, SpeedMPS: 13.4, HeadingDeg: 45, Sky: SkyOpen},
				{Name: "on-site", DurationSeconds: 30600, Sky: SkyDegraded},
				{Name: "drive-home", DurationSeconds: 2400, SpeedMPS: 12.0, HeadingDeg: 227, Sky: SkyOpen},
				{Name: "evening-park", DurationSeconds: 14400, Sky: SkyOpen},
			},
		},
		"long-haul": {
			Name:        "Long Haul",
			Description: "A trailer on a cross-border run: motorway stretches, a tunnel that kills both GPS and coverage, and a customs wait.",
			StartUnix:   1772433000, // 2026-03-02 06:30 UTC
			Lat:         48.1374,
			Lon:         11.5755,
			Legs: []Leg{
				{Name: "yard-pickup", DurationSeconds: 1800, Sky: SkyOpen},
				{Name: "autobahn-north", DurationSeconds: 10800, SpeedMPS: 24.6, HeadingDeg: 350, Sky: SkyOpen},
				{Name: "tunnel-pass", DurationSeconds: 1200, SpeedMPS: 22.0, HeadingDeg: 340, Sky: SkyDenied, NoCoverage: true},
				{Name: "autobahn-border", DurationSeconds: 9000, SpeedMPS: 23.5, HeadingDeg: 15, Sky: SkyOpen},
				{Name: "customs-wait", DurationSeconds: 5400, Sky: SkyDegraded},
				{Name: "final-approach", DurationSeconds: 3600, SpeedMPS: 19.0, HeadingDeg: 80, Sky: SkyOpen},
				{Name: "depot-unload", DurationSeconds: 7200, Sky: SkyOpen},
			},
		},
		"depot": {
			Name:        "Depot",
			Description: "A freshly fitted tracker on a stored trailer: a cold clock, a day of stillness, one yard shunt, then out the gate.",
			StartUnix:   1772452800, // 2026-03-02 12:00 UTC
			Lat:         53.5511,
			Lon:         9.9937,
			ColdClock:   true,
			Legs: []Leg{
				{Name: "trailer-parked", DurationSeconds: 21600, Sky: SkyOpen},
				{Name: "yard-shunt", DurationSeconds: 600, SpeedMPS: 4.0, HeadingDeg: 120, Sky: SkyOpen},
				{Name: "trailer-parked-again", DurationSeconds: 64800, Sky: SkyOpen},
				{Name: "gate-out", DurationSeconds: 1500, SpeedMPS: 8.0, HeadingDeg: 200, Sky: SkyOpen},
				{Name: "street-park", DurationSeconds: 10800, Sky: SkyDegraded},
			},
		},
	}
}
