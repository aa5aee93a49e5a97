package driver

// MeasureSpec declares one measure of a rig profile.
type MeasureSpec struct {
	ID      string
	Kind    string
	Unit    string
	Initial float64

	// NoiseMin and NoiseMax bound sensor noise for free-running measures.
	// Ignored for measures linked to a command.
	NoiseMin float64
	NoiseMax float64
}

// CommandSpec declares one controllable output of a rig profile.
type CommandSpec struct {
	ID            string
	LinkedMeasure string
	Min           float64
	Max           float64
	Verbs         []Verb
}

// Profile declares the measures and commands a rig exposes. Registration
// order is the iteration order the driver guarantees.
type Profile struct {
	Name     string
	Vendor   string
	Model    string
	Measures []MeasureSpec
	Commands []CommandSpec
}

// RoasterProfile returns the default simulated rig: two free-running
// temperature probes and two controlled outputs (burner and fan, both in
// percent).
func RoasterProfile() Profile {
	verbs := []Verb{VerbSetTo, VerbIncrease, VerbDecrease, VerbTakeControl}

	return Profile{
		Name:   "roastsight-sim",
		Vendor: "Eventect",
		Model:  "RS-1",
		Measures: []MeasureSpec{
			{ID: "beanTemperature", Kind: "temperature", Unit: "celsius", Initial: 180, NoiseMin: 150, NoiseMax: 240},
			{ID: "drumTemperature", Kind: "temperature", Unit: "celsius", Initial: 210, NoiseMin: 180, NoiseMax: 260},
			{ID: "burnerLevel", Kind: "output", Unit: "percent", Initial: 0},
			{ID: "fanLevel", Kind: "output", Unit: "percent", Initial: 0},
		},
		Commands: []CommandSpec{
			{ID: "burnerLevel", LinkedMeasure: "burnerLevel", Min: 0, Max: 100, Verbs: verbs},
			{ID: "fanLevel", LinkedMeasure: "fanLevel", Min: 0, Max: 100, Verbs: verbs},
		},
	}
}
