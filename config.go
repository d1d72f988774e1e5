package astrokit

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Scenario is a propagation and coverage run loaded from a TOML file. It is
// only a binary-boundary concern: the library types never read files.
type Scenario struct {
	Name      string
	Start     time.Time
	End       time.Time
	Step      time.Duration
	Tolerance float64
	Method    Method

	Perts      Perturbations
	Satellites []ScenarioSatellite
	Stations   []Station

	Coverage  ScenarioCoverage
	OutputDir string
}

// ScenarioSatellite is one spacecraft of a scenario, defined either by
// classical elements or by a two-line element set.
type ScenarioSatellite struct {
	Name  string
	Orbit *Orbit // nil when TLE-defined
	TLE   *TLE   // nil when element-defined
}

// ScenarioCoverage configures the optional coverage analysis of a scenario.
type ScenarioCoverage struct {
	Enabled      bool
	Region       Region
	Resolution   float64
	MinElevation float64
	SpatialIndex bool
}

// LoadScenario reads a scenario TOML file.
func LoadScenario(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	scen := &Scenario{
		Name:      v.GetString("general.name"),
		Step:      v.GetDuration("propagation.step"),
		Tolerance: v.GetFloat64("propagation.tolerance"),
		OutputDir: v.GetString("general.output_dir"),
	}
	var err error
	if scen.Start, err = time.Parse(time.RFC3339, v.GetString("propagation.start")); err != nil {
		return nil, fmt.Errorf("propagation.start: %w", err)
	}
	if scen.End, err = time.Parse(time.RFC3339, v.GetString("propagation.end")); err != nil {
		return nil, fmt.Errorf("propagation.end: %w", err)
	}
	switch method := strings.ToLower(v.GetString("propagation.method")); method {
	case "", "rk78":
		scen.Method = MethodRK78
	case "abm4":
		scen.Method = MethodABM4
	default:
		return nil, fmt.Errorf("unknown propagation.method %q", method)
	}

	scen.Perts = Perturbations{
		J2: v.GetBool("perturbations.j2"),
		J3: v.GetBool("perturbations.j3"),
		J4: v.GetBool("perturbations.j4"),
		J6: v.GetBool("perturbations.j6"),
	}
	if v.GetBool("perturbations.drag") {
		scen.Perts.Drag = &DragConfig{
			Cd:    v.GetFloat64("spacecraft.cd"),
			Area:  v.GetFloat64("spacecraft.drag_area"),
			Mass:  v.GetFloat64("spacecraft.mass"),
			Model: NewExponentialAtmosphere(),
		}
	}
	if v.GetBool("perturbations.srp") {
		scen.Perts.SRP = &SRPConfig{
			Cr:   v.GetFloat64("spacecraft.cr"),
			Area: v.GetFloat64("spacecraft.srp_area"),
			Mass: v.GetFloat64("spacecraft.mass"),
		}
	}
	for _, name := range v.GetStringSlice("perturbations.third_bodies") {
		body, err := CelestialObjectFromString(name)
		if err != nil {
			return nil, fmt.Errorf("perturbations.third_bodies: %w", err)
		}
		scen.Perts.ThirdBodies = append(scen.Perts.ThirdBodies, body)
	}

	var sats []map[string]interface{}
	if err := v.UnmarshalKey("satellites", &sats); err != nil {
		return nil, fmt.Errorf("satellites: %w", err)
	}
	for i, raw := range sats {
		sat, err := scenarioSatellite(raw)
		if err != nil {
			return nil, fmt.Errorf("satellites[%d]: %w", i, err)
		}
		scen.Satellites = append(scen.Satellites, sat)
	}

	var stations []map[string]interface{}
	if err := v.UnmarshalKey("stations", &stations); err != nil {
		return nil, fmt.Errorf("stations: %w", err)
	}
	for _, raw := range stations {
		scen.Stations = append(scen.Stations, NewStation(
			str(raw, "name"),
			f64(raw, "altitude"),
			f64(raw, "min_elevation"),
			f64(raw, "latitude"),
			f64(raw, "longitude"),
		))
	}

	if v.IsSet("coverage") {
		scen.Coverage = ScenarioCoverage{
			Enabled: true,
			Region: Region{
				MinLat: v.GetFloat64("coverage.min_lat"),
				MaxLat: v.GetFloat64("coverage.max_lat"),
				MinLon: v.GetFloat64("coverage.min_lon"),
				MaxLon: v.GetFloat64("coverage.max_lon"),
			},
			Resolution:   v.GetFloat64("coverage.resolution"),
			MinElevation: v.GetFloat64("coverage.min_elevation"),
			SpatialIndex: v.GetBool("coverage.spatial_index"),
		}
		if !v.IsSet("coverage.min_lat") && !v.IsSet("coverage.max_lat") {
			scen.Coverage.Region = GlobalRegion
		}
	}
	return scen, nil
}

func scenarioSatellite(raw map[string]interface{}) (ScenarioSatellite, error) {
	sat := ScenarioSatellite{Name: str(raw, "name")}
	if line1 := str(raw, "tle_line1"); line1 != "" {
		tle, err := ParseTLE(sat.Name, line1, str(raw, "tle_line2"))
		if err != nil {
			return sat, err
		}
		sat.TLE = tle
		return sat, nil
	}
	orbit, err := NewOrbitFromOE(
		f64(raw, "sma"), f64(raw, "ecc"), f64(raw, "inc"),
		f64(raw, "raan"), f64(raw, "argp"), f64(raw, "nu"), Earth)
	if err != nil {
		return sat, err
	}
	sat.Orbit = orbit
	return sat, nil
}

func str(raw map[string]interface{}, key string) string {
	s, _ := raw[key].(string)
	return s
}

func f64(raw map[string]interface{}, key string) float64 {
	switch val := raw[key].(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case int:
		return float64(val)
	}
	return 0
}
