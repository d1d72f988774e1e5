package astrokit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TLE holds a parsed two-line element set. Angles are in degrees as
// transmitted; the mean motion is in revolutions per day.
type TLE struct {
	Name         string
	Line1        string
	Line2        string
	NoradID      int
	EpochYear    int
	EpochDays    float64
	NDot         float64 // rev/day^2 (already halved in the TLE)
	NDDot        float64 // rev/day^3 (already divided by six)
	Bstar        float64 // 1/Earth radii
	Inclination  float64 // deg
	RAAN         float64 // deg
	Eccentricity float64
	ArgPerigee   float64 // deg
	MeanAnomaly  float64 // deg
	MeanMotion   float64 // rev/day
}

// Epoch returns the element set epoch as a UTC time.
func (t TLE) Epoch() time.Time {
	year := t.EpochYear
	if year < 57 {
		year += 2000
	} else {
		year += 1900
	}
	jan1 := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	// Day 1.0 is January 1st at midnight.
	return jan1.Add(time.Duration((t.EpochDays - 1) * 24 * float64(time.Hour)))
}

// PeriodMinutes returns the orbital period implied by the mean motion.
func (t TLE) PeriodMinutes() float64 {
	return 1440.0 / t.MeanMotion
}

// ParseTLE parses a two-line element set from its two 69-column lines. The
// name is optional (pass an empty string when absent). Both checksums are
// verified.
func ParseTLE(name, line1, line2 string) (*TLE, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")
	if len(line1) < 69 || len(line2) < 69 {
		return nil, fmt.Errorf("element lines must be 69 columns: %w", ErrInvalidElementSet)
	}
	if line1[0] != '1' || line2[0] != '2' {
		return nil, fmt.Errorf("line numbers must be 1 and 2: %w", ErrInvalidElementSet)
	}
	for i, line := range []string{line1, line2} {
		if err := tleChecksum(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	tle := &TLE{Name: strings.TrimSpace(name), Line1: line1, Line2: line2}
	var err error
	if tle.NoradID, err = strconv.Atoi(strings.TrimSpace(line1[2:7])); err != nil {
		return nil, fmt.Errorf("invalid catalog number %q: %w", line1[2:7], ErrInvalidElementSet)
	}
	fields := []struct {
		dst  *float64
		text string
		what string
	}{
		{&tle.EpochDays, line1[20:32], "epoch day"},
		{&tle.NDot, strings.Replace(line1[33:43], " ", "", 2), "first derivative of mean motion"},
		{&tle.NDDot, tleExponent(line1[44:52]), "second derivative of mean motion"},
		{&tle.Bstar, tleExponent(line1[53:61]), "bstar"},
		{&tle.Inclination, strings.TrimSpace(line2[8:16]), "inclination"},
		{&tle.RAAN, strings.TrimSpace(line2[17:25]), "RAAN"},
		{&tle.Eccentricity, "." + line2[26:33], "eccentricity"},
		{&tle.ArgPerigee, strings.TrimSpace(line2[34:42]), "argument of perigee"},
		{&tle.MeanAnomaly, strings.TrimSpace(line2[43:51]), "mean anomaly"},
		{&tle.MeanMotion, strings.TrimSpace(line2[52:63]), "mean motion"},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.text, 64); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", f.what, f.text, ErrInvalidElementSet)
		}
	}
	epochYear, err := strconv.Atoi(line1[18:20])
	if err != nil {
		return nil, fmt.Errorf("invalid epoch year %q: %w", line1[18:20], ErrInvalidElementSet)
	}
	tle.EpochYear = epochYear
	if tle.MeanMotion <= 0 {
		return nil, fmt.Errorf("mean motion must be positive: %w", ErrInvalidElementSet)
	}
	if tle.Eccentricity < 0 || tle.Eccentricity >= 1 {
		return nil, fmt.Errorf("eccentricity %f out of range [0,1): %w", tle.Eccentricity, ErrInvalidElementSet)
	}
	return tle, nil
}

// tleExponent rewrites the assumed-decimal exponent notation of TLE fields
// (e.g. " 12345-4") into a parsable float (".12345e-4").
func tleExponent(field string) string {
	field = strings.Replace(field, " ", "", 2)
	if len(field) < 2 {
		return "0"
	}
	mantissa := field[:len(field)-2]
	exponent := field[len(field)-2:]
	sign := ""
	if strings.HasPrefix(mantissa, "-") || strings.HasPrefix(mantissa, "+") {
		sign = mantissa[:1]
		mantissa = mantissa[1:]
	}
	return sign + "." + mantissa + "e" + exponent
}

// tleChecksum verifies the modulo-10 checksum in column 69: digits count as
// themselves, minus signs count as one, everything else counts zero.
func tleChecksum(line string) error {
	sum := 0
	for _, c := range line[:68] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	if want := int(line[68] - '0'); sum%10 != want {
		return fmt.Errorf("checksum %d does not match %d: %w", sum%10, want, ErrInvalidElementSet)
	}
	return nil
}
