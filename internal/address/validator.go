// Package address decides whether a delivery address is inside the
// restaurant's delivery area.
package address

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type Result struct {
	Valid    bool     `json:"valid"`
	Distance *float64 `json:"distance,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type Validator interface {
	ValidateAddress(ctx context.Context, address, zip string) (Result, error)
	ValidateZip(ctx context.Context, zip string) (Result, error)
}

var zipPattern = regexp.MustCompile(`^\d{5}$`)

const minAddressLength = 5

// ZoneValidator serves a fixed set of postal codes, each with its distance
// from the restaurant in kilometres.
type ZoneValidator struct {
	zones       map[string]float64
	maxDistance float64
}

func NewZoneValidator(zones map[string]float64, maxDistance float64) *ZoneValidator {
	cp := make(map[string]float64, len(zones))
	for zip, d := range zones {
		cp[zip] = d
	}
	return &ZoneValidator{zones: cp, maxDistance: maxDistance}
}

// ParseZones reads "69001:1.2,69002:2.5". A zip without distance counts as 0.
func ParseZones(list string) (map[string]float64, error) {
	zones := make(map[string]float64)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		zip, dist, found := strings.Cut(part, ":")
		zip = strings.TrimSpace(zip)
		if !zipPattern.MatchString(zip) {
			return nil, fmt.Errorf("invalid zip %q in delivery zones", zip)
		}
		if !found {
			zones[zip] = 0
			continue
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(dist), 64)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid distance for zip %s: %q", zip, dist)
		}
		zones[zip] = d
	}
	return zones, nil
}

func (v *ZoneValidator) ValidateZip(_ context.Context, zip string) (Result, error) {
	zip = strings.TrimSpace(zip)
	if !zipPattern.MatchString(zip) {
		return Result{Valid: false, Error: "postal code must have 5 digits"}, nil
	}
	d, ok := v.zones[zip]
	if !ok {
		return Result{Valid: false, Error: "we do not deliver to this postal code"}, nil
	}
	if v.maxDistance > 0 && d > v.maxDistance {
		return Result{Valid: false, Distance: &d, Error: "address is too far from the restaurant"}, nil
	}
	return Result{Valid: true, Distance: &d}, nil
}

func (v *ZoneValidator) ValidateAddress(ctx context.Context, address, zip string) (Result, error) {
	if len(strings.TrimSpace(address)) < minAddressLength {
		return Result{Valid: false, Error: "address is too short"}, nil
	}
	return v.ValidateZip(ctx, zip)
}

// Zips lists the served postal codes in order.
func (v *ZoneValidator) Zips() []string {
	out := make([]string, 0, len(v.zones))
	for zip := range v.zones {
		out = append(out, zip)
	}
	sort.Strings(out)
	return out
}
