package views

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an event does not apply to the
// current drill state.
var ErrInvalidTransition = errors.New("invalid drill transition")

// State is a drill-down level.
type State int

const (
	Overview State = iota
	CountryDrill
	CategoryDrill
)

func (s State) String() string {
	switch s {
	case Overview:
		return "overview"
	case CountryDrill:
		return "country"
	case CategoryDrill:
		return "category"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Overview, CountryDrill, CategoryDrill} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown drill state %q", b)
}

// Event drives a Drill.
type Event string

const (
	SelectCountry  Event = "country"
	SelectCategory Event = "category"
	Back           Event = "back"
	Reset          Event = "reset"
)

// Drill is the drill-down state machine of one view:
//
//	Overview --country--> CountryDrill --category--> CategoryDrill
//	Overview --category--> CategoryDrill (no country)
//	CountryDrill --country--> CountryDrill (switch country)
//	back pops one level, reset returns to Overview.
type Drill struct {
	State    State  `json:"state"`
	Country  string `json:"country,omitempty"`
	Category string `json:"category,omitempty"`
}

// Apply moves the machine. On error the state is unchanged.
func (d *Drill) Apply(ev Event, value string) error {
	next := *d
	switch ev {
	case SelectCountry:
		if value == "" || d.State == CategoryDrill {
			return d.invalid(ev, value)
		}
		next = Drill{State: CountryDrill, Country: value}
	case SelectCategory:
		if value == "" || d.State == CategoryDrill {
			return d.invalid(ev, value)
		}
		next.State, next.Category = CategoryDrill, value
	case Back:
		switch d.State {
		case Overview:
			return d.invalid(ev, value)
		case CountryDrill:
			next = Drill{}
		case CategoryDrill:
			next.Category = ""
			next.State = CountryDrill
			if next.Country == "" {
				next.State = Overview
			}
		}
	case Reset:
		next = Drill{}
	default:
		return d.invalid(ev, value)
	}
	*d = next
	return nil
}

func (d *Drill) invalid(ev Event, value string) error {
	return fmt.Errorf("%w: %s(%q) in %s", ErrInvalidTransition, ev, value, d.State)
}
