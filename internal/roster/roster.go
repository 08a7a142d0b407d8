// Package roster describes the agent roster: who exists, which base team
// covers which hours, who is in the overflow reserve, and when office hours are.
package roster

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/chatqueue/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

// AgentSpec is one roster entry.
type AgentSpec struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Seniority domain.Seniority `yaml:"seniority"`
}

// Team is a base team and the UTC hour window [StartHour, EndHour) it covers.
type Team struct {
	Name      string   `yaml:"name"`
	StartHour int      `yaml:"start_hour"`
	EndHour   int      `yaml:"end_hour"`
	Members   []string `yaml:"members"`
}

// Covers reports whether hour falls in the team's window.
func (t Team) Covers(hour int) bool {
	return hour >= t.StartHour && hour < t.EndHour
}

// Overflow is the reserve roster.
type Overflow struct {
	Members []string `yaml:"members"`
}

// OfficeHours is the window in which overflow may be activated.
type OfficeHours struct {
	StartHour int      `yaml:"start_hour"`
	EndHour   int      `yaml:"end_hour"`
	Days      []string `yaml:"days"`

	days map[time.Weekday]bool
}

// Contains reports whether t (taken in UTC) is inside office hours.
func (o OfficeHours) Contains(t time.Time) bool {
	t = t.UTC()
	return o.days[t.Weekday()] && t.Hour() >= o.StartHour && t.Hour() < o.EndHour
}

// Roster is a validated roster.
type Roster struct {
	Agents      []AgentSpec `yaml:"agents"`
	Teams       []Team      `yaml:"teams"`
	Overflow    Overflow    `yaml:"overflow"`
	OfficeHours OfficeHours `yaml:"office_hours"`

	byID map[string]AgentSpec
}

var weekdays = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// Default returns the built-in roster.
func Default() *Roster {
	r, err := Parse(defaultYAML)
	if err != nil {
		panic("roster: built-in roster is invalid: " + err.Error())
	}
	return r
}

// Load reads a roster from path, or returns Default when path is empty.
func Load(path string) (*Roster, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a YAML roster.
func Parse(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the roster and builds its lookup tables.
func (r *Roster) Validate() error {
	if len(r.Agents) == 0 {
		return errors.New("roster has no agents")
	}
	r.byID = make(map[string]AgentSpec, len(r.Agents))
	for _, a := range r.Agents {
		if a.ID == "" {
			return errors.New("agent with empty id")
		}
		if _, dup := r.byID[a.ID]; dup {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		r.byID[a.ID] = a
	}

	if len(r.Teams) == 0 {
		return errors.New("roster has no base teams")
	}
	teams := append([]Team(nil), r.Teams...)
	sort.Slice(teams, func(i, j int) bool { return teams[i].StartHour < teams[j].StartHour })
	next := 0
	for _, t := range teams {
		if t.StartHour != next || t.EndHour <= t.StartHour || t.EndHour > 24 {
			return fmt.Errorf("team %q window %d-%d: base-team windows must cover 0-24 without gaps or overlaps",
				t.Name, t.StartHour, t.EndHour)
		}
		next = t.EndHour
	}
	if next != 24 {
		return fmt.Errorf("base-team windows end at %d, not 24", next)
	}

	inTeam := make(map[string]string)
	for _, t := range r.Teams {
		for _, id := range t.Members {
			if _, ok := r.byID[id]; !ok {
				return fmt.Errorf("team %q member %q is not a known agent", t.Name, id)
			}
			if other, ok := inTeam[id]; ok {
				return fmt.Errorf("agent %q is in teams %q and %q", id, other, t.Name)
			}
			inTeam[id] = t.Name
		}
	}
	for _, id := range r.Overflow.Members {
		if _, ok := r.byID[id]; !ok {
			return fmt.Errorf("overflow member %q is not a known agent", id)
		}
		if team, ok := inTeam[id]; ok {
			return fmt.Errorf("overflow member %q is also in base team %q", id, team)
		}
	}

	o := &r.OfficeHours
	if o.StartHour < 0 || o.EndHour > 24 || o.EndHour <= o.StartHour {
		return fmt.Errorf("office hours %d-%d are invalid", o.StartHour, o.EndHour)
	}
	o.days = make(map[time.Weekday]bool, len(o.Days))
	for _, d := range o.Days {
		wd, ok := weekdays[d]
		if !ok {
			return fmt.Errorf("unknown office day %q", d)
		}
		o.days[wd] = true
	}
	return nil
}

// Agent returns the roster entry for id.
func (r *Roster) Agent(id string) (AgentSpec, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// TeamAt returns the base team on shift at t (UTC).
func (r *Roster) TeamAt(t time.Time) Team {
	hour := t.UTC().Hour()
	for _, team := range r.Teams {
		if team.Covers(hour) {
			return team
		}
	}
	// Validate guarantees full coverage.
	panic(fmt.Sprintf("roster: no base team covers hour %d", hour))
}

// IsOverflow reports whether id is in the overflow roster.
func (r *Roster) IsOverflow(id string) bool {
	for _, m := range r.Overflow.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Capacity sums MaxCapacity over ids.
func (r *Roster) Capacity(ids []string) int {
	total := 0
	for _, id := range ids {
		if a, ok := r.byID[id]; ok {
			total += a.Seniority.Capacity()
		}
	}
	return total
}

// SeedAgents returns fresh off-shift domain agents for every roster entry.
func (r *Roster) SeedAgents() []domain.Agent {
	out := make([]domain.Agent, 0, len(r.Agents))
	for _, a := range r.Agents {
		out = append(out, domain.Agent{
			ID:               a.ID,
			Name:             a.Name,
			Seniority:        a.Seniority,
			ActiveSessionIDs: map[string]bool{},
		})
	}
	return out
}
