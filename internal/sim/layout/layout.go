// Package layout loads the demo world fixture: player plots with their
// seats, tables and stations, market stalls, spawn anchors and pre-placed
// agents.
package layout

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"bistro.ai/internal/sim/agents"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/nav"
)

type Plots struct {
	Owners  []OwnerSpec `yaml:"owners"`
	Stalls  []PointSpec `yaml:"stalls,omitempty"`
	Spawns  []PointSpec `yaml:"spawns"`
	Agents  []AgentSpec `yaml:"agents"`
	Blocked [][2]int    `yaml:"blocked,omitempty"`
}

// OwnerSpec is one player's plot. Objects on a plot inherit its kitchen.
type OwnerSpec struct {
	ID       string        `yaml:"id"`
	Kitchen  string        `yaml:"kitchen"`
	Tables   []PointSpec   `yaml:"tables"`
	Seats    []PointSpec   `yaml:"seats"`
	Stations []StationSpec `yaml:"stations"`
	Stalls   []PointSpec   `yaml:"stalls,omitempty"`
}

type PointSpec struct {
	ID  string     `yaml:"id"`
	Pos [3]float64 `yaml:"pos"`
	Yaw float64    `yaml:"yaw,omitempty"`
}

type StationSpec struct {
	PointSpec `yaml:",inline"`
	Kind      string `yaml:"kind"`
}

// AgentSpec places one agent. Clients and merchants start at their spawn
// anchor; a greeter stands at Pos.
type AgentSpec struct {
	ID    string     `yaml:"id"`
	Role  string     `yaml:"role"`
	Spawn string     `yaml:"spawn,omitempty"`
	Pos   [3]float64 `yaml:"pos,omitempty"`
	Yaw   float64    `yaml:"yaw,omitempty"`
}

func Load(path string) (*Plots, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Plots, error) {
	var p Plots
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("plots.yaml: %w", err)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("plots.yaml: %w", err)
	}
	return &p, nil
}

// Normalize fills the kitchen id from the owner id when omitted.
func (p *Plots) Normalize() {
	for i := range p.Owners {
		if strings.TrimSpace(p.Owners[i].Kitchen) == "" {
			p.Owners[i].Kitchen = "kitchen-" + p.Owners[i].ID
		}
	}
}

func (p *Plots) Validate() error {
	ids := map[string]bool{}
	claim := func(what, id string) error {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%s id must not be empty", what)
		}
		if ids[id] {
			return fmt.Errorf("duplicate id: %s", id)
		}
		ids[id] = true
		return nil
	}
	for _, o := range p.Owners {
		if err := claim("owner", o.ID); err != nil {
			return err
		}
		for _, t := range o.Tables {
			if err := claim("table", t.ID); err != nil {
				return err
			}
		}
		for _, s := range o.Seats {
			if err := claim("seat", s.ID); err != nil {
				return err
			}
		}
		for _, s := range o.Stalls {
			if err := claim("stall", s.ID); err != nil {
				return err
			}
		}
		for _, st := range o.Stations {
			if err := claim("station", st.ID); err != nil {
				return err
			}
			k, ok := directory.ParseKind(st.Kind)
			if !ok || (k != directory.KindOrderStation && k != directory.KindPrepStation && k != directory.KindCookStation) {
				return fmt.Errorf("station %s: unknown kind %q", st.ID, st.Kind)
			}
		}
	}
	for _, s := range p.Stalls {
		if err := claim("stall", s.ID); err != nil {
			return err
		}
	}
	spawns := map[string]bool{}
	for _, s := range p.Spawns {
		if err := claim("spawn", s.ID); err != nil {
			return err
		}
		spawns[s.ID] = true
	}
	for _, a := range p.Agents {
		if err := claim("agent", a.ID); err != nil {
			return err
		}
		role, ok := agents.ParseRole(a.Role)
		if !ok {
			return fmt.Errorf("agent %s: unknown role %q", a.ID, a.Role)
		}
		if role != agents.RoleGreeter && !spawns[a.Spawn] {
			return fmt.Errorf("agent %s: unknown spawn %q", a.ID, a.Spawn)
		}
	}
	return nil
}

// Directory registers every fixture object, plot by plot in file order.
func (p *Plots) Directory() *directory.Memory {
	d := directory.NewMemory()
	for _, o := range p.Owners {
		owner := directory.OwnerID(o.ID)
		add := func(kind directory.Kind, s PointSpec) {
			d.Add(directory.Resource{
				Handle:  directory.Handle{Kind: kind, ID: s.ID},
				Owner:   owner,
				Kitchen: o.Kitchen,
				Pos:     geom.FromArray(s.Pos),
				Yaw:     s.Yaw,
			})
		}
		for _, t := range o.Tables {
			add(directory.KindTable, t)
		}
		for _, s := range o.Seats {
			add(directory.KindSeat, s)
		}
		for _, st := range o.Stations {
			k, _ := directory.ParseKind(st.Kind)
			add(k, st.PointSpec)
		}
		for _, s := range o.Stalls {
			add(directory.KindStall, s)
		}
	}
	for _, s := range p.Stalls {
		d.Add(directory.Resource{Handle: directory.Handle{Kind: directory.KindStall, ID: s.ID}, Pos: geom.FromArray(s.Pos), Yaw: s.Yaw})
	}
	for _, s := range p.Spawns {
		d.Add(directory.Resource{Handle: directory.Handle{Kind: directory.KindSpawn, ID: s.ID}, Pos: geom.FromArray(s.Pos), Yaw: s.Yaw})
	}
	return d
}

func (p *Plots) BlockedCells() []nav.Cell {
	out := make([]nav.Cell, 0, len(p.Blocked))
	for _, b := range p.Blocked {
		out = append(out, nav.Cell{X: b[0], Z: b[1]})
	}
	return out
}

func (p *Plots) Spawn(id string) (geom.Vec3, bool) {
	for _, s := range p.Spawns {
		if s.ID == id {
			return geom.FromArray(s.Pos), true
		}
	}
	return geom.Vec3{}, false
}

func (p *Plots) Owner(id string) (OwnerSpec, bool) {
	for _, o := range p.Owners {
		if o.ID == id {
			return o, true
		}
	}
	return OwnerSpec{}, false
}

// KitchenOf returns the kitchen of owner's plot.
func (p *Plots) KitchenOf(owner string) (string, bool) {
	o, ok := p.Owner(owner)
	return o.Kitchen, ok
}

// BuildAgents creates one agent per AgentSpec, in file order.
func (p *Plots) BuildAgents(env *agents.Env) []agents.Agent {
	out := make([]agents.Agent, 0, len(p.Agents))
	for _, a := range p.Agents {
		role, _ := agents.ParseRole(a.Role)
		switch role {
		case agents.RoleClient:
			pos, _ := p.Spawn(a.Spawn)
			out = append(out, agents.NewClient(a.ID, pos, env))
		case agents.RoleMerchant:
			pos, _ := p.Spawn(a.Spawn)
			out = append(out, agents.NewMerchant(a.ID, pos, env))
		case agents.RoleGreeter:
			out = append(out, agents.NewGreeter(a.ID, geom.FromArray(a.Pos), a.Yaw, env))
		}
	}
	return out
}
