package layout

import (
	"strings"
	"testing"

	"bistro.ai/internal/sim/agents"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/tuning"
)

func TestLoadShippedPlots(t *testing.T) {
	p, err := Load("../../../configs/plots.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Owners) != 2 {
		t.Fatalf("owners: got %d want 2", len(p.Owners))
	}
	d := p.Directory()
	if n := len(d.Tagged("alice", directory.KindSeat)); n != 4 {
		t.Fatalf("alice seats: got %d want 4", n)
	}
	if n := len(d.InKitchen("kitchen-bob", directory.KindPrepStation)); n != 2 {
		t.Fatalf("bob prep stations: got %d want 2", n)
	}
	if _, ok := d.Get(directory.Handle{Kind: directory.KindStall, ID: "market-1"}); !ok {
		t.Fatalf("shared stall missing")
	}
	if len(p.BlockedCells()) != 4 {
		t.Fatalf("blocked: got %d want 4", len(p.BlockedCells()))
	}

	env := &agents.Env{Tuning: tuning.Defaults()}
	built := p.BuildAgents(env)
	if len(built) != len(p.Agents) {
		t.Fatalf("agents: got %d want %d", len(built), len(p.Agents))
	}
	roles := map[agents.Role]int{}
	for _, a := range built {
		roles[a.Role()]++
	}
	if roles[agents.RoleClient] != 4 || roles[agents.RoleMerchant] != 1 || roles[agents.RoleGreeter] != 1 {
		t.Fatalf("roles: %v", roles)
	}
	door, _ := p.Spawn("door")
	if built[0].Body().Pos != door {
		t.Fatalf("client spawn: got %+v want %+v", built[0].Body().Pos, door)
	}
}

func TestKitchenDefaultsToOwner(t *testing.T) {
	p, err := Parse([]byte("owners:\n  - id: carol\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if k, _ := p.KitchenOf("carol"); k != "kitchen-carol" {
		t.Fatalf("kitchen: got %q", k)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"duplicate id": "owners:\n  - id: a\n    seats:\n      - {id: x, pos: [0,0,0]}\n    tables:\n      - {id: x, pos: [0,0,1]}\n",
		"unknown kind": "owners:\n  - id: a\n    stations:\n      - {id: s, kind: fryer, pos: [0,0,0]}\n",
		"unknown role": "agents:\n  - {id: n, role: chef}\n",
		"no spawn":     "agents:\n  - {id: n, role: client, spawn: nowhere}\n",
		"empty id":     "owners:\n  - kitchen: k\n",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		} else if !strings.HasPrefix(err.Error(), "plots.yaml: ") {
			t.Fatalf("%s: error not prefixed: %v", name, err)
		}
	}
}
