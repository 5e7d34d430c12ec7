package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz"`
	ScheduleEveryTicks int   `yaml:"schedule_every_ticks"`
	Seed               int64 `yaml:"seed"`

	Seating  Seating  `yaml:"seating"`
	Greeter  Greeter  `yaml:"greeter"`
	Client   Client   `yaml:"client"`
	Merchant Merchant `yaml:"merchant"`
	Nav      Nav      `yaml:"nav"`
}

type Seating struct {
	MaxSeatTableDistance float64 `yaml:"max_seat_table_distance"`
	MaxSeatFacingDeg     float64 `yaml:"max_seat_facing_deg"`
}

type Greeter struct {
	MinDistance     float64 `yaml:"min_distance"`
	MaxDistance     float64 `yaml:"max_distance"`
	StandOff        float64 `yaml:"stand_off"`
	WalkSpeed       float64 `yaml:"walk_speed"`
	TurnTicks       int     `yaml:"turn_ticks"`
	GreetTicks      int     `yaml:"greet_ticks"`
	InformTicks     int     `yaml:"inform_ticks"`
	GreetedTTLTicks int     `yaml:"greeted_ttl_ticks"`
	Header          string  `yaml:"header"`
	Message         string  `yaml:"message"`
}

type Client struct {
	DefaultRecipe string  `yaml:"default_recipe"`
	SitTicks      int     `yaml:"sit_ticks"`
	WalkSpeed     float64 `yaml:"walk_speed"`
}

type Merchant struct {
	SetUpTicks int     `yaml:"set_up_ticks"`
	WalkSpeed  float64 `yaml:"walk_speed"`
}

type Nav struct {
	CellSize float64 `yaml:"cell_size"`
	Radius   int     `yaml:"radius"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		ScheduleEveryTicks: 20,
		Seed:               1337,
		Seating: Seating{
			MaxSeatTableDistance: 2.5,
			MaxSeatFacingDeg:     45,
		},
		Greeter: Greeter{
			MinDistance: 2,
			MaxDistance: 12,
			StandOff:    1.5,
			WalkSpeed:   0.5,
			TurnTicks:   3,
			GreetTicks:  10,
			InformTicks: 30,
			Header:      "Welcome!",
			Message:     "Take a seat, a cook will be with you shortly.",
		},
		Client: Client{
			DefaultRecipe: "burger",
			SitTicks:      5,
			WalkSpeed:     0.4,
		},
		Merchant: Merchant{
			SetUpTicks: 10,
			WalkSpeed:  0.4,
		},
		Nav: Nav{CellSize: 1, Radius: 256},
	}
}

// Load reads path over Defaults, so a tuning file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.ScheduleEveryTicks <= 0 {
		return fmt.Errorf("schedule_every_ticks must be > 0")
	}
	if t.Greeter.MinDistance > t.Greeter.MaxDistance {
		return fmt.Errorf("greeter.min_distance > greeter.max_distance")
	}
	if t.Greeter.GreetedTTLTicks < 0 {
		return fmt.Errorf("greeter.greeted_ttl_ticks must be >= 0")
	}
	if t.Client.DefaultRecipe == "" {
		return fmt.Errorf("client.default_recipe is required")
	}
	return nil
}
