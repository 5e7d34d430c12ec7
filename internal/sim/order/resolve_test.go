package order

import (
	"errors"
	"testing"

	"bistro.ai/internal/sim/catalogs"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/tasks"
)

func TestStationKind(t *testing.T) {
	step := func(k tasks.Kind) catalogs.StepDef { return catalogs.StepDef{Task: k} }
	cases := []struct {
		name  string
		steps []catalogs.StepDef
		i     int
		want  directory.Kind
		err   error
	}{
		{"destination then drag", []catalogs.StepDef{step(tasks.KindDestination), step(tasks.KindDragToProgress)}, 0, directory.KindPrepStation, nil},
		{"destination then timed", []catalogs.StepDef{step(tasks.KindDestination), step(tasks.KindTimed)}, 0, directory.KindCookStation, nil},
		{"destination then tap", []catalogs.StepDef{step(tasks.KindDestination), step(tasks.KindTapToProgress)}, 0, directory.KindPrepStation, nil},
		{"trailing destination", []catalogs.StepDef{step(tasks.KindTimed), step(tasks.KindDestination)}, 1, 0, ErrNoStationResolver},
		{"destination then destination", []catalogs.StepDef{step(tasks.KindDestination), step(tasks.KindDestination)}, 0, 0, ErrNoStationResolver},
		{"trailing destination with station", []catalogs.StepDef{step(tasks.KindTimed), {Task: tasks.KindDestination, Station: "order_station"}}, 1, directory.KindOrderStation, nil},
		{"timed", []catalogs.StepDef{step(tasks.KindTimed)}, 0, directory.KindCookStation, nil},
		{"tap", []catalogs.StepDef{step(tasks.KindTapToProgress)}, 0, directory.KindPrepStation, nil},
	}
	for _, tc := range cases {
		got, err := StationKind(tc.steps, tc.i)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%s: got err %v want %v", tc.name, err, tc.err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %v, %v want %v", tc.name, got, err, tc.want)
		}
	}
}
