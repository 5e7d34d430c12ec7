package order

import (
	"fmt"

	"bistro.ai/internal/sim/catalogs"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/tasks"
)

// StationKind picks the station a step needs. A Destination step walks the
// cook to wherever the following step happens, so it resolves by the next
// step's kind; other kinds map directly. An explicit station on the step is
// the fallback for kinds with no mapping.
func StationKind(steps []catalogs.StepDef, i int) (directory.Kind, error) {
	st := steps[i]
	if st.Task == tasks.KindDestination {
		if i+1 < len(steps) {
			if k, ok := steps[i+1].Task.Station(); ok {
				return k, nil
			}
		}
	} else if k, ok := st.Task.Station(); ok {
		return k, nil
	}
	if st.Station != "" {
		if k, ok := directory.ParseKind(st.Station); ok {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: step %d task %q", ErrNoStationResolver, i, st.Task)
}
