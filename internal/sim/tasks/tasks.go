package tasks

import "bistro.ai/internal/sim/directory"

type Kind string

const (
	KindDestination    Kind = "DESTINATION"
	KindDragToProgress Kind = "DRAG_TO_PROGRESS"
	KindTapToProgress  Kind = "TAP_TO_PROGRESS"
	KindTimed          Kind = "TIMED"
)

// ShowsProgress reports whether the task UI carries a progress bar.
func (k Kind) ShowsProgress() bool {
	switch k {
	case KindDragToProgress, KindTapToProgress, KindTimed:
		return true
	}
	return false
}

// Station returns the station kind a task is performed at. Destination steps
// have no station of their own (see the order service lookahead).
func (k Kind) Station() (directory.Kind, bool) {
	switch k {
	case KindDragToProgress, KindTapToProgress:
		return directory.KindPrepStation, true
	case KindTimed:
		return directory.KindCookStation, true
	}
	return 0, false
}
