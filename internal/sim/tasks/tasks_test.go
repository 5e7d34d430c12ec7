package tasks

import (
	"testing"

	"bistro.ai/internal/sim/directory"
)

func TestStationMapping(t *testing.T) {
	cases := map[Kind]directory.Kind{
		KindDragToProgress: directory.KindPrepStation,
		KindTapToProgress:  directory.KindPrepStation,
		KindTimed:          directory.KindCookStation,
	}
	for k, want := range cases {
		got, ok := k.Station()
		if !ok || got != want {
			t.Fatalf("%s: got %v ok=%v want %v", k, got, ok, want)
		}
	}
	if _, ok := KindDestination.Station(); ok {
		t.Fatalf("destination must not resolve directly")
	}
	if KindDestination.ShowsProgress() {
		t.Fatalf("destination has no progress bar")
	}
}
