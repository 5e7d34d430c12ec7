package order

import (
	"errors"
	"testing"
)

type failJournal struct{ err error }

func (j failJournal) Record(Record) error { return j.err }

func TestJournalsFanOut(t *testing.T) {
	a, b := &memJournal{}, &memJournal{}
	boom := errors.New("disk full")
	js := Journals{a, nil, failJournal{boom}, b}

	err := js.Record(Record{TicketID: "t1", State: StateQueued})
	if !errors.Is(err, boom) {
		t.Fatalf("err: got %v want %v", err, boom)
	}
	if len(a.recs) != 1 || len(b.recs) != 1 {
		t.Fatalf("records: got %d/%d want 1/1", len(a.recs), len(b.recs))
	}
	if err := (Journals{a}).Record(Record{TicketID: "t2"}); err != nil {
		t.Fatalf("clean record: %v", err)
	}
}
