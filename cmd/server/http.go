package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"sort"
	"strings"
	"time"

	"bistro.ai/internal/persistence/journal"
	persistlog "bistro.ai/internal/persistence/log"
	"bistro.ai/internal/sim/world"
	"bistro.ai/internal/transport/ws"
)

type muxOptions struct {
	Admin bool
	Pprof bool

	Journal  *journal.SQLiteJournal // may be nil
	EventLog *persistlog.EventLogger
}

func newMux(w *world.World, logger *log.Logger, o muxOptions) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w.Metrics(), o)
	})

	if o.Admin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			snap, err := w.RequestState(ctx)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, struct {
				State   world.StateSnapshot `json:"state"`
				Metrics world.WorldMetrics  `json:"metrics"`
			}{snap, w.Metrics()})
		}))
		mux.HandleFunc("/admin/v1/merchant", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			var body struct {
				Stall   string `json:"stall"`
				Release bool   `json:"release"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Stall == "" {
				writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "body must be {\"stall\": id, \"release\": bool}"})
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := w.RequestMerchant(ctx, body.Stall, body.Release); err != nil {
				writeJSON(rw, merchantStatus(err), map[string]any{"ok": false, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "stall": body.Stall, "release": body.Release})
		}))
		if o.Journal != nil {
			mux.HandleFunc("/admin/v1/tickets/history", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
				id := strings.TrimSpace(r.URL.Query().Get("id"))
				if id == "" {
					writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing id"})
					return
				}
				hist, err := o.Journal.History(r.Context(), id)
				if err != nil {
					writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
					return
				}
				writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "id": id, "transitions": hist})
			}))
		}
	} else {
		logger.Printf("admin endpoints disabled (BISTRO_ENABLE_ADMIN_HTTP=false)")
	}
	if o.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())
	return mux
}

func merchantStatus(err error) int {
	switch {
	case errors.Is(err, world.ErrUnknownStall):
		return http.StatusNotFound
	case errors.Is(err, world.ErrNotTended), errors.Is(err, world.ErrOwnerAbsent):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, m world.WorldMetrics, o muxOptions) {
	gauge := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s counter\n", name)
	}

	gauge("bistro_world_tick", "Ticks completed.")
	fmt.Fprintf(rw, "bistro_world_tick %d\n", m.Tick)
	gauge("bistro_world_players", "Connected players.")
	fmt.Fprintf(rw, "bistro_world_players %d\n", m.Players)
	gauge("bistro_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(rw, "bistro_world_step_ms %.3f\n", m.StepMS)

	gauge("bistro_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(rw, "bistro_world_queue_depth{queue=%q} %d\n", "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "bistro_world_queue_depth{queue=%q} %d\n", "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "bistro_world_queue_depth{queue=%q} %d\n", "leave", m.QueueDepths.Leave)

	gauge("bistro_tickets", "Tickets by placement.")
	fmt.Fprintf(rw, "bistro_tickets{state=%q} %d\n", "queued", m.Orders.Queued)
	fmt.Fprintf(rw, "bistro_tickets{state=%q} %d\n", "active", m.Orders.Active)

	gauge("bistro_agents", "Pooled agents by role and availability.")
	roles := make([]string, 0, len(m.Scheduler.Pools))
	for role := range m.Scheduler.Pools {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		p := m.Scheduler.Pools[role]
		fmt.Fprintf(rw, "bistro_agents{role=%q,status=%q} %d\n", role, "idle", p.Idle)
		fmt.Fprintf(rw, "bistro_agents{role=%q,status=%q} %d\n", role, "busy", p.Total-p.Idle)
	}

	gauge("bistro_seats", "Seats by status.")
	fmt.Fprintf(rw, "bistro_seats{status=%q} %d\n", "free", m.Scheduler.FreeSeats)
	fmt.Fprintf(rw, "bistro_seats{status=%q} %d\n", "assigned", m.Scheduler.AssignedSeats)
	fmt.Fprintf(rw, "bistro_seats{status=%q} %d\n", "occupied", m.Scheduler.OccupiedSeats)

	gauge("bistro_stalls_tended", "Stalls with a merchant.")
	fmt.Fprintf(rw, "bistro_stalls_tended %d\n", m.Scheduler.TendedStalls)
	gauge("bistro_stalls_pending", "Stalls waiting for their one staffing attempt.")
	fmt.Fprintf(rw, "bistro_stalls_pending %d\n", m.PendingStalls)

	counter("bistro_seat_assignments_total", "Agents sent to a seat.")
	fmt.Fprintf(rw, "bistro_seat_assignments_total %d\n", m.Scheduler.Assignments)
	counter("bistro_evictions_total", "Agents sent home by an owner leaving or editing.")
	fmt.Fprintf(rw, "bistro_evictions_total %d\n", m.Scheduler.Evictions)
	counter("bistro_dropped_messages_total", "Outbound messages dropped for slow clients.")
	fmt.Fprintf(rw, "bistro_dropped_messages_total %d\n", m.DroppedMessages)

	if o.Journal != nil {
		s := o.Journal.Stats()
		counter("bistro_journal_written_total", "Ticket transitions committed to the journal.")
		fmt.Fprintf(rw, "bistro_journal_written_total %d\n", s.Written)
		counter("bistro_journal_failures_total", "Ticket transitions that failed to commit.")
		fmt.Fprintf(rw, "bistro_journal_failures_total %d\n", s.Failures)
		gauge("bistro_journal_queue_depth", "Journal writer backlog.")
		fmt.Fprintf(rw, "bistro_journal_queue_depth %d\n", s.QueueDepth)
	}
	if o.EventLog != nil {
		counter("bistro_event_log_errors_total", "Event log entries that failed to write.")
		fmt.Fprintf(rw, "bistro_event_log_errors_total %d\n", o.EventLog.Errors())
	}
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
