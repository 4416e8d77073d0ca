package main

import (
	"fmt"
	"io"
	"sort"

	"skyway.city/internal/persistence/indexdb"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/transport/ws"
)

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(out io.Writer, cityID string, m world.WorldMetrics, tick uint64, wsStats ws.Stats, idx runtimeIndex, mirror *mirrorRuntime) {
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(out, "# HELP skyway_city_tick Current city tick.\n")
	fmt.Fprintf(out, "# TYPE skyway_city_tick gauge\n")
	fmt.Fprintf(out, "skyway_city_tick{city=%q} %d\n", cityID, tick)

	fmt.Fprintf(out, "# HELP skyway_flights Flights by status.\n")
	fmt.Fprintf(out, "# TYPE skyway_flights gauge\n")
	statuses := make([]string, 0, len(m.ByStatus))
	for s := range m.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(out, "skyway_flights{city=%q,status=%q} %d\n", cityID, s, m.ByStatus[s])
	}

	fmt.Fprintf(out, "# HELP skyway_flights_active Flights with an active agent.\n")
	fmt.Fprintf(out, "# TYPE skyway_flights_active gauge\n")
	fmt.Fprintf(out, "skyway_flights_active{city=%q} %d\n", cityID, m.Active)

	fmt.Fprintf(out, "# HELP skyway_encounters Current proximity encounters.\n")
	fmt.Fprintf(out, "# TYPE skyway_encounters gauge\n")
	fmt.Fprintf(out, "skyway_encounters{city=%q} %d\n", cityID, m.Encounters)

	fmt.Fprintf(out, "# HELP skyway_accidents_total Accidents recorded this session.\n")
	fmt.Fprintf(out, "# TYPE skyway_accidents_total counter\n")
	fmt.Fprintf(out, "skyway_accidents_total{city=%q} %d\n", cityID, m.AccidentsTotal)

	fmt.Fprintf(out, "# HELP skyway_parking_spaces Parking spaces in the pool.\n")
	fmt.Fprintf(out, "# TYPE skyway_parking_spaces gauge\n")
	fmt.Fprintf(out, "skyway_parking_spaces{city=%q,state=%q} %d\n", cityID, "total", m.ParkingTotal)
	fmt.Fprintf(out, "skyway_parking_spaces{city=%q,state=%q} %d\n", cityID, "available", m.ParkingAvailable)

	fmt.Fprintf(out, "# HELP skyway_weather_severity Current weather severity (0..5).\n")
	fmt.Fprintf(out, "# TYPE skyway_weather_severity gauge\n")
	fmt.Fprintf(out, "skyway_weather_severity{city=%q} %d\n", cityID, m.WeatherSeverity)

	fmt.Fprintf(out, "# HELP skyway_hazard_status Current hazard status (value is always 1).\n")
	fmt.Fprintf(out, "# TYPE skyway_hazard_status gauge\n")
	fmt.Fprintf(out, "skyway_hazard_status{city=%q,status=%q} 1\n", cityID, m.HazardStatus)

	fmt.Fprintf(out, "# HELP skyway_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(out, "# TYPE skyway_queue_depth gauge\n")
	fmt.Fprintf(out, "skyway_queue_depth{city=%q,queue=%q} %d\n", cityID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "skyway_queue_depth{city=%q,queue=%q} %d\n", cityID, "admin", m.QueueDepths.Admin)

	fmt.Fprintf(out, "# HELP skyway_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(out, "# TYPE skyway_step_ms gauge\n")
	fmt.Fprintf(out, "skyway_step_ms{city=%q} %.3f\n", cityID, m.StepMS)

	fmt.Fprintf(out, "# HELP skyway_ws_clients Connected websocket clients.\n")
	fmt.Fprintf(out, "# TYPE skyway_ws_clients gauge\n")
	fmt.Fprintf(out, "skyway_ws_clients{city=%q} %d\n", cityID, wsStats.Clients)
	fmt.Fprintf(out, "# HELP skyway_ws_dropped_total Messages dropped on full client queues.\n")
	fmt.Fprintf(out, "# TYPE skyway_ws_dropped_total counter\n")
	fmt.Fprintf(out, "skyway_ws_dropped_total{city=%q} %d\n", cityID, wsStats.StateDropped)
	fmt.Fprintf(out, "# HELP skyway_ws_commands_total Commands received, and rejected.\n")
	fmt.Fprintf(out, "# TYPE skyway_ws_commands_total counter\n")
	fmt.Fprintf(out, "skyway_ws_commands_total{city=%q,result=%q} %d\n", cityID, "received", wsStats.CommandsTotal)
	fmt.Fprintf(out, "skyway_ws_commands_total{city=%q,result=%q} %d\n", cityID, "rejected", wsStats.RejectedTotal)

	writeIndexMetrics(out, idx)
	writeMirrorMetrics(out, mirror)
}

func writeIndexMetrics(out io.Writer, idx runtimeIndex) {
	var depth, capacity int
	var dropped uint64
	switch x := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := x.Stats()
		depth, capacity = s.QueueDepth, s.QueueCapacity
		dropped = s.DropTickTotal + s.DropAuditTotal + s.DropAccidentTotal + s.DropAdvisoryTotal + s.DropSnapshotTotal + s.DropSnapshotStateTotal + s.DropSessionTotal
	case *indexdb.RemoteIndex:
		s := x.Stats()
		depth, capacity = s.QueueDepth, s.QueueCapacity
		dropped = s.QueueDroppedTotal + s.RetainDroppedTotal
	default:
		return
	}
	fmt.Fprintf(out, "# HELP skyway_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(out, "# TYPE skyway_index_queue_depth gauge\n")
	fmt.Fprintf(out, "skyway_index_queue_depth %d\n", depth)
	fmt.Fprintf(out, "# HELP skyway_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(out, "# TYPE skyway_index_queue_capacity gauge\n")
	fmt.Fprintf(out, "skyway_index_queue_capacity %d\n", capacity)
	fmt.Fprintf(out, "# HELP skyway_index_dropped_total Index rows dropped under backpressure.\n")
	fmt.Fprintf(out, "# TYPE skyway_index_dropped_total counter\n")
	fmt.Fprintf(out, "skyway_index_dropped_total %d\n", dropped)
}

func writeMirrorMetrics(out io.Writer, mirror *mirrorRuntime) {
	s, ok := mirror.Stats()
	if !ok {
		return
	}
	fmt.Fprintf(out, "# HELP skyway_mirror_pending Files waiting for upload.\n")
	fmt.Fprintf(out, "# TYPE skyway_mirror_pending gauge\n")
	fmt.Fprintf(out, "skyway_mirror_pending %d\n", s.Pending)

	fmt.Fprintf(out, "# HELP skyway_mirror_capacity Mirror queue capacity across both lanes.\n")
	fmt.Fprintf(out, "# TYPE skyway_mirror_capacity gauge\n")
	fmt.Fprintf(out, "skyway_mirror_capacity %d\n", s.Capacity)

	fmt.Fprintf(out, "# HELP skyway_mirror_enqueued_total Files accepted for upload.\n")
	fmt.Fprintf(out, "# TYPE skyway_mirror_enqueued_total counter\n")
	fmt.Fprintf(out, "skyway_mirror_enqueued_total %d\n", s.Enqueued)

	fmt.Fprintf(out, "# HELP skyway_mirror_rejected_total Files refused because they sit outside the data dir.\n")
	fmt.Fprintf(out, "# TYPE skyway_mirror_rejected_total counter\n")
	fmt.Fprintf(out, "skyway_mirror_rejected_total %d\n", s.Rejected)

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Fprintf(out, "# HELP skyway_mirror_files_total Mirrored files by artifact kind and result.\n")
	fmt.Fprintf(out, "# TYPE skyway_mirror_files_total counter\n")
	for _, k := range kinds {
		ks := s.ByKind[k]
		fmt.Fprintf(out, "skyway_mirror_files_total{kind=%q,result=%q} %d\n", k, "uploaded", ks.Uploaded)
		fmt.Fprintf(out, "skyway_mirror_files_total{kind=%q,result=%q} %d\n", k, "failed", ks.Failed)
		fmt.Fprintf(out, "skyway_mirror_files_total{kind=%q,result=%q} %d\n", k, "dropped", ks.Dropped)
	}

	fmt.Fprintf(out, "# HELP skyway_mirror_last_success_unix Unix timestamp of last successful mirror upload.\n")
	fmt.Fprintf(out, "# TYPE skyway_mirror_last_success_unix gauge\n")
	fmt.Fprintf(out, "skyway_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}
