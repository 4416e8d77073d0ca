package world

import (
	"crypto/sha256"
	"encoding/hex"

	"skyway.city/internal/sim/world/io/digestcodec"
)

// stateDigest hashes everything that determines future ticks. Two sessions
// with the same digest at the same tick evolve identically.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestcodec.WriteU64(h, &tmp, nowTick)
	digestcodec.WriteString(h, &tmp, w.city.Code)
	digestcodec.WriteU64(h, &tmp, w.nextAgent.Peek())
	digestcodec.WriteU64(h, &tmp, w.analyzer.AccidentSeq())

	flags := w.hazards.Flags()
	digestcodec.WriteBool(h, flags.Weather)
	digestcodec.WriteBool(h, flags.BuildingCollapse)
	digestcodec.WriteBool(h, flags.AirAccident)
	digestcodec.WriteBool(h, flags.PoliceActivity)
	digestcodec.WriteBool(h, flags.EmergencyHalt)
	digestcodec.WriteString(h, &tmp, flags.Status)
	digestcodec.WriteU64(h, &tmp, uint64(w.hazards.Severity()))

	for _, e := range w.fleet {
		a, f, st := &e.agent, &e.flight, &e.state
		digestcodec.WriteString(h, &tmp, a.ID)
		digestcodec.WriteF64(h, &tmp, a.X)
		digestcodec.WriteF64(h, &tmp, a.Y)
		digestcodec.WriteF64(h, &tmp, a.Altitude)
		digestcodec.WriteF64(h, &tmp, a.Speed)
		digestcodec.WriteBool(h, a.Active)
		digestcodec.WriteF64(h, &tmp, e.cruiseAlt)

		digestcodec.WriteF64(h, &tmp, f.Start.X)
		digestcodec.WriteF64(h, &tmp, f.Start.Y)
		digestcodec.WriteF64(h, &tmp, f.Destination.X)
		digestcodec.WriteF64(h, &tmp, f.Destination.Y)
		digestcodec.WriteString(h, &tmp, string(f.Status))
		digestcodec.WriteString(h, &tmp, string(f.HaltReason))
		digestcodec.WriteBool(h, f.EmergencyReroute)
		digestcodec.WriteBool(h, f.RerouteRequested)

		digestcodec.WriteBool(h, st.Parked)
		digestcodec.WriteString(h, &tmp, st.ParkingID)
	}

	digestcodec.WriteString(h, &tmp, w.lots.Digest())
	return hex.EncodeToString(h.Sum(nil))
}
