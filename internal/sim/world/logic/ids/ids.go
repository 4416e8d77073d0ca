package ids

import (
	"fmt"
	"strconv"
	"strings"
)

func MaxU64(a, b uint64) uint64 {
	if a >= b {
		return a
	}
	return b
}

func ParseUintAfterPrefix(prefix, id string) (uint64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Sequence is a per-session monotonic counter. Owners keep it as a field so
// two sessions never share numbering.
type Sequence struct {
	n uint64
}

func (s *Sequence) Next() uint64 {
	s.n++
	return s.n
}

func (s *Sequence) Peek() uint64 { return s.n }

// Restore raises the counter to at least n (never lowers it).
func (s *Sequence) Restore(n uint64) { s.n = MaxU64(s.n, n) }

const (
	agentPrefix    = "J"
	accidentPrefix = "ACC-"
)

func AgentID(n uint64) string { return agentPrefix + strconv.FormatUint(n, 10) }

func ParseAgentNum(id string) (uint64, bool) { return ParseUintAfterPrefix(agentPrefix, id) }

func Serial(year int, n uint64) string { return fmt.Sprintf("JP-%d-%05d", year, n) }

// ParkingID formats "<CODE>-P<n>" with a 1-based index.
func ParkingID(cityCode string, n int) string {
	return fmt.Sprintf("%s-P%d", strings.ToUpper(cityCode), n)
}

func ParseParkingNum(id string) (int, bool) {
	i := strings.LastIndex(id, "-P")
	if i < 0 || i+2 >= len(id) {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+2:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// AccidentID formats "ACC-<epoch-millis>-<sequence>".
func AccidentID(epochMillis int64, seq uint64) string {
	return fmt.Sprintf("%s%d-%d", accidentPrefix, epochMillis, seq)
}

func ParseAccidentSeq(id string) (uint64, bool) {
	if !strings.HasPrefix(id, accidentPrefix) {
		return 0, false
	}
	i := strings.LastIndexByte(id, '-')
	if i < len(accidentPrefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
