// Package encoding packs per-cell class rasters for the observer bootstrap.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Run is Len consecutive cells holding Value.
type Run struct {
	Value uint16
	Len   uint32
}

func Runs(ids []uint16) []Run {
	var out []Run
	for i := 0; i < len(ids); {
		v := ids[i]
		j := i + 1
		for j < len(ids) && ids[j] == v && j-i < 1<<31 {
			j++
		}
		out = append(out, Run{Value: v, Len: uint32(j - i)})
		i = j
	}
	return out
}

// EncodeRLE writes (value, run) uvarint pairs and base64-encodes them.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for _, r := range Runs(ids) {
		n := binary.PutUvarint(tmp[:], uint64(r.Value))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(r.Len))
		buf.Write(tmp[:n])
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE expands an EncodeRLE string. Output longer than limit cells is
// an error; limit <= 0 means no bound.
func DecodeRLE(b64 string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFFFF {
			return nil, fmt.Errorf("value too large: %d", v)
		}
		if limit > 0 && uint64(len(out))+run > uint64(limit) {
			return nil, fmt.Errorf("decoded length exceeds %d", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(v))
		}
	}
	return out, nil
}
