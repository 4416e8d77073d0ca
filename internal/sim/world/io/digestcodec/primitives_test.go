package digestcodec

import (
	"bytes"
	"testing"
)

func TestWriteString_LengthPrefixed(t *testing.T) {
	var a, b bytes.Buffer
	var tmp [8]byte
	WriteString(&a, &tmp, "ab")
	WriteString(&a, &tmp, "c")
	WriteString(&b, &tmp, "a")
	WriteString(&b, &tmp, "bc")
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("adjacent strings aliased")
	}
}

func TestWriteF64(t *testing.T) {
	var buf bytes.Buffer
	var tmp [8]byte
	WriteF64(&buf, &tmp, 1.5)
	WriteBool(&buf, true)
	if buf.Len() != 9 || buf.Bytes()[8] != 1 {
		t.Fatalf("len=%d bytes=%v", buf.Len(), buf.Bytes())
	}
}
