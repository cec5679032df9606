package kvutil

import (
	"bytes"
	"fmt"
)

// Separator separates the segments of a key
const Separator = "/"

// Key joins the segments into a key
func Key(segments ...any) []byte {
	var buf bytes.Buffer
	for i, s := range segments {
		if i > 0 {
			buf.WriteString(Separator)
		}
		buf.WriteString(fmt.Sprint(s))
	}
	return buf.Bytes()
}

// NextPrefix returns a prefix that is lexicographically larger than the input prefix
func NextPrefix(prefix []byte) []byte {
	buf := make([]byte, len(prefix))
	copy(buf, prefix)
	var i int
	for i = len(prefix) - 1; i >= 0; i-- {
		buf[i]++
		if buf[i] != 0 {
			break
		}
	}
	if i == -1 {
		buf = make([]byte, 0)
	}
	return buf
}
