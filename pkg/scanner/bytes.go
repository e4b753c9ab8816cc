// Package scanner extracts single fields from small JSON-shaped byte
// payloads without allocating or building a document tree. The control
// channel uses it to parse commands on the polling hot path.
package scanner

// ScanUintField returns the unsigned integer following `key:` in
// payload. False when the key is absent or the value is not a number.
func ScanUintField(payload []byte, key []byte) (uint64, bool) {
	i, ok := seekValue(payload, key)
	if !ok {
		return 0, false
	}
	if payload[i] < '0' || payload[i] > '9' {
		return 0, false
	}
	var v uint64
	for i < len(payload) && payload[i] >= '0' && payload[i] <= '9' {
		v = v*10 + uint64(payload[i]-'0')
		i++
	}
	return v, true
}

// ScanStringField returns the quoted string following `key:` in
// payload. The result aliases payload. Escapes are not interpreted;
// control values never contain them.
func ScanStringField(payload []byte, key []byte) ([]byte, bool) {
	i, ok := seekValue(payload, key)
	if !ok {
		return nil, false
	}
	if payload[i] != '"' {
		return nil, false
	}
	i++
	start := i
	for i < len(payload) && payload[i] != '"' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	return payload[start:i], true
}

// seekValue positions just past the colon and whitespace after key.
func seekValue(payload []byte, key []byte) (int, bool) {
	idx := IndexOf(payload, key)
	if idx < 0 {
		return 0, false
	}
	i := idx + len(key)
	for i < len(payload) && payload[i] != ':' {
		i++
	}
	if i >= len(payload) {
		return 0, false
	}
	i++
	for i < len(payload) && IsSpace(payload[i]) {
		i++
	}
	if i >= len(payload) {
		return 0, false
	}
	return i, true
}

// IndexOf returns the first position of key in payload, or -1.
func IndexOf(payload []byte, key []byte) int {
	if len(key) == 0 || len(payload) < len(key) {
		return -1
	}
outer:
	for i := 0; i <= len(payload)-len(key); i++ {
		for j := 0; j < len(key); j++ {
			if payload[i+j] != key[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// IsSpace reports whether b is JSON whitespace.
func IsSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
