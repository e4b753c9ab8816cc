package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanUintField(t *testing.T) {
	payload := []byte(`{"cmd":"stop","seq": 42,"neg":-1}`)

	v, ok := ScanUintField(payload, []byte(`"seq"`))
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)

	_, ok = ScanUintField(payload, []byte(`"missing"`))
	assert.False(t, ok)

	_, ok = ScanUintField(payload, []byte(`"cmd"`))
	assert.False(t, ok, "string value is not a number")

	_, ok = ScanUintField(payload, []byte(`"neg"`))
	assert.False(t, ok)
}

func TestScanStringField(t *testing.T) {
	payload := []byte(`{"cmd": "stop","arg":"drain","n":7}`)

	v, ok := ScanStringField(payload, []byte(`"cmd"`))
	assert.True(t, ok)
	assert.Equal(t, "stop", string(v))

	v, ok = ScanStringField(payload, []byte(`"arg"`))
	assert.True(t, ok)
	assert.Equal(t, "drain", string(v))

	_, ok = ScanStringField(payload, []byte(`"n"`))
	assert.False(t, ok, "number value is not a string")

	_, ok = ScanStringField([]byte(`{"cmd":"unterminated`), []byte(`"cmd"`))
	assert.False(t, ok)
}

func TestIndexOf(t *testing.T) {
	assert.Equal(t, 2, IndexOf([]byte("ababc"), []byte("abc")))
	assert.Equal(t, -1, IndexOf([]byte("ab"), []byte("abc")))
	assert.Equal(t, -1, IndexOf([]byte("abc"), nil))
}
