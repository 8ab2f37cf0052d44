package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashOf_KnownVectors(t *testing.T) {
	// First 16 bytes of SHA-256 over the canonical bytes.
	assert.Equal(t, "44136fa355b3678a1146ad16f7e8649e", HashOf(Object{}).String())
	assert.Equal(t, "eca8cfb31ab74533e1eb2f4c74d2d55d",
		HashOf(MustParse(`{"b":[true,null,"x"],"a":1}`)).String())
}

func TestHashOf_KeyOrderIndependent(t *testing.T) {
	a := MustParse(`{"name":"Jessica Telephone","stats":{"batting":0.9,"pitching":0.2},"id":"1"}`)
	b := MustParse(`{"id":"1","stats":{"pitching":0.2,"batting":0.9},"name":"Jessica Telephone"}`)

	assert.Equal(t, HashOf(a), HashOf(b))
}

func TestHashOf_ScalarChangesHash(t *testing.T) {
	base := MustParse(`{"a":1,"b":"x","c":[true]}`)
	variants := []string{
		`{"a":2,"b":"x","c":[true]}`,
		`{"a":1,"b":"y","c":[true]}`,
		`{"a":1,"b":"x","c":[false]}`,
		`{"a":1.0,"b":"x","c":[true]}`,
		`{"a":1,"b":"x","c":[true],"d":null}`,
	}

	seen := map[Hash]string{HashOf(base): "base"}
	for _, s := range variants {
		h := HashOf(MustParse(s))
		_, dup := seen[h]
		assert.False(t, dup, "collision for %s", s)
		seen[h] = s
	}
}

func TestParseHash_RoundTrip(t *testing.T) {
	h := HashOf(String("x"))

	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHash("abc")
	assert.Error(t, err)
	_, err = ParseHash("zz136fa355b3678a1146ad16f7e8649e")
	assert.Error(t, err)
}

func TestHash_JSONText(t *testing.T) {
	h := HashOf(Int(1))
	data, err := json.Marshal(map[string]Hash{"hash": h})
	require.NoError(t, err)
	assert.Equal(t, `{"hash":"`+h.String()+`"}`, string(data))
}

func TestHash_Scan(t *testing.T) {
	h := HashOf(Bool(true))

	var scanned Hash
	require.NoError(t, scanned.Scan(h[:]))
	assert.Equal(t, h, scanned)

	assert.Error(t, scanned.Scan("not bytes"))
	assert.Error(t, scanned.Scan([]byte{1, 2, 3}))
	assert.False(t, h.IsZero())
	assert.True(t, Hash{}.IsZero())
}
