package cursor

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	ids := []uuid.UUID{
		uuid.Nil,
		uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff"),
		uuid.MustParse("0190a2c4-7b1e-7c3d-9e8f-123456789abc"),
	}
	times := []time.Time{
		Epoch,
		Epoch.Add(-time.Nanosecond),
		time.Date(2020, 7, 29, 3, 14, 15, 926535897, time.UTC),
		time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2261, 12, 31, 23, 59, 59, 999999999, time.UTC),
	}

	for _, id := range ids {
		for _, ts := range times {
			c := New(ts, id)
			token := c.Encode()
			assert.Len(t, token, 32)

			decoded, err := Decode(token)
			require.NoError(t, err)
			assert.True(t, decoded.Timestamp.Equal(ts), "timestamp %s != %s", decoded.Timestamp, ts)
			assert.Equal(t, id, decoded.ID)
		}
	}
}

func TestEncode_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC-7", -7*3600)
	ts := time.Date(2020, 8, 1, 5, 0, 0, 0, loc)

	decoded, err := Decode(New(ts, uuid.Nil).Encode())
	require.NoError(t, err)
	assert.True(t, decoded.Timestamp.Equal(ts))
	assert.Equal(t, time.UTC, decoded.Timestamp.Location())
}

func TestEncode_Layout(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	c := New(Epoch.Add(1), id)

	raw, err := base64.URLEncoding.DecodeString(c.Encode())
	require.NoError(t, err)
	require.Len(t, raw, Size)
	assert.Equal(t, id[:], raw[:16])
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, raw[16:])
}

func TestEncode_Saturates(t *testing.T) {
	far := Epoch.AddDate(1000, 0, 0)
	decoded, err := Decode(New(far, uuid.Nil).Encode())
	require.NoError(t, err)
	assert.Equal(t, Epoch.Add(time.Duration(math.MaxInt64)), decoded.Timestamp)
}

func TestDecode_Invalid(t *testing.T) {
	short := base64.URLEncoding.EncodeToString(make([]byte, 16))
	long := base64.URLEncoding.EncodeToString(make([]byte, 30))

	for _, token := range []string{"!!!!", "abc", short, long, "a+b/" + short} {
		_, err := Decode(token)
		assert.Error(t, err, token)
		assert.True(t, errors.Is(err, ErrInvalidCursor), token)
	}
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestCompare(t *testing.T) {
	a := New(Epoch, uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	b := New(Epoch, uuid.MustParse("00000000-0000-0000-0000-000000000002"))
	c := New(Epoch.Add(time.Second), uuid.Nil)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, 0, a.Compare(a))
}
