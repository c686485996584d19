package fileid

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StrictlyIncreasing(t *testing.T) {
	g := NewGenerator()

	prev := g.New()
	for i := 0; i < 20000; i++ {
		next := g.New()
		require.Equal(t, -1, Compare(prev, next), "id %d did not increase", i)
		prev = next
	}
}

func TestNew_SequenceOverflowBorrowsNextMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := &Generator{now: func() time.Time { return fixed }}

	var last ID
	for i := 0; i <= maxSeq+1; i++ {
		last = g.New()
	}

	assert.Equal(t, fixed.UnixMilli()+1, last.UnixMilli())
}

func TestNewAt_EmbedsTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 123_000_000, time.UTC)
	id := NewAt(ts)

	assert.Equal(t, ts.UnixMilli(), id.UnixMilli())
	assert.True(t, id.Time().Equal(ts))
	assert.Equal(t, byte(0x70), id[6]&0xF0, "version nibble")
	assert.Equal(t, byte(0x80), id[8]&0xC0, "variant bits")
}

func TestNewAt_OrdersByTimestamp(t *testing.T) {
	g := NewGenerator()
	base := time.UnixMilli(1_600_000_000_000)

	later := g.NewAt(base.Add(time.Millisecond))
	earlier := g.NewAt(base)

	assert.True(t, Less(earlier, later))
}

func TestNewAt_SameTickStaysMonotonic(t *testing.T) {
	g := NewGenerator()
	ts := time.UnixMilli(1_650_000_000_000)

	a := g.NewAt(ts)
	b := g.NewAt(ts)
	c := g.NewAt(ts)

	assert.True(t, Less(a, b))
	assert.True(t, Less(b, c))
}

func TestMinMaxAt_BracketTick(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_500)
	g := NewGenerator()

	for i := 0; i < 100; i++ {
		id := g.NewAt(ts)
		assert.True(t, Compare(MinAt(ts), id) <= 0)
		assert.True(t, Compare(id, MaxAt(ts)) <= 0)
	}

	assert.True(t, Less(MaxAt(ts), MinAt(ts.Add(time.Millisecond))))
}

func TestCompare_SortMatchesCreationOrder(t *testing.T) {
	g := NewGenerator()
	ids := make([]ID, 500)
	for i := range ids {
		ids[i] = g.New()
	}

	shuffled := append([]ID(nil), ids...)
	for i := range shuffled {
		j := (i * 7919) % len(shuffled)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	sort.Slice(shuffled, func(i, j int) bool { return Less(shuffled[i], shuffled[j]) })

	assert.Equal(t, ids, shuffled)
}

func TestParse(t *testing.T) {
	id := New()

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = Parse("not-an-id")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestFromBytes(t *testing.T) {
	id := New()

	got, err := FromBytes(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = FromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestScan(t *testing.T) {
	id := New()

	t.Run("RawBytes", func(t *testing.T) {
		var got ID
		require.NoError(t, got.Scan(id.Bytes()))
		assert.Equal(t, id, got)
	})

	t.Run("Text", func(t *testing.T) {
		var got ID
		require.NoError(t, got.Scan(id.String()))
		assert.Equal(t, id, got)
	})

	t.Run("Unsupported", func(t *testing.T) {
		var got ID
		assert.ErrorIs(t, got.Scan(int64(5)), ErrInvalidID)
	})
}

func TestJSON(t *testing.T) {
	id := New()

	raw, err := json.Marshal(struct {
		ID ID `json:"id"`
	}{id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id.String()+`"}`, string(raw))

	var decoded struct {
		ID ID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, id, decoded.ID)
}
