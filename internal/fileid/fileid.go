// Package fileid implements the time-sortable 128-bit identifiers that name
// every record on a drive.
//
// The byte layout is a UUIDv7 (RFC 9562): 48 bits of Unix milliseconds,
// the version nibble, a 12-bit per-millisecond sequence, the variant bits and
// 62 random bits. Comparing two IDs byte-wise therefore orders them by
// creation time, and IDs minted by one Generator are strictly increasing.
package fileid

import (
	"bytes"
	"database/sql/driver"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when bytes or text cannot be decoded into an ID.
var ErrInvalidID = errors.New("invalid file id")

const maxSeq = 0x0FFF

// ID is a sortable file identifier.
type ID [16]byte

// Nil is the zero ID. It sorts before every generated ID.
var Nil ID

// Generator mints monotonically increasing IDs.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    uint16
	now    func() time.Time
}

// NewGenerator returns a generator reading the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

var defaultGenerator = NewGenerator()

// New returns an ID for the current time from the process-wide generator.
func New() ID {
	return defaultGenerator.New()
}

// NewAt returns an ID embedding t from the process-wide generator.
func NewAt(t time.Time) ID {
	return defaultGenerator.NewAt(t)
}

// New returns an ID strictly greater than every ID this generator returned
// before. When the sequence of a millisecond is exhausted the timestamp is
// pushed forward by one millisecond.
func (g *Generator) New() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.lastMs {
		ms = g.lastMs
		if g.seq >= maxSeq {
			ms++
			g.seq = 0
		} else {
			g.seq++
		}
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	return build(ms, g.seq)
}

// NewAt returns an ID embedding the millisecond of t. Within the tick last
// used by the generator the sequence keeps increasing; an exhausted sequence
// falls back to the random tail for uniqueness.
func (g *Generator) NewAt(t time.Time) ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := t.UnixMilli()
	var seq uint16
	switch {
	case ms == g.lastMs:
		if g.seq < maxSeq {
			g.seq++
		}
		seq = g.seq
	case ms > g.lastMs:
		g.lastMs = ms
		g.seq = 0
	}

	return build(ms, seq)
}

func build(ms int64, seq uint16) ID {
	var id ID
	putMillis(&id, ms)

	rnd := uuid.New()
	id[6] = 0x70 | byte(seq>>8)&0x0F
	id[7] = byte(seq)
	id[8] = 0x80 | rnd[8]&0x3F
	copy(id[9:], rnd[9:])

	return id
}

func putMillis(id *ID, ms int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ms))
	copy(id[0:6], buf[2:8])
}

// MinAt returns the smallest ID carrying the millisecond of t.
func MinAt(t time.Time) ID {
	var id ID
	putMillis(&id, t.UnixMilli())
	id[6] = 0x70
	id[8] = 0x80
	return id
}

// MaxAt returns the largest ID carrying the millisecond of t.
func MaxAt(t time.Time) ID {
	var id ID
	putMillis(&id, t.UnixMilli())
	id[6] = 0x7F
	id[7] = 0xFF
	id[8] = 0xBF
	for i := 9; i < len(id); i++ {
		id[i] = 0xFF
	}
	return id
}

// Compare orders two IDs byte-wise. The result is -1, 0 or +1.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Less reports whether a sorts before b.
func Less(a, b ID) bool {
	return Compare(a, b) < 0
}

// UnixMilli returns the embedded timestamp in milliseconds.
func (id ID) UnixMilli() int64 {
	var buf [8]byte
	copy(buf[2:], id[0:6])
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// Time returns the embedded timestamp.
func (id ID) Time() time.Time {
	return time.UnixMilli(id.UnixMilli()).UTC()
}

// IsNil reports whether id is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Bytes returns a copy of the raw 16 bytes.
func (id ID) Bytes() []byte {
	b := make([]byte, len(id))
	copy(b, id[:])
	return b
}

// Parse decodes the canonical textual form.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}
	return ID(u), nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromBytes decodes exactly 16 raw bytes.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != len(id) {
		return Nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidID, len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Value stores the raw bytes so that SQL ordering matches Compare.
func (id ID) Value() (driver.Value, error) {
	return id.Bytes(), nil
}

// Scan accepts raw bytes or the canonical text form.
func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		if len(v) == len(id) {
			copy(id[:], v)
			return nil
		}
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidID, src)
	}
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Ptr returns a pointer to a copy of id.
func (id ID) Ptr() *ID {
	return &id
}
