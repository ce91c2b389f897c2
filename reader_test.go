package isomp4

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawBoxBytes(boxType string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(buf)))
	copy(buf[4:8], boxType)
	copy(buf[8:], payload)
	return buf
}

func TestReaderIteratesSiblingBoxes(t *testing.T) {
	buf := append(rawBoxBytes("free", nil), rawBoxBytes("skip", []byte{1, 2, 3, 4})...)

	r := NewReader(buf)
	require.True(t, r.Next())
	assert.Equal(t, BoxType{'f', 'r', 'e', 'e'}, r.Type())
	assert.EqualValues(t, 8, r.Size())

	require.True(t, r.Next())
	assert.Equal(t, BoxType{'s', 'k', 'i', 'p'}, r.Type())
	assert.EqualValues(t, 12, r.Size())
	assert.Equal(t, []byte{1, 2, 3, 4}, r.Data())

	assert.False(t, r.Next())
}

func TestReaderLargesizeEscape(t *testing.T) {
	payload := make([]byte, 16)
	buf := make([]byte, 16+len(payload))
	binary.BigEndian.PutUint32(buf[:4], 1) // size==1 signals a 64-bit largesize follows
	copy(buf[4:8], "mdat")
	binary.BigEndian.PutUint64(buf[8:16], uint64(len(buf)))

	r := NewReader(buf)
	require.True(t, r.Next())
	assert.Equal(t, BoxType{'m', 'd', 'a', 't'}, r.Type())
	assert.EqualValues(t, len(buf), r.Size())
	assert.Len(t, r.Data(), 16)
}

func TestReaderSizeZeroExtendsToEnd(t *testing.T) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[:4], 0)
	copy(buf[4:8], "mdat")
	buf = append(buf, []byte{9, 9, 9}...)

	r := NewReader(buf)
	require.True(t, r.Next())
	assert.EqualValues(t, len(buf), r.Size())
	assert.Equal(t, []byte{9, 9, 9}, r.Data())
	assert.False(t, r.Next())
}

func TestReaderFullBoxVersionAndFlags(t *testing.T) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, 0x01_020304) // version=1, flags=0x020304
	buf := rawBoxBytes("mvhd", payload)

	r := NewReader(buf)
	require.True(t, r.Next())
	assert.EqualValues(t, 1, r.Version())
	assert.EqualValues(t, 0x020304, r.Flags())
}

func TestReaderEnterExitNesting(t *testing.T) {
	child := rawBoxBytes("mdhd", []byte{0, 0, 0, 0})
	moov := rawBoxBytes("moov", child)
	buf := append(moov, rawBoxBytes("free", nil)...)

	r := NewReader(buf)
	require.True(t, r.Next())
	assert.Equal(t, TypeMoov, r.Type())

	r.Enter()
	require.True(t, r.Next())
	assert.Equal(t, BoxType{'m', 'd', 'h', 'd'}, r.Type())
	assert.False(t, r.Next())
	r.Exit()

	require.True(t, r.Next())
	assert.Equal(t, BoxType{'f', 'r', 'e', 'e'}, r.Type())
}

func TestReaderRawBoxIncludesHeader(t *testing.T) {
	buf := rawBoxBytes("free", []byte{1, 2})

	r := NewReader(buf)
	require.True(t, r.Next())
	assert.Equal(t, buf, r.RawBox())
}

func TestReaderRejectsLargesizeBelowSixteen(t *testing.T) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[:4], 1) // size==1 signals a largesize follows
	copy(buf[4:8], "mdat")
	binary.BigEndian.PutUint64(buf[8:16], 8) // 8 < 16: never valid

	r := NewReader(buf)
	assert.False(t, r.Next())
	var invalid *InvalidDataError
	require.ErrorAs(t, r.Err(), &invalid)
}

func TestReaderEnterMetaIsoStyle(t *testing.T) {
	child := rawBoxBytes("ilst", nil)
	// ISO-style meta: a zero version/flags word precedes the children.
	payload := append([]byte{0, 0, 0, 0}, child...)
	buf := rawBoxBytes("meta", payload)

	r := NewReader(buf)
	require.True(t, r.Next())
	assert.Equal(t, TypeMeta, r.Type())
	assert.False(t, IsFullBox(r.Type()))

	r.EnterMeta()
	require.True(t, r.Next())
	assert.Equal(t, TypeIlst, r.Type())
	assert.False(t, r.Next())
	r.Exit()
}

func TestReaderEnterMetaQuickTimeStyle(t *testing.T) {
	child := rawBoxBytes("ilst", nil)
	// QuickTime-style meta: no version/flags word, straight into children.
	buf := rawBoxBytes("meta", child)

	r := NewReader(buf)
	require.True(t, r.Next())
	assert.Equal(t, TypeMeta, r.Type())

	r.EnterMeta()
	require.True(t, r.Next())
	assert.Equal(t, TypeIlst, r.Type())
	assert.False(t, r.Next())
	r.Exit()
}
