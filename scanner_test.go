package isomp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerIteratesTopLevelBoxes(t *testing.T) {
	buf := append(rawBoxBytes("ftyp", []byte{'i', 's', 'o', '5'}), rawBoxBytes("free", nil)...)

	sc := NewScanner(bytes.NewReader(buf))
	require.True(t, sc.Next())
	e := sc.Entry()
	assert.Equal(t, BoxType{'f', 't', 'y', 'p'}, e.Type)
	assert.EqualValues(t, 12, e.Size)
	assert.EqualValues(t, 4, e.DataSize())

	require.True(t, sc.Next())
	e = sc.Entry()
	assert.Equal(t, BoxType{'f', 'r', 'e', 'e'}, e.Type)
	assert.EqualValues(t, 8, e.Size)

	assert.False(t, sc.Next())
	assert.NoError(t, sc.Err())
}

func TestScannerRejectsLargesizeBelowSixteen(t *testing.T) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[:4], 1)
	copy(buf[4:8], "mdat")
	binary.BigEndian.PutUint64(buf[8:16], 15) // 15 < 16: never valid

	sc := NewScanner(bytes.NewReader(buf))
	assert.False(t, sc.Next())
	var invalid *InvalidDataError
	require.ErrorAs(t, sc.Err(), &invalid)
}

func TestScannerReadBody(t *testing.T) {
	buf := rawBoxBytes("free", []byte{9, 8, 7, 6})

	sc := NewScanner(bytes.NewReader(buf))
	require.True(t, sc.Next())
	body := make([]byte, sc.Entry().DataSize())
	require.NoError(t, sc.ReadBody(body))
	assert.Equal(t, []byte{9, 8, 7, 6}, body)
}
