package xcontent

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() AggregateData {
	return AggregateData{
		DeviceID:    1,
		ContentType: ContentSavedGame,
		DisplayName: "Café Run",
		FileName:    "SAVE0001",
		XUID:        0xE000012345678901,
		TitleID:     0x4D5307E6,
	}
}

func TestAggregateData_Layout(t *testing.T) {
	buf, err := sampleData().MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, AggregateDataSize)

	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(ContentSavedGame), binary.BigEndian.Uint32(buf[4:]))
	// "C" as a big-endian UTF-16 unit.
	assert.Equal(t, []byte{0x00, 'C'}, buf[8:10])
	// "é" is U+00E9.
	assert.Equal(t, []byte{0x00, 0xE9}, buf[14:16])
	assert.Equal(t, []byte("SAVE0001"), buf[0x108:0x110])
	assert.Equal(t, byte(0), buf[0x110])
	assert.Equal(t, uint64(0xE000012345678901), binary.BigEndian.Uint64(buf[0x138:]))
	assert.Equal(t, uint32(0x4D5307E6), binary.BigEndian.Uint32(buf[0x140:]))
}

func TestAggregateData_RoundTrip(t *testing.T) {
	in := sampleData()
	in.FileName = "Ünïcode"
	buf, err := in.MarshalBinary()
	require.NoError(t, err)

	var out AggregateData
	require.NoError(t, out.UnmarshalBinary(buf))
	assert.Equal(t, in, out)
}

func TestAggregateData_NameLimits(t *testing.T) {
	d := sampleData()
	d.FileName = strings.Repeat("x", FileNameBytes)
	_, err := d.MarshalBinary()
	require.NoError(t, err)

	d.FileName += "x"
	_, err = d.MarshalBinary()
	require.ErrorIs(t, err, ErrNameTooLong)

	d = sampleData()
	d.DisplayName = strings.Repeat("y", DisplayNameUnits+1)
	_, err = d.MarshalBinary()
	require.ErrorIs(t, err, ErrNameTooLong)
}

func TestAggregateData_UnmarshalShort(t *testing.T) {
	var d AggregateData
	require.ErrorIs(t, d.UnmarshalBinary(make([]byte, AggregateDataSize-1)), ErrShortHeader)
}

func TestLicenseMask(t *testing.T) {
	tests := []struct {
		name     string
		licenses []License
		want     uint32
	}{
		{"none", nil, 0},
		{"flagged", []License{{Bits: 0x1, Flags: 1}}, 0x1},
		{"unflagged ignored", []License{{Bits: 0x1, Flags: 0}, {Bits: 0x4, Flags: 2}}, 0x4},
		{"or of flagged", []License{{Bits: 0x1, Flags: 1}, {Bits: 0x10, Flags: 1}, {Bits: 0x100}}, 0x11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LicenseMask(tt.licenses))
		})
	}
}

func TestHeader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, sampleData(), 0xFFFFFFFE))
	require.Equal(t, HeaderSize, buf.Len())
	assert.Equal(t, []byte{0xFE, 0xFF, 0xFF, 0xFF}, buf.Bytes()[AggregateDataSize:])

	data, mask, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleData(), data)
	assert.Equal(t, uint32(0xFFFFFFFE), mask)
}

func TestReadHeader_Short(t *testing.T) {
	_, _, err := ReadHeader(bytes.NewReader(make([]byte, AggregateDataSize)))
	require.ErrorIs(t, err, ErrShortHeader)
}

func TestContentType_String(t *testing.T) {
	assert.Equal(t, "saved-game", ContentSavedGame.String())
	assert.Equal(t, "community-game", ContentCommunityGame.String())
	assert.Equal(t, "content(0x00000099)", ContentType(0x99).String())
}

func TestAggregateData_SetFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "fits", in: "0000000000000001", want: "0000000000000001"},
		{name: "exact", in: strings.Repeat("a", FileNameBytes), want: strings.Repeat("a", FileNameBytes)},
		{name: "truncated", in: strings.Repeat("b", FileNameBytes+10), want: strings.Repeat("b", FileNameBytes)},
		{name: "latin1", in: "café", want: "café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d AggregateData
			d.SetFileName(tt.in)
			assert.Equal(t, tt.want, d.FileName)
			_, err := d.MarshalBinary()
			require.NoError(t, err)
		})
	}
}
