// Package xcontent describes Xbox 360 content packages: the aggregate
// content descriptor stored next to extracted packages, content types and
// license masks.
package xcontent

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// On-disk layout of the aggregate descriptor (big-endian).
const (
	offDeviceID    = 0x000
	offContentType = 0x004
	offDisplayName = 0x008
	offFileName    = 0x108
	offXUID        = 0x138
	offTitleID     = 0x140

	// DisplayNameUnits is the capacity of the display name in UTF-16 units.
	DisplayNameUnits = 128
	// FileNameBytes is the capacity of the file name in Windows-1252 bytes.
	FileNameBytes = 42

	// AggregateDataSize is the encoded size of AggregateData.
	AggregateDataSize = 0x148

	// HeaderSize is the size of a .header file: the descriptor plus the
	// little-endian license mask.
	HeaderSize = AggregateDataSize + 4

	// MaxLicenses is the number of license slots in a package header.
	MaxLicenses = 0x10
)

var (
	// ErrShortHeader indicates a header shorter than HeaderSize.
	ErrShortHeader = errors.New("xcontent: short header")

	// ErrNameTooLong indicates a name exceeding its fixed field.
	ErrNameTooLong = errors.New("xcontent: name too long")
)

// AggregateData describes one piece of content: which device and title it
// belongs to, its type and its names.
type AggregateData struct {
	DeviceID    uint32      `json:"device_id"`
	ContentType ContentType `json:"content_type"`
	DisplayName string      `json:"display_name"`
	FileName    string      `json:"file_name"`
	XUID        uint64      `json:"xuid"`
	TitleID     uint32      `json:"title_id"`
}

var (
	utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	cp1252  = charmap.Windows1252
)

// MarshalBinary encodes d in its fixed 0x148-byte form. Names are
// zero-padded; names that do not fit return ErrNameTooLong.
func (d AggregateData) MarshalBinary() ([]byte, error) {
	buf := make([]byte, AggregateDataSize)
	binary.BigEndian.PutUint32(buf[offDeviceID:], d.DeviceID)
	binary.BigEndian.PutUint32(buf[offContentType:], uint32(d.ContentType))

	display, err := utf16be.NewEncoder().Bytes([]byte(d.DisplayName))
	if err != nil {
		return nil, fmt.Errorf("xcontent: encode display name: %w", err)
	}
	if len(display) > DisplayNameUnits*2 {
		return nil, fmt.Errorf("%w: display name is %d units", ErrNameTooLong, len(display)/2)
	}
	copy(buf[offDisplayName:], display)

	file, err := cp1252.NewEncoder().Bytes([]byte(d.FileName))
	if err != nil {
		return nil, fmt.Errorf("xcontent: encode file name: %w", err)
	}
	if len(file) > FileNameBytes {
		return nil, fmt.Errorf("%w: file name is %d bytes", ErrNameTooLong, len(file))
	}
	copy(buf[offFileName:], file)

	binary.BigEndian.PutUint64(buf[offXUID:], d.XUID)
	binary.BigEndian.PutUint32(buf[offTitleID:], d.TitleID)
	return buf, nil
}

// SetFileName stores name cut to the FileNameBytes field. Characters
// Windows-1252 cannot represent become its substitute character.
func (d *AggregateData) SetFileName(name string) {
	raw, err := encoding.ReplaceUnsupported(cp1252.NewEncoder()).String(name)
	if err != nil {
		raw = ""
	}
	if len(raw) > FileNameBytes {
		raw = raw[:FileNameBytes]
	}
	file, err := cp1252.NewDecoder().String(raw)
	if err != nil {
		file = ""
	}
	d.FileName = file
}

// UnmarshalBinary decodes the fixed form produced by MarshalBinary. Names
// end at the first zero unit.
func (d *AggregateData) UnmarshalBinary(data []byte) error {
	if len(data) < AggregateDataSize {
		return fmt.Errorf("%w: %d bytes", ErrShortHeader, len(data))
	}
	d.DeviceID = binary.BigEndian.Uint32(data[offDeviceID:])
	d.ContentType = ContentType(binary.BigEndian.Uint32(data[offContentType:]))

	raw := data[offDisplayName : offDisplayName+DisplayNameUnits*2]
	n := 0
	for n < len(raw) && (raw[n] != 0 || raw[n+1] != 0) {
		n += 2
	}
	display, err := utf16be.NewDecoder().Bytes(raw[:n])
	if err != nil {
		return fmt.Errorf("xcontent: decode display name: %w", err)
	}
	d.DisplayName = string(display)

	raw = data[offFileName : offFileName+FileNameBytes]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	file, err := cp1252.NewDecoder().Bytes(raw)
	if err != nil {
		return fmt.Errorf("xcontent: decode file name: %w", err)
	}
	d.FileName = string(file)

	d.XUID = binary.BigEndian.Uint64(data[offXUID:])
	d.TitleID = binary.BigEndian.Uint32(data[offTitleID:])
	return nil
}

// License is one license slot of a package header.
type License struct {
	ID    uint64 `json:"id"`
	Bits  uint32 `json:"bits"`
	Flags uint32 `json:"flags"`
}

// LicenseMask ORs the bits of every license whose flags are set.
func LicenseMask(licenses []License) uint32 {
	var mask uint32
	for _, l := range licenses {
		if l.Flags != 0 {
			mask |= l.Bits
		}
	}
	return mask
}

// WriteHeader writes a .header file: data followed by the license mask in
// little-endian order.
func WriteHeader(w io.Writer, data AggregateData, licenseMask uint32) error {
	buf, err := EncodeHeader(data, licenseMask)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// EncodeHeader returns the HeaderSize bytes WriteHeader writes.
func EncodeHeader(data AggregateData, licenseMask uint32) ([]byte, error) {
	buf, err := data.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return binary.LittleEndian.AppendUint32(buf, licenseMask), nil
}

// ReadHeader parses a .header file written by WriteHeader.
func ReadHeader(r io.Reader) (AggregateData, uint32, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return AggregateData{}, 0, ErrShortHeader
		}
		return AggregateData{}, 0, err
	}
	var d AggregateData
	if err := d.UnmarshalBinary(buf); err != nil {
		return AggregateData{}, 0, err
	}
	return d, binary.LittleEndian.Uint32(buf[AggregateDataSize:]), nil
}
