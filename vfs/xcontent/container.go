package xcontent

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Package signatures, stored big-endian in the first four header bytes.
const (
	SignatureCON  uint32 = 0x434F4E20 // "CON ", console-signed
	SignatureLIVE uint32 = 0x4C495645 // "LIVE", signed by the online service
	SignaturePIRS uint32 = 0x50495253 // "PIRS", signed by the publisher
)

// ContainerHeaderMember is the archive member of a zip-packaged content
// package that holds the package header. It is not part of the content.
const ContainerHeaderMember = "$header"

// Package header layout (big-endian).
const (
	offSignature       = 0x000
	offLicenses        = 0x22C
	licenseEntrySize   = 0x10
	offHeaderSize      = 0x340
	offMetaContentType = 0x344
	offMetaTitleID     = 0x360
	offMetaProfileID   = 0x371
	offMetaDisplayName = 0x411

	// MetaDisplayNameUnits is the capacity of the first-locale display name.
	MetaDisplayNameUnits = 0x40

	// ContainerHeaderSize is the number of header bytes read and written.
	ContainerHeaderSize = offMetaDisplayName + MetaDisplayNameUnits*2
)

// ErrBadSignature indicates a package header without a known signature.
var ErrBadSignature = errors.New("xcontent: unknown package signature")

// ContainerHeader is the part of a content package header the emulator
// uses: the signature, the license table and the content metadata.
type ContainerHeader struct {
	Signature   uint32               `json:"signature"`
	Licenses    [MaxLicenses]License `json:"licenses"`
	HeaderSize  uint32               `json:"header_size"`
	ContentType ContentType          `json:"content_type"`
	TitleID     uint32               `json:"title_id"`
	XUID        uint64               `json:"xuid"`
	DisplayName string               `json:"display_name"`
}

// SignatureName returns the four-character form of a signature.
func SignatureName(sig uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], sig)
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return fmt.Sprintf("0x%08X", sig)
		}
	}
	return string(b[:])
}

func validSignature(sig uint32) bool {
	switch sig {
	case SignatureCON, SignatureLIVE, SignaturePIRS:
		return true
	}
	return false
}

// LicenseMask ORs the bits of the header's active licenses.
func (h ContainerHeader) LicenseMask() uint32 { return LicenseMask(h.Licenses[:]) }

// AggregateData returns the content descriptor of the package as stored on
// deviceID. The file name is left for the installer to set.
func (h ContainerHeader) AggregateData(deviceID uint32) AggregateData {
	return AggregateData{
		DeviceID:    deviceID,
		ContentType: h.ContentType,
		DisplayName: h.DisplayName,
		XUID:        h.XUID,
		TitleID:     h.TitleID,
	}
}

// MarshalBinary encodes h in ContainerHeaderSize bytes. Regions the
// emulator does not interpret are zero.
func (h ContainerHeader) MarshalBinary() ([]byte, error) {
	if !validSignature(h.Signature) {
		return nil, fmt.Errorf("%w: %s", ErrBadSignature, SignatureName(h.Signature))
	}
	buf := make([]byte, ContainerHeaderSize)
	binary.BigEndian.PutUint32(buf[offSignature:], h.Signature)
	for i, l := range h.Licenses {
		off := offLicenses + i*licenseEntrySize
		binary.BigEndian.PutUint64(buf[off:], l.ID)
		binary.BigEndian.PutUint32(buf[off+8:], l.Bits)
		binary.BigEndian.PutUint32(buf[off+12:], l.Flags)
	}
	binary.BigEndian.PutUint32(buf[offHeaderSize:], h.HeaderSize)
	binary.BigEndian.PutUint32(buf[offMetaContentType:], uint32(h.ContentType))
	binary.BigEndian.PutUint32(buf[offMetaTitleID:], h.TitleID)
	binary.BigEndian.PutUint64(buf[offMetaProfileID:], h.XUID)

	name, err := utf16be.NewEncoder().Bytes([]byte(h.DisplayName))
	if err != nil {
		return nil, fmt.Errorf("xcontent: encode display name: %w", err)
	}
	if len(name) > MetaDisplayNameUnits*2 {
		return nil, fmt.Errorf("%w: display name is %d units", ErrNameTooLong, len(name)/2)
	}
	copy(buf[offMetaDisplayName:], name)
	return buf, nil
}

// UnmarshalBinary decodes a package header and checks its signature.
func (h *ContainerHeader) UnmarshalBinary(data []byte) error {
	if len(data) < ContainerHeaderSize {
		return fmt.Errorf("%w: package header is %d bytes", ErrShortHeader, len(data))
	}
	sig := binary.BigEndian.Uint32(data[offSignature:])
	if !validSignature(sig) {
		return fmt.Errorf("%w: %s", ErrBadSignature, SignatureName(sig))
	}
	h.Signature = sig
	for i := range h.Licenses {
		off := offLicenses + i*licenseEntrySize
		h.Licenses[i] = License{
			ID:    binary.BigEndian.Uint64(data[off:]),
			Bits:  binary.BigEndian.Uint32(data[off+8:]),
			Flags: binary.BigEndian.Uint32(data[off+12:]),
		}
	}
	h.HeaderSize = binary.BigEndian.Uint32(data[offHeaderSize:])
	h.ContentType = ContentType(binary.BigEndian.Uint32(data[offMetaContentType:]))
	h.TitleID = binary.BigEndian.Uint32(data[offMetaTitleID:])
	h.XUID = binary.BigEndian.Uint64(data[offMetaProfileID:])

	raw := data[offMetaDisplayName : offMetaDisplayName+MetaDisplayNameUnits*2]
	n := 0
	for n < len(raw) && (raw[n] != 0 || raw[n+1] != 0) {
		n += 2
	}
	name, err := utf16be.NewDecoder().Bytes(raw[:n])
	if err != nil {
		return fmt.Errorf("xcontent: decode display name: %w", err)
	}
	h.DisplayName = string(name)
	return nil
}

// ReadContainerHeader reads and verifies a package header from r.
func ReadContainerHeader(r io.Reader) (ContainerHeader, error) {
	buf := make([]byte, ContainerHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return ContainerHeader{}, ErrShortHeader
		}
		return ContainerHeader{}, err
	}
	var h ContainerHeader
	if err := h.UnmarshalBinary(buf); err != nil {
		return ContainerHeader{}, err
	}
	return h, nil
}
