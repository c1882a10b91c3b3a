// Package otafile decodes the OTA container format: a fixed header,
// a set of optional sub-records gated by a field-control bitmask, a
// budget-bounded trailing tag list, and a payload suffix.
package otafile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the required first four bytes of every OTA container.
var Magic = [4]byte{0x1E, 0xF1, 0xEE, 0x0B}

// HardwareVersions is the optional min/max hardware compatibility
// range gated by field_control bit 2.
type HardwareVersions struct {
	Min uint16
	Max uint16
}

// File is a fully decoded OTA container.
type File struct {
	RawMagic            [4]byte
	Header              Header
	SecurityCredentials *byte
	Destination         Destination
	HardwareVersions    *HardwareVersions
	Tags                []Tag
	Payload             []byte
}

// Decode implements §4.2 steps 1–7. It never validates the magic;
// callers must call Validate separately.
func Decode(r io.Reader) (*File, error) {
	f := &File{}

	if _, err := io.ReadFull(r, f.RawMagic[:]); err != nil {
		return nil, fmt.Errorf("otafile: insufficient bytes for magic: %w", err)
	}

	header, err := decodeHeader(r)
	if err != nil {
		return nil, err
	}
	f.Header = header

	if header.FieldControl.HasSecurityCredentials() {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("otafile: insufficient bytes for security credentials: %w", err)
		}
		f.SecurityCredentials = &b[0]
	}

	if header.FieldControl.HasUpgradeDestination() {
		dest, err := decodeDestination(r, header.Version)
		if err != nil {
			return nil, err
		}
		f.Destination = dest
	}

	if header.FieldControl.HasHardwareVersions() {
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("otafile: insufficient bytes for hardware versions: %w", err)
		}
		f.HardwareVersions = &HardwareVersions{
			Min: binary.LittleEndian.Uint16(buf[0:2]),
			Max: binary.LittleEndian.Uint16(buf[2:4]),
		}
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("otafile: reading payload: %w", err)
	}

	// A tag cut short by the end of the stream is not consumed: its
	// bytes stay part of the payload.
	budget := saturatingSub(header.ImageSize, uint32(header.Length))
	f.Tags = decodeTags(bytes.NewReader(rest), budget)
	f.Payload = rest[len(f.Tags)*tagHeaderSize:]

	return f, nil
}

// Validate is a distinct, explicit step per §4.2: it checks the magic
// and returns the faulty bytes on mismatch. Decode never calls it.
func (f *File) Validate() error {
	if f.RawMagic != Magic {
		return fmt.Errorf("otafile: bad magic %X, want %X", f.RawMagic, Magic)
	}
	return nil
}

// Encode writes f back out in the OTA wire format. It exists to
// support the decode/encode round-trip test; no production code path
// needs to re-serialize a container.
func (f *File) Encode(w io.Writer) error {
	if _, err := w.Write(f.RawMagic[:]); err != nil {
		return err
	}
	if err := encodeHeader(w, f.Header); err != nil {
		return err
	}
	if f.Header.FieldControl.HasSecurityCredentials() {
		if f.SecurityCredentials == nil {
			return fmt.Errorf("otafile: encode: security credentials flagged but absent")
		}
		if _, err := w.Write([]byte{*f.SecurityCredentials}); err != nil {
			return err
		}
	}
	if f.Header.FieldControl.HasUpgradeDestination() {
		switch f.Destination.Kind {
		case DestinationZigbee:
			if _, err := w.Write(f.Destination.Zigbee[:]); err != nil {
				return err
			}
		case DestinationThread:
			if _, err := w.Write(f.Destination.Thread[:]); err != nil {
				return err
			}
		case DestinationNone:
			// Unrecognized header.Version consumed no bytes on decode.
		}
	}
	if f.Header.FieldControl.HasHardwareVersions() {
		if f.HardwareVersions == nil {
			return fmt.Errorf("otafile: encode: hardware versions flagged but absent")
		}
		var buf [4]byte
		binary.LittleEndian.PutUint16(buf[0:2], f.HardwareVersions.Min)
		binary.LittleEndian.PutUint16(buf[2:4], f.HardwareVersions.Max)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	for _, tag := range f.Tags {
		if err := encodeTag(w, tag); err != nil {
			return err
		}
	}
	if _, err := w.Write(f.Payload); err != nil {
		return err
	}
	return nil
}

// Bytes is a convenience wrapper returning the encoded form as a byte
// slice, used by tests.
func (f *File) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
