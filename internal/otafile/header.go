package otafile

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// HeaderSize is the on-wire size of the fixed header record, not
// counting the leading magic.
const HeaderSize = 2 + 2 + 2 + 2 + 2 + 4 + 2 + 32 + 4

// Header is the OTA container's fixed-size record.
type Header struct {
	Version            uint16
	Length             uint16
	FieldControl       FieldControl
	ManufacturerID     uint16
	ImageType          uint16
	FirmwareVersion    uint32
	ZigbeeStackVersion uint16
	Name               [32]byte
	ImageSize          uint32
}

// DisplayName renders Name as UTF-8, replacing invalid sequences and
// trimming trailing NUL padding, for logging and diagnostics only.
func (h Header) DisplayName() string {
	valid := strings.ToValidUTF8(string(h.Name[:]), "�")
	return strings.TrimRight(valid, "\x00")
}

func decodeHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("otafile: insufficient bytes for header: %w", err)
	}

	var h Header
	h.Version = binary.LittleEndian.Uint16(buf[0:2])
	h.Length = binary.LittleEndian.Uint16(buf[2:4])
	h.FieldControl = FieldControl(binary.LittleEndian.Uint16(buf[4:6]))
	h.ManufacturerID = binary.LittleEndian.Uint16(buf[6:8])
	h.ImageType = binary.LittleEndian.Uint16(buf[8:10])
	h.FirmwareVersion = binary.LittleEndian.Uint32(buf[10:14])
	h.ZigbeeStackVersion = binary.LittleEndian.Uint16(buf[14:16])
	copy(h.Name[:], buf[16:48])
	h.ImageSize = binary.LittleEndian.Uint32(buf[48:52])
	return h, nil
}

func encodeHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], h.Version)
	binary.LittleEndian.PutUint16(buf[2:4], h.Length)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.FieldControl))
	binary.LittleEndian.PutUint16(buf[6:8], h.ManufacturerID)
	binary.LittleEndian.PutUint16(buf[8:10], h.ImageType)
	binary.LittleEndian.PutUint32(buf[10:14], h.FirmwareVersion)
	binary.LittleEndian.PutUint16(buf[14:16], h.ZigbeeStackVersion)
	copy(buf[16:48], h.Name[:])
	binary.LittleEndian.PutUint32(buf[48:52], h.ImageSize)
	_, err := w.Write(buf[:])
	return err
}
