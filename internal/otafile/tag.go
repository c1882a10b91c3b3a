package otafile

import (
	"encoding/binary"
	"io"
)

// tagHeaderSize is the wire size of a Tag's id+length pair.
const tagHeaderSize = 2 + 4

// Tag is one entry of the trailing tag list: an identifier and the
// length of the tag's own data, which this decoder does not interpret
// further (only the budget accounting in §4.2 step 6 needs it).
type Tag struct {
	ID     uint16
	Length uint32
}

// decodeTags reads tags while budget remains positive, stopping
// silently (not as an error) when the stream is exhausted mid-tag.
func decodeTags(r io.Reader, budget uint32) []Tag {
	var tags []Tag
	var buf [tagHeaderSize]byte
	for budget > 0 {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			break
		}
		tag := Tag{
			ID:     binary.LittleEndian.Uint16(buf[0:2]),
			Length: binary.LittleEndian.Uint32(buf[2:6]),
		}
		tags = append(tags, tag)
		budget = saturatingSub(budget, saturatingAdd(tag.Length, tagHeaderSize))
	}
	return tags
}

func encodeTag(w io.Writer, tag Tag) error {
	var buf [tagHeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], tag.ID)
	binary.LittleEndian.PutUint32(buf[2:6], tag.Length)
	_, err := w.Write(buf[:])
	return err
}

func saturatingSub(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}

func saturatingAdd(a, b uint32) uint32 {
	sum := a + b
	if sum < a {
		return ^uint32(0)
	}
	return sum
}
