// Package chaptertag implements the Chapter-Tag Encoder: a byte-exact
// ID3v2.4-shaped chapter index and cover-art prefix prepended to a
// multi-part book's virtual MPEG stream so a conforming player reads
// chapters before any audio frame.
package chaptertag

import (
	"bytes"
	"encoding/binary"

	"github.com/podible/podible/internal/model"
)

const (
	pictureTypeFrontCover = 0x03
	encodingUTF8          = 0x03
	ctocFlagsTopLevelOrdered = 0x03
)

// synchsafe encodes n as four 7-bit big-endian digits, ID3's synchsafe
// integer format.
func synchsafe(n int) [4]byte {
	return [4]byte{
		byte((n >> 21) & 0x7F),
		byte((n >> 14) & 0x7F),
		byte((n >> 7) & 0x7F),
		byte(n & 0x7F),
	}
}

// encodeFrame wraps body in a 10-byte frame header: 4-byte ASCII id,
// synchsafe body size, two zero flag bytes.
func encodeFrame(id string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	ss := synchsafe(len(body))
	buf.Write(ss[:])
	buf.Write([]byte{0x00, 0x00})
	buf.Write(body)
	return buf.Bytes()
}

func frameLen(bodyLen int) int {
	return 10 + bodyLen
}

func tit2Frame(text string) []byte {
	body := make([]byte, 0, 1+len(text))
	body = append(body, encodingUTF8)
	body = append(body, text...)
	return encodeFrame("TIT2", body)
}

func tit2FrameLen(text string) int {
	return frameLen(1 + len(text))
}

func apicFrame(mime string, data []byte) []byte {
	var body bytes.Buffer
	body.WriteByte(encodingUTF8)
	body.WriteString(mime)
	body.WriteByte(0x00)
	body.WriteByte(pictureTypeFrontCover)
	body.WriteByte(0x00) // empty description, null-terminated
	body.Write(data)
	return encodeFrame("APIC", body.Bytes())
}

func apicBodyLen(mime string, dataLen int) int {
	return 1 + len(mime) + 1 + 1 + 1 + dataLen
}

func ctocFrame(chapterIDs []string) []byte {
	var body bytes.Buffer
	body.WriteString("toc")
	body.WriteByte(0x00)
	body.WriteByte(ctocFlagsTopLevelOrdered)
	body.WriteByte(byte(len(chapterIDs)))
	for _, id := range chapterIDs {
		body.WriteString(id)
		body.WriteByte(0x00)
	}
	body.Write(tit2Frame("Chapters"))
	return encodeFrame("CTOC", body.Bytes())
}

func ctocBodyLen(chapterIDs []string) int {
	n := 3 + 1 + 1 + 1
	for _, id := range chapterIDs {
		n += len(id) + 1
	}
	return n + tit2FrameLen("Chapters")
}

func chapFrame(id string, startMS, endMS int64, title string) []byte {
	var body bytes.Buffer
	body.WriteString(id)
	body.WriteByte(0x00)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(startMS))
	body.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], uint32(endMS))
	body.Write(u32[:])
	body.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	body.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	body.Write(tit2Frame(title))
	return encodeFrame("CHAP", body.Bytes())
}

func chapBodyLen(id, title string) int {
	return len(id) + 1 + 4 + 4 + 4 + 4 + tit2FrameLen(title)
}

// Cover is the optional front-cover image embedded ahead of the chapter
// table.
type Cover struct {
	Mime string
	Data []byte
}

// Encode produces the chapter-tag buffer for chapters and an optional
// cover. Zero chapters and no cover produce an empty (zero-length)
// buffer.
func Encode(chapters []model.ChapterTiming, cover *Cover) []byte {
	var payload bytes.Buffer

	if cover != nil && len(cover.Data) > 0 {
		payload.Write(apicFrame(cover.Mime, cover.Data))
	}

	if len(chapters) > 0 {
		ids := make([]string, len(chapters))
		for i, ch := range chapters {
			ids[i] = ch.ID
		}
		payload.Write(ctocFrame(ids))
		for _, ch := range chapters {
			payload.Write(chapFrame(ch.ID, ch.StartMS, ch.EndMS, ch.Title))
		}
	}

	if payload.Len() == 0 {
		return nil
	}

	var out bytes.Buffer
	out.WriteString("ID3")
	out.Write([]byte{0x04, 0x00})
	out.WriteByte(0x00)
	ss := synchsafe(payload.Len())
	out.Write(ss[:])
	out.Write(payload.Bytes())
	return out.Bytes()
}

// EstimatedLength computes the exact byte length Encode would produce
// for chapters and a cover of the given mime/byte-length, without
// materializing the cover's pixel data or the encoded buffer — every
// frame's size depends only on id/title string lengths and counts, not
// on the numeric time-field values or the cover's actual bytes.
func EstimatedLength(chapters []model.ChapterTiming, coverMime string, coverLen int) int {
	payloadLen := 0

	if coverLen > 0 {
		payloadLen += frameLen(apicBodyLen(coverMime, coverLen))
	}

	if len(chapters) > 0 {
		ids := make([]string, len(chapters))
		for i, ch := range chapters {
			ids[i] = ch.ID
		}
		payloadLen += frameLen(ctocBodyLen(ids))
		for _, ch := range chapters {
			payloadLen += frameLen(chapBodyLen(ch.ID, ch.Title))
		}
	}

	if payloadLen == 0 {
		return 0
	}

	return 10 + payloadLen
}
