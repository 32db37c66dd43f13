package metadata

import (
	"encoding/binary"
	"os"
	"time"
)

// mp4Box encodes a box with the given type and body.
func mp4Box(kind string, body ...[]byte) []byte {
	size := 8
	for _, b := range body {
		size += len(b)
	}
	out := make([]byte, 8, size)
	binary.BigEndian.PutUint32(out[0:4], uint32(size))
	copy(out[4:8], kind)
	for _, b := range body {
		out = append(out, b...)
	}
	return out
}

func mvhdV0(created time.Time, durationSeconds uint32) []byte {
	body := make([]byte, 100)
	mac := uint32(created.Sub(macEpoch).Seconds())
	binary.BigEndian.PutUint32(body[4:8], mac)
	binary.BigEndian.PutUint32(body[8:12], mac)
	binary.BigEndian.PutUint32(body[12:16], 1000)
	binary.BigEndian.PutUint32(body[16:20], durationSeconds*1000)
	return mp4Box("mvhd", body)
}

func mvhdV1(created time.Time, durationSeconds uint64) []byte {
	body := make([]byte, 112)
	body[0] = 1
	mac := uint64(created.Sub(macEpoch).Seconds())
	binary.BigEndian.PutUint64(body[4:12], mac)
	binary.BigEndian.PutUint64(body[12:20], mac)
	binary.BigEndian.PutUint32(body[20:24], 600)
	binary.BigEndian.PutUint64(body[24:32], durationSeconds*600)
	return mp4Box("mvhd", body)
}

func titleUdta(title string) []byte {
	data := mp4Box("data", []byte{0, 0, 0, 1, 0, 0, 0, 0}, []byte(title))
	ilst := mp4Box("ilst", mp4Box("\xa9nam", data))
	return mp4Box("udta", mp4Box("meta", []byte{0, 0, 0, 0}, mp4Box("hdlr", make([]byte, 25)), ilst))
}

func ftypBox(brand string) []byte {
	return mp4Box("ftyp", []byte(brand), []byte{0, 0, 0, 0}, []byte(brand))
}

// createTestM4A writes a minimal M4A with a version 0 movie header and an
// optional title.
func createTestM4A(path string, creationTime time.Time, durationSeconds uint32, title string) error {
	children := [][]byte{mvhdV0(creationTime, durationSeconds)}
	if title != "" {
		children = append(children, titleUdta(title))
	}
	data := append(ftypBox("M4A "), mp4Box("moov", children...)...)
	return os.WriteFile(path, data, 0644)
}

// createInvalidM4A writes a file with an unknown brand.
func createInvalidM4A(path string) error {
	return os.WriteFile(path, ftypBox("XXXX"), 0644)
}
