package media

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// signatureWindow is how many leading bytes are inspected for a known
// container signature.
const signatureWindow = 12

var (
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
	riffMagic = []byte("RIFF")
)

// LooksLikeVideo reports whether the leading bytes of a payload carry a
// known container signature: ISO-BMFF (ftyp/moov atoms), EBML
// (Matroska/WebM), or RIFF (AVI/WAV).
func LooksLikeVideo(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	window := head
	if len(window) > signatureWindow {
		window = window[:signatureWindow]
	}
	if bytes.Contains(window, []byte("ftyp")) || bytes.Contains(window, []byte("moov")) {
		return true
	}
	if bytes.HasPrefix(head, ebmlMagic) {
		return true
	}
	return bytes.HasPrefix(head, riffMagic)
}

// ValidateVideoFile checks that the file at path is non-empty and opens
// with a known container signature.
func ValidateVideoFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	head := make([]byte, signatureWindow)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return fmt.Errorf("media file is empty")
		}
		return fmt.Errorf("read media file header: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("media file is empty")
	}
	if !LooksLikeVideo(head[:n]) {
		return fmt.Errorf("unrecognized media format")
	}
	return nil
}
