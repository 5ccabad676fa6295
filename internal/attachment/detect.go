package attachment

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"strings"
)

// sniffLen is the prefix size inspected by content detection.
const sniffLen = 512

var mimeToExt = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"image/x-icon":    ".ico",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"application/zip": ".zip",
	"audio/mpeg":      ".mp3",
	"audio/wave":      ".wav",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"font/woff":       ".woff",
	"font/woff2":      ".woff2",
}

// Detected is the outcome of content sniffing. Reader replays the full
// stream, peeked prefix included.
type Detected struct {
	MIME   string
	Ext    string
	Reader io.Reader
}

// Detect peeks at the first bytes of r to guess its type. Ext is empty when
// detection is inconclusive.
func Detect(r io.Reader) (Detected, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return Detected{}, err
	}
	mime := strings.Split(http.DetectContentType(head), ";")[0]
	if mime == "text/xml" && strings.Contains(string(head), "<svg") {
		mime = "image/svg+xml"
	}
	return Detected{MIME: mime, Ext: mimeToExt[mime], Reader: br}, nil
}
