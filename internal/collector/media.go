package collector

import (
	"bytes"
	"mime"
	"net/url"
	"path"
	"strings"
)

const defaultMediaType = "application/octet-stream"

var supportedMediaTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Animated GIFs carry a looping application extension block.
var animationMarkers = [][]byte{
	[]byte("NETSCAPE2.0"),
	[]byte("ANIMEXTS1.0"),
}

// IsSupported reports whether the summarizer accepts the media type inline.
func IsSupported(mediaType string) bool {
	return supportedMediaTypes[mediaType]
}

// MediaType picks the declared content type when it is meaningful and falls
// back to the extension of the file name, then of the URL path.
func MediaType(declared, name, rawURL string) string {
	if mt := normalize(declared); mt != "" && mt != defaultMediaType {
		return mt
	}
	if mt := fromExtension(name); mt != "" {
		return mt
	}
	if u, err := url.Parse(rawURL); err == nil {
		if mt := fromExtension(u.Path); mt != "" {
			return mt
		}
	}
	return defaultMediaType
}

// IsAnimatedGIF reports whether the body is GIF data with an animation loop
// extension.
func IsAnimatedGIF(data []byte) bool {
	if !bytes.HasPrefix(data, []byte("GIF8")) {
		return false
	}
	for _, marker := range animationMarkers {
		if bytes.Contains(data, marker) {
			return true
		}
	}
	return false
}

func fromExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	return normalize(mime.TypeByExtension(ext))
}

func normalize(mediaType string) string {
	if mediaType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mt
}
