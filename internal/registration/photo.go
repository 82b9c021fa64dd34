package registration

import (
	"encoding/base64"
	"strings"

	"github.com/h2non/filetype"
)

// DecodePhoto accepts a data URL ("data:image/png;base64,...") or bare base64
// and returns the raw bytes. An empty string yields nil.
func DecodePhoto(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.Contains(s[:comma], ";base64") {
			return nil, &ValidationError{Field: "image", Reason: "is not a base64 data URL"}
		}
		s = s[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, &ValidationError{Field: "image", Reason: "is not valid base64"}
		}
	}
	return data, nil
}

// sniffPhoto returns the file extension of an image payload.
func sniffPhoto(photo []byte) (string, error) {
	if !filetype.IsImage(photo) {
		return "", &ValidationError{Field: "image", Reason: "is not an image"}
	}
	kind, err := filetype.Match(photo)
	if err != nil || kind == filetype.Unknown {
		return "", &ValidationError{Field: "image", Reason: "has an unknown format"}
	}
	return kind.Extension, nil
}
