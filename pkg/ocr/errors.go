package ocr

import "errors"

// ErrNoText is returned when every OCR pass comes back blank.
var ErrNoText = errors.New("no text recognised")
