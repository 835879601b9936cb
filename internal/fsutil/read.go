// Package fsutil provides filesystem helpers: content hashing, tolerant
// text reading for legacy encodings, and directory probing.
package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/text/encoding/charmap"
)

// Drop folders regularly contain configs saved by Windows tooling in
// legacy codepages. The fallback chain mirrors what the operator's files
// actually arrive in: UTF-8, then Windows-1251, then DOS CP866, then
// Latin-1 as the decoder of last resort.
var fallbackCharmaps = []*charmap.Charmap{
	charmap.Windows1251,
	charmap.CodePage866,
	charmap.ISO8859_1,
}

// ReadFileText reads a file and returns its content as UTF-8 text,
// transcoding from legacy encodings when the raw bytes are not valid
// UTF-8. Reads are retried with exponential backoff because files in the
// drop folder are briefly locked by the tools writing them.
func ReadFileText(path string) (string, error) {
	var data []byte

	op := func() error {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return backoff.Permanent(err)
			}
			return err
		}
		data = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, 2)); err != nil {
		return "", err
	}

	return DecodeText(data), nil
}

// DecodeText converts raw bytes to UTF-8 text using the fallback chain.
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	for _, cm := range fallbackCharmaps {
		decoded, err := cm.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		// Undefined bytes decode to U+FFFD; treat that as a miss and try
		// the next charmap. ISO8859_1 defines every byte, so the chain
		// always terminates with a usable result.
		if !strings.ContainsRune(string(decoded), utf8.RuneError) {
			return string(decoded)
		}
	}

	decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(decoded)
}
