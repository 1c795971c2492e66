package extract

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// textEncodingCascade is tried in order against the raw bytes. UTF-8 (with
// or without a BOM) is checked first since it is both the common case and
// self-validating; the Japanese legacy encodings follow because this
// extractor was built against a predominantly Japanese-language document
// corpus, where Shift-JIS and EUC-JP uploads are still common.
var textEncodingCascade = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8-sig", unicode.UTF8BOM},
	{"cp932", japanese.ShiftJIS},
	{"euc-jp", japanese.EUCJP},
	{"iso-2022-jp", japanese.ISO2022JP},
}

// TextExtractor decodes plain text and markdown uploads. It assumes UTF-8
// first and only walks the legacy-encoding cascade when the bytes don't
// already form valid UTF-8.
type TextExtractor struct{}

func (TextExtractor) Supports(contentType string) bool {
	switch contentType {
	case "text/plain", "text/markdown":
		return true
	default:
		return false
	}
}

func (TextExtractor) Extract(data []byte) (Result, error) {
	if utf8.Valid(data) {
		return Result{Text: string(data), Engine: "utf-8"}, nil
	}

	for _, candidate := range textEncodingCascade {
		decoded, err := candidate.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		// x/text decoders substitute U+FFFD for bytes they cannot map
		// instead of returning an error, so a replacement character means
		// this candidate does not fit the input.
		text := string(decoded)
		if !utf8.Valid(decoded) || countReplacementChars(text) > 0 {
			continue
		}
		return Result{Text: text, Engine: candidate.name, Warnings: []string{}}, nil
	}

	// Nothing in the cascade produced clean UTF-8; fall back to a lossy
	// UTF-8 decode so the upload isn't rejected outright, but flag it.
	return Result{
		Text:     string(data),
		Engine:   "utf-8-lossy",
		Warnings: []string{WarnAdvancedEncodingUnimplemented, WarnMojibakeSuspected},
	}, nil
}
