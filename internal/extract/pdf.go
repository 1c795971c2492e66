package extract

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

const (
	lowTextVolumeThreshold       = 100
	replacementCharFractionMax   = 0.01
	imagePDFEmptyPageFractionMin = 0.60
	c1ControlFractionMax         = 0.003
	latin1HighFractionMax        = 0.02
	japaneseFractionMin          = 0.10
)

// PDFExtractor runs two independent PDF engines and keeps the
// higher-quality result: ledongthuc/pdf (pure Go, page-oriented) as the
// primary engine, and gen2brain/go-fitz (MuPDF via cgo-free purego
// bindings) as the secondary engine for documents the primary struggles
// with (encrypted streams, unusual encodings, embedded fonts).
type PDFExtractor struct{}

func (PDFExtractor) Supports(contentType string) bool {
	return contentType == "application/pdf"
}

// engineResult is one PDF engine's raw output, ahead of classification.
// opened is false only when the engine could not parse the bytes as a PDF
// at all, as distinct from parsing fine but finding no text.
type engineResult struct {
	text   string
	pages  []string
	opened bool
}

func (PDFExtractor) Extract(data []byte) (Result, error) {
	primary, primaryEncodingUnimplemented := extractWithLedongthuc(data)
	secondary := extractWithFitz(data)

	if !primary.opened && !secondary.opened {
		return Result{}, fmt.Errorf("extract: not a readable PDF")
	}

	primaryWarnings := classifyPDFText(primary.text, primary.pages)
	if primaryEncodingUnimplemented {
		primaryWarnings = append(primaryWarnings, WarnPDFAdvancedEncodingUnimplemented)
	}
	secondaryWarnings := classifyPDFText(secondary.text, secondary.pages)

	if strings.TrimSpace(primary.text) == "" && strings.TrimSpace(secondary.text) == "" {
		return Result{
			Warnings: []string{WarnNoTextExtracted, WarnImagePDFSuspected},
			Engine:   "ledongthuc/pdf",
			Fallback: &FallbackMetadata{
				ChosenEngine:       "ledongthuc/pdf",
				SecondaryAttempted: true,
				PrimaryEngine:      "ledongthuc/pdf",
				PrimaryWarnings:    primaryWarnings,
				SecondaryEngine:    "go-fitz",
				SecondaryWarnings:  secondaryWarnings,
			},
		}, nil
	}

	fallback := &FallbackMetadata{
		SecondaryAttempted:  true,
		PrimaryEngine:       "ledongthuc/pdf",
		PrimaryWarnings:     primaryWarnings,
		PrimaryTextLength:   len(primary.text),
		SecondaryEngine:     "go-fitz",
		SecondaryWarnings:   secondaryWarnings,
		SecondaryTextLength: len(secondary.text),
	}

	if choosePDFEngine(primary.text, primaryWarnings, secondary.text, secondaryWarnings) == selectSecondary {
		fallback.ChosenEngine = "go-fitz"
		return Result{Text: secondary.text, Pages: secondary.pages, Engine: "go-fitz", Warnings: secondaryWarnings, Fallback: fallback}, nil
	}
	fallback.ChosenEngine = "ledongthuc/pdf"
	return Result{Text: primary.text, Pages: primary.pages, Engine: "ledongthuc/pdf", Warnings: primaryWarnings, Fallback: fallback}, nil
}

type engineChoice int

const (
	selectPrimary engineChoice = iota
	selectSecondary
)

func hasWarning(warnings []string, w string) bool {
	for _, x := range warnings {
		if x == w {
			return true
		}
	}
	return false
}

// choosePDFEngine runs the engine-selection priority in order: unhandled
// font encoding on the primary forces the secondary; otherwise a clean side
// beats a mojibake-suspected side; otherwise a text length difference over
// 10% favors the longer extraction; otherwise the lower replacement-char
// ratio wins; otherwise the side with fewer warnings wins; otherwise the
// primary is kept.
func choosePDFEngine(primaryText string, primaryWarnings []string, secondaryText string, secondaryWarnings []string) engineChoice {
	if hasWarning(primaryWarnings, WarnPDFAdvancedEncodingUnimplemented) {
		return selectSecondary
	}

	primaryMojibake := hasWarning(primaryWarnings, WarnMojibakeSuspected)
	secondaryMojibake := hasWarning(secondaryWarnings, WarnMojibakeSuspected)
	if primaryMojibake != secondaryMojibake {
		if primaryMojibake {
			return selectSecondary
		}
		return selectPrimary
	}

	primaryLen, secondaryLen := len(primaryText), len(secondaryText)
	if primaryLen > 0 || secondaryLen > 0 {
		longer := primaryLen
		if secondaryLen > longer {
			longer = secondaryLen
		}
		diff := primaryLen - secondaryLen
		if diff < 0 {
			diff = -diff
		}
		if float64(diff)/float64(longer) > 0.10 {
			if secondaryLen > primaryLen {
				return selectSecondary
			}
			return selectPrimary
		}
	}

	primaryRatio := replacementCharFraction(primaryText)
	secondaryRatio := replacementCharFraction(secondaryText)
	if primaryRatio != secondaryRatio {
		if secondaryRatio < primaryRatio {
			return selectSecondary
		}
		return selectPrimary
	}

	if len(secondaryWarnings) < len(primaryWarnings) {
		return selectSecondary
	}
	return selectPrimary
}

// extractWithLedongthuc returns the joined text, per-page text, and whether
// the reader reported an encoding it could not decode. ledongthuc/pdf does
// not expose a typed error for unsupported font encodings; a page whose
// decode fails with an error mentioning "encoding" or "font" is treated as
// that case.
func extractWithLedongthuc(data []byte) (engineResult, bool) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return engineResult{}, false
	}

	var pages []string
	var encodingUnimplemented bool
	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "encoding") || strings.Contains(msg, "font") {
				encodingUnimplemented = true
			}
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return engineResult{text: strings.Join(pages, "\n\n"), pages: pages, opened: true}, encodingUnimplemented
}

func extractWithFitz(data []byte) engineResult {
	tmp, err := os.CreateTemp("", "deptqa-extract-*.pdf")
	if err != nil {
		return engineResult{}
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return engineResult{}
	}
	if err := tmp.Close(); err != nil {
		return engineResult{}
	}

	doc, err := fitz.New(tmp.Name())
	if err != nil {
		return engineResult{}
	}
	defer doc.Close()

	numPages := doc.NumPage()
	pages := make([]string, 0, numPages)
	for i := 0; i < numPages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, pageText)
	}

	return engineResult{text: strings.TrimSpace(strings.Join(pages, "\n\n")), pages: pages, opened: true}
}

// replacementCharFraction is the proportion of U+FFFD runes in text.
func replacementCharFraction(text string) float64 {
	return runeFraction(text, func(r rune) bool { return r == '�' })
}

// classifyPDFText applies the quality heuristics to one engine's extraction:
// text volume, replacement characters, image-only pages, and mojibake.
func classifyPDFText(fullText string, pages []string) []string {
	var warnings []string

	if strings.TrimSpace(fullText) == "" {
		return []string{WarnNoTextExtracted, WarnImagePDFSuspected}
	}

	if len(fullText) < lowTextVolumeThreshold {
		warnings = append(warnings, WarnLowTextVolume)
	}

	if replacementCharFraction(fullText) > replacementCharFractionMax {
		warnings = append(warnings, WarnReplacementCharactersMany)
	}

	if len(pages) > 0 {
		var empty int
		for _, p := range pages {
			if strings.TrimSpace(p) == "" {
				empty++
			}
		}
		if float64(empty)/float64(len(pages)) >= imagePDFEmptyPageFractionMin {
			warnings = append(warnings, WarnImagePDFSuspected)
		}
	}

	c1Fraction := runeFraction(fullText, isC1Control)
	latin1Fraction := runeFraction(fullText, isLatin1High)
	japaneseFraction := runeFraction(fullText, isJapanese)
	if c1Fraction > c1ControlFractionMax || (latin1Fraction > latin1HighFractionMax && japaneseFraction < japaneseFractionMin) {
		warnings = append(warnings, WarnMojibakeSuspected)
	}

	return warnings
}
