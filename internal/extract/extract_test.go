package extract_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/extract"
)

func TestDispatchRejectsUnsupportedContentType(t *testing.T) {
	_, err := extract.Dispatch("application/zip", []byte("PK\x03\x04"))
	assert.Error(t, err)
}

func TestTextExtractorPassesThroughValidUTF8(t *testing.T) {
	result, err := extract.Dispatch("text/plain", []byte("hello, world"))
	require.NoError(t, err)
	assert.Equal(t, "hello, world", result.Text)
	assert.Equal(t, "utf-8", result.Engine)
	assert.Empty(t, result.Warnings)
}

func TestTextExtractorDecodesShiftJIS(t *testing.T) {
	// "こんにちは" (konnichiwa) encoded as Shift-JIS.
	shiftJIS := []byte{0x82, 0xb1, 0x82, 0xf1, 0x82, 0xc9, 0x82, 0xbf, 0x82, 0xcd}

	result, err := extract.Dispatch("text/markdown", shiftJIS)
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", result.Text)
	assert.Equal(t, "cp932", result.Engine)
}

func TestCSVExtractorRejectsMalformedCSV(t *testing.T) {
	_, err := extract.Dispatch("text/csv", []byte("a,b\n\"unterminated"))
	assert.Error(t, err)
}

func TestCSVExtractorPassesThroughValidCSV(t *testing.T) {
	result, err := extract.Dispatch("text/csv", []byte("name,dept\nalice,hr\n"))
	require.NoError(t, err)
	assert.Contains(t, result.Text, "alice,hr")
	assert.Equal(t, "csv", result.Engine)
}

func TestCSVExtractorWarnsOnHeaderOnlyFile(t *testing.T) {
	result, err := extract.Dispatch("text/csv", []byte("name,dept\n"))
	require.NoError(t, err)
	assert.Contains(t, result.Warnings, extract.WarnLowTextVolume)
}

func TestPDFExtractorFailsOnGarbageBytes(t *testing.T) {
	_, err := extract.Dispatch("application/pdf", []byte("not a real pdf"))
	assert.Error(t, err)
}

func TestClassifyPDFTextFlagsImageOnlyPages(t *testing.T) {
	pages := []string{"some real body text that is long enough to pass the volume check, really", "", "", ""}
	warnings := extract.ClassifyPDFTextForTest(strings.Join(pages, "\n\n"), pages)
	assert.Contains(t, warnings, extract.WarnImagePDFSuspected)
}

func TestClassifyPDFTextFlagsLowTextVolume(t *testing.T) {
	warnings := extract.ClassifyPDFTextForTest("short", []string{"short"})
	assert.Contains(t, warnings, extract.WarnLowTextVolume)
}

func TestClassifyPDFTextFlagsReplacementCharacters(t *testing.T) {
	text := strings.Repeat("a", 200) + strings.Repeat("�", 10)
	warnings := extract.ClassifyPDFTextForTest(text, []string{text})
	assert.Contains(t, warnings, extract.WarnReplacementCharactersMany)
}

func TestClassifyPDFTextFlagsMojibakeFromLatin1HighBytes(t *testing.T) {
	text := strings.Repeat("hello world, ", 20) + strings.Repeat("éèê", 10)
	warnings := extract.ClassifyPDFTextForTest(text, []string{text})
	assert.Contains(t, warnings, extract.WarnMojibakeSuspected)
}

func TestClassifyPDFTextDoesNotFlagMojibakeForJapaneseText(t *testing.T) {
	text := strings.Repeat("これは日本語の本文です。", 30)
	warnings := extract.ClassifyPDFTextForTest(text, []string{text})
	assert.NotContains(t, warnings, extract.WarnMojibakeSuspected)
}

func TestClassifyPDFTextEmptyYieldsNoTextExtracted(t *testing.T) {
	warnings := extract.ClassifyPDFTextForTest("", []string{"", ""})
	assert.Contains(t, warnings, extract.WarnNoTextExtracted)
	assert.Contains(t, warnings, extract.WarnImagePDFSuspected)
}
