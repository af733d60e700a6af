package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultPart     = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// Override elements may list PartName and ContentType in either order.
	docxOverrideRe = regexp.MustCompile(`<Override\b[^>]*>`)
	partNameAttrRe = regexp.MustCompile(`PartName="([^"]+)"`)

	docxParagraphRe = regexp.MustCompile(`(?s)<w:p[\s>].*?</w:p>`)
	docxRunTextRe   = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>|<w:tab/>`)
)

// docxMainPart finds the main document part from [Content_Types].xml.
func docxMainPart(zr *zip.Reader) string {
	data, err := readZipFile(zr, contentTypesPath)
	if err != nil {
		return docxDefaultPart
	}
	for _, override := range docxOverrideRe.FindAllString(string(data), -1) {
		if !strings.Contains(override, `ContentType="`+docxMainContentType+`"`) {
			continue
		}
		if m := partNameAttrRe.FindStringSubmatch(override); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultPart
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}

// extractDOCX returns the text of a .docx reply, one line per paragraph.
// Table cells are paragraphs too, so price tables come out one cell per line.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	docXML, err := readZipFile(zr, docxMainPart(zr))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	var b strings.Builder
	for _, para := range docxParagraphRe.FindAllString(string(docXML), -1) {
		var line strings.Builder
		for _, m := range docxRunTextRe.FindAllStringSubmatch(para, -1) {
			if m[0] == "<w:tab/>" {
				line.WriteByte('\t')
				continue
			}
			line.WriteString(html.UnescapeString(m[1]))
		}
		if text := strings.TrimSpace(line.String()); text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String()), nil
}
