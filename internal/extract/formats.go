package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	dpdf "github.com/dslipak/pdf"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"golang.org/x/text/encoding/charmap"
	rscpdf "rsc.io/pdf"

	"coach-backend/internal/shared/metrics"
	"coach-backend/internal/shared/telemetry"
)

const (
	mimePDF  = "application/pdf"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	scannedPDFPlaceholder = "[PDF appears to be empty or text could not be extracted. This might be a scanned PDF or contain only images. Please try converting it to text first.]"
	emptyDocPlaceholder   = "[Document appears to be empty or contains only formatting/images]"
)

// decodeText reads UTF-8, falling back to Latin-1 for anything that is not valid UTF-8.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(out)
}

type pdfStrategy struct {
	name string
	run  func(data []byte) (string, error)
}

// pdfStrategies are tried in order; the first non-empty result wins.
var pdfStrategies = []pdfStrategy{
	{name: "ledongthuc", run: ledongthucPages},
	{name: "rsc", run: rscPages},
	{name: "dslipak", run: dslipakPlain},
}

func extractPDF(name string, data []byte) Result {
	for i, s := range pdfStrategies {
		text, err := runStrategy(s, data)
		if err != nil {
			telemetry.Warn("extract.pdf_strategy_failed", map[string]any{"file": name, "strategy": s.name, "error": err})
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if i > 0 {
			metrics.IncExtractionFallback()
		}
		telemetry.Debug("extract.pdf", map[string]any{"file": name, "strategy": s.name, "chars": utf8.RuneCountInString(text)})
		return textResult(name, text)
	}
	return failed(name, scannedPDFPlaceholder, "no text extracted")
}

func runStrategy(s pdfStrategy, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panic: %v", s.name, r)
		}
	}()
	return s.run(data)
}

// collectPages walks pages 1..n until pageBudget is reached. Pages that error,
// panic, or come back blank are skipped.
func collectPages(n int, page func(i int) (string, error)) string {
	var b strings.Builder
	chars := 0
	for i := 1; i <= n; i++ {
		if chars > pageBudget {
			break
		}
		text, err := safePage(page, i)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		chunk := fmt.Sprintf("\n--- Page %d ---\n%s", i, text)
		b.WriteString(chunk)
		chars += utf8.RuneCountInString(chunk)
	}
	return b.String()
}

func safePage(page func(i int) (string, error), i int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", i, r)
		}
	}()
	return page(i)
}

func ledongthucPages(data []byte) (string, error) {
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	return collectPages(r.NumPage(), func(i int) (string, error) {
		p := r.Page(i)
		if p.V.IsNull() {
			return "", nil
		}
		return p.GetPlainText(nil)
	}), nil
}

func rscPages(data []byte) (string, error) {
	r, err := rscpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	return collectPages(r.NumPage(), func(i int) (string, error) {
		p := r.Page(i)
		if p.V.IsNull() {
			return "", nil
		}
		var b strings.Builder
		var lastY float64
		for j, t := range p.Content().Text {
			if j > 0 && t.Y != lastY {
				b.WriteByte('\n')
			}
			b.WriteString(t.S)
			lastY = t.Y
		}
		return b.String(), nil
	}), nil
}

func dslipakPlain(data []byte) (string, error) {
	r, err := dpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractWord(name string, data []byte) Result {
	text, err := docxText(data)
	if err != nil {
		telemetry.Warn("extract.docx_library_failed", map[string]any{"file": name, "error": err})
		metrics.IncExtractionFallback()
		text, err = docxZipText(data)
	}
	if err != nil {
		return failed(name, fmt.Sprintf("[Error reading Word document: %v]", err), err.Error())
	}
	if strings.TrimSpace(text) == "" {
		return failed(name, emptyDocPlaceholder, "empty document")
	}
	return textResult(name, text)
}

func docxText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer doc.Close()
	return stripDocxXML(doc.Editable().GetContent())
}

func docxZipText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return stripDocxXML(string(raw))
}

// stripDocxXML keeps character data and ends a line at each paragraph or break.
// Collection stops shortly after MaxChars. Malformed markup yields the text
// read before the fault, or an error when there is none.
func stripDocxXML(raw string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for buf.Len() <= MaxChars*utf8.UTFMax {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if text := strings.TrimSpace(buf.String()); text != "" {
				return text, nil
			}
			return "", fmt.Errorf("malformed document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func normalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean != "application/zip" && clean != "application/octet-stream" && clean != "" {
		return clean
	}

	if mapped := mapOOXMLFromZip(data); mapped != "" {
		return mapped
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".docx":
		return mimeDOCX
	case ".pdf":
		return mimePDF
	default:
		return clean
	}
}

func mapOOXMLFromZip(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		switch strings.ReplaceAll(f.Name, "\\", "/") {
		case "word/document.xml":
			return mimeDOCX
		case "xl/workbook.xml":
			return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		case "ppt/presentation.xml":
			return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
		}
	}
	return ""
}
