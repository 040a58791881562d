package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sourcegraph/conc/iter"

	"coach-backend/internal/shared/storage/object"
	"coach-backend/internal/shared/telemetry"
	"coach-backend/internal/shared/util"
)

const (
	// MaxChars caps the text returned for a single attachment.
	MaxChars = 15000
	// pageBudget stops page-by-page PDF extraction once this much text is collected.
	pageBudget = 12000

	defaultConcurrency = 3
	maxReadBytes       = 50 << 20
	derivedSuffix      = ".extracted.txt"
)

// AttachmentRef points at an uploaded file in the object store.
type AttachmentRef struct {
	Path        string `json:"path"`
	DisplayName string `json:"name"`
	MediaType   string `json:"type"`
}

// Result is the extracted text of one attachment. Failures are carried in-band:
// Text holds a readable placeholder and Error a short reason.
type Result struct {
	DisplayName string `json:"name"`
	Text        string `json:"text"`
	Truncated   bool   `json:"truncated"`
	Error       string `json:"error,omitempty"`
}

// Extractor turns attachment references into text.
type Extractor struct {
	Store object.ObjectStore
	// Concurrency bounds parallel extraction across attachments (default 3).
	Concurrency int
	// CacheDerived reuses and persists a <key>.extracted.txt copy next to the upload.
	CacheDerived bool
}

// New returns an Extractor reading from store.
func New(store object.ObjectStore) *Extractor {
	return &Extractor{Store: store, Concurrency: defaultConcurrency}
}

// Extract returns one Result per ref, in input order. It never fails as a whole.
func (e *Extractor) Extract(ctx context.Context, refs []AttachmentRef) []Result {
	if len(refs) == 0 {
		return nil
	}
	workers := e.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	mapper := iter.Mapper[AttachmentRef, Result]{MaxGoroutines: workers}
	return mapper.Map(refs, func(ref *AttachmentRef) Result {
		return e.extractOne(ctx, *ref)
	})
}

func (e *Extractor) extractOne(ctx context.Context, ref AttachmentRef) (res Result) {
	name := displayName(ref)
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("extract.panic", map[string]any{"file": name, "panic": fmt.Sprint(r)})
			res = failed(name, fmt.Sprintf("[Error processing file: %v]", r), "panic")
		}
	}()

	if strings.TrimSpace(ref.Path) == "" {
		return failed(name, "[Error: No file path provided]", "missing path")
	}
	if err := ctx.Err(); err != nil {
		return failed(name, fmt.Sprintf("[Error processing file: %v]", err), err.Error())
	}
	if e.Store == nil {
		return failed(name, "[Error processing file: storage not configured]", "no store")
	}

	if e.CacheDerived {
		if cached, ok := e.readDerived(ctx, ref.Path); ok {
			text, truncated := truncate(cached, MaxChars)
			return Result{DisplayName: name, Text: text, Truncated: truncated}
		}
	}

	data, err := e.read(ctx, ref.Path)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			telemetry.Warn("extract.not_found", map[string]any{"file": name, "path": ref.Path})
			return failed(name, fmt.Sprintf("[Error: File not found at %s]", ref.Path), "file not found")
		}
		telemetry.Error("extract.read_failed", map[string]any{"file": name, "error": err})
		return failed(name, fmt.Sprintf("[Error processing file: %v]", err), err.Error())
	}

	res = FromBytes(data, ref.MediaType, name)
	if e.CacheDerived && res.Error == "" && res.Text != "" {
		if _, err := e.Store.SaveWithKey(ctx, ref.Path+derivedSuffix, "text/plain; charset=utf-8", strings.NewReader(res.Text)); err != nil {
			telemetry.Warn("extract.cache_write_failed", map[string]any{"file": name, "error": err})
		}
	}
	return res
}

func (e *Extractor) read(ctx context.Context, key string) ([]byte, error) {
	body, err := e.Store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxReadBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (e *Extractor) readDerived(ctx context.Context, key string) (string, bool) {
	data, err := e.read(ctx, key+derivedSuffix)
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// FromBytes extracts text from an in-memory payload. Dispatch is by media type
// first, then by file extension.
func FromBytes(data []byte, mediaType, fileName string) Result {
	switch classify(data, mediaType, fileName) {
	case kindText:
		return textResult(fileName, decodeText(data))
	case kindPDF:
		return extractPDF(fileName, data)
	case kindWord:
		return extractWord(fileName, data)
	case kindLegacyWord:
		return failed(fileName, "[Legacy Word (.doc) files are not supported for text extraction. Please save the document as .docx or PDF and upload it again.]", "legacy doc")
	case kindImage:
		return Result{
			DisplayName: fileName,
			Error:       "image content not extracted",
			Text: fmt.Sprintf("[Image file uploaded (%sMB) - I can see this is an image file but cannot analyze visual content. "+
				"If this image contains text (like a screenshot or document scan), please describe what you'd like me to help you with "+
				"regarding this image, or use OCR tools to extract the text first.]", sizeMB(len(data))),
		}
	default:
		return failed(fileName, fmt.Sprintf("[File uploaded (%sMB) but type '%s' is not supported for text extraction. "+
			"Supported formats: PDF, Word documents (.doc/.docx), text files (.txt), and images. "+
			"Please describe what you'd like me to help you with regarding this file.]", sizeMB(len(data)), mediaType), "unsupported type")
	}
}

type kind int

const (
	kindUnsupported kind = iota
	kindText
	kindPDF
	kindWord
	kindLegacyWord
	kindImage
)

func classify(data []byte, mediaType, fileName string) kind {
	mt := normalizeMimeType(mediaType, fileName, data)
	ext := util.Ext(fileName)
	switch {
	case strings.HasPrefix(mt, "text/") || ext == "txt" || ext == "md":
		return kindText
	case mt == mimePDF || ext == "pdf":
		return kindPDF
	case mt == mimeDOCX || ext == "docx":
		return kindWord
	case ext == "doc" || mt == mimeDOC:
		if mapOOXMLFromZip(data) == mimeDOCX {
			return kindWord
		}
		return kindLegacyWord
	case strings.HasPrefix(mt, "image/"):
		return kindImage
	case ext == "png" || ext == "jpg" || ext == "jpeg" || ext == "gif" || ext == "webp":
		return kindImage
	default:
		return kindUnsupported
	}
}

func textResult(name, text string) Result {
	out, truncated := truncate(text, MaxChars)
	return Result{DisplayName: name, Text: out, Truncated: truncated}
}

func failed(name, placeholder, reason string) Result {
	return Result{DisplayName: name, Text: placeholder, Error: reason}
}

func displayName(ref AttachmentRef) string {
	if name := strings.TrimSpace(ref.DisplayName); name != "" {
		return name
	}
	if ref.Path != "" {
		if i := strings.LastIndex(ref.Path, "/"); i >= 0 {
			return ref.Path[i+1:]
		}
		return ref.Path
	}
	return "Unknown file"
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

func sizeMB(n int) string {
	mb := math.Round(float64(n)/(1024*1024)*100) / 100
	return strconv.FormatFloat(mb, 'f', -1, 64)
}
