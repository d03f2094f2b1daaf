// Package ingest converts uploaded binary files into text usable as
// conversational context. Extraction is dispatched on the declared MIME
// type and every path is fault-isolated: a failing parser degrades to a
// descriptive message, never to an error, because the result always ends
// up as conversational text shown to the user.
package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Result is the outcome of one extraction.
type Result struct {
	// Text is the extracted content or a descriptive message about why
	// content could not be extracted. Never empty.
	Text string

	// Unsupported reports that the declared MIME type (or its payload)
	// could not be processed at all. A supported type that happens to
	// contain no text is not Unsupported.
	Unsupported bool

	Filename string
	MIMEType string
}

// fallbackEncodings are tried in order when a text file is not valid UTF-8.
var fallbackEncodings = []encoding.Encoding{
	charmap.ISO8859_1,
	charmap.Windows1252,
}

const wordMIMELegacy = "application/msword"
const wordMIMEOpenXML = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Extract converts file bytes plus a declared MIME type into text.
// It never returns an error; unsupported or unreadable inputs yield a
// Result with Unsupported set and a user-facing message.
func Extract(data []byte, mimeType, filename string) Result {
	res := Result{Filename: filename, MIMEType: mimeType}

	switch {
	case mimeType == "text/plain":
		text, ok := decodeText(data)
		if !ok {
			slog.Warn("text file not decodable with any known encoding", "file", filename)
			return unsupported(res)
		}
		res.Text = text

	case mimeType == "application/pdf":
		res.Text = extractPDF(data, filename)

	case strings.HasPrefix(mimeType, "image/"):
		b64 := base64.StdEncoding.EncodeToString(data)
		if len(b64) > 100 {
			b64 = b64[:100]
		}
		res.Text = fmt.Sprintf(
			"Image file '%s' received (%s, %d bytes). Base64 data available for vision analysis: %s...[truncated]",
			filename, mimeType, len(data), b64)

	case mimeType == wordMIMELegacy || mimeType == wordMIMEOpenXML:
		res.Text = extractWord(data, filename)

	case mimeType == "application/json":
		text, ok := reindentJSON(data, filename)
		if !ok {
			return unsupported(res)
		}
		res.Text = text

	default:
		slog.Info("unsupported upload type", "file", filename, "mime", mimeType)
		return unsupported(res)
	}

	return res
}

func unsupported(res Result) Result {
	res.Unsupported = true
	res.Text = fmt.Sprintf(
		"Received file '%s' with unsupported type '%s'. Supported types include: "+
			"text/plain, application/pdf, images, and Word documents.",
		res.Filename, res.MIMEType)
	return res
}

func decodeText(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), true
	}
	for _, enc := range fallbackEncodings {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		return string(decoded), true
	}
	return "", false
}

// extractPDF returns per-page text with page-boundary markers. A PDF that
// parses but contains no extractable text is still a supported result, with
// a message distinct from the unsupported-type one.
func extractPDF(data []byte, filename string) (text string) {
	defer func() {
		// The PDF parser panics on some malformed files.
		if r := recover(); r != nil {
			slog.Error("pdf extraction panicked", "file", filename, "panic", r)
			text = fmt.Sprintf("PDF document '%s' received but encountered error during processing: %v", filename, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Warn("pdf parse failed", "file", filename, "error", err)
		return fmt.Sprintf("PDF document '%s' received but encountered error during processing: %v", filename, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			slog.Warn("pdf page extraction failed", "file", filename, "page", i, "error", err)
			continue
		}
		fmt.Fprintf(&sb, "\n--- Page %d ---\n%s\n", i, pageText)
	}

	if strings.TrimSpace(sb.String()) == "" {
		return fmt.Sprintf(
			"PDF document '%s' received but appears to contain no extractable text (may be image-based or encrypted).",
			filename)
	}
	return fmt.Sprintf("PDF Document: %s\nContent:\n%s", filename, sb.String())
}

// extractWord returns paragraph and table-cell text in document order.
func extractWord(data []byte, filename string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("word extraction panicked", "file", filename, "panic", r)
			text = fmt.Sprintf("Word document '%s' received but encountered error during processing: %v", filename, r)
		}
	}()

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Warn("word parse failed", "file", filename, "error", err)
		return fmt.Sprintf("Word document '%s' received but encountered error during processing: %v", filename, err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch v := item.(type) {
		case *docx.Paragraph:
			if s := strings.TrimSpace(v.String()); s != "" {
				sb.WriteString(s)
				sb.WriteByte('\n')
			}
		case *docx.Table:
			if s := strings.TrimSpace(v.String()); s != "" {
				sb.WriteString(s)
				sb.WriteByte('\n')
			}
		}
	}

	if strings.TrimSpace(sb.String()) == "" {
		return fmt.Sprintf("Word document '%s' received but appears to contain no text content.", filename)
	}
	return fmt.Sprintf("Word Document: %s\nContent:\n%s", filename, sb.String())
}

func reindentJSON(data []byte, filename string) (string, bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("json parse failed", "file", filename, "error", err)
		return "", false
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("JSON file '%s' content:\n%s", filename, pretty), true
}
