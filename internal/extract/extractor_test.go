package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	doc, err := e.ExtractBytes([]byte("Total: $1,200\r\nLead time: 3 weeks\r\n\r\n\r\nThanks  "), ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if doc.Text != "Total: $1,200\nLead time: 3 weeks\n\nThanks" {
		t.Errorf("got %q", doc.Text)
	}
	if doc.Format != "text" {
		t.Errorf("format = %q", doc.Format)
	}
}

func TestExtractBytes_plainBOMAndInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	doc, err := e.ExtractBytes([]byte("\xEF\xBB\xBFprice\x80 10"), ".md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if doc.Text != "price\uFFFD 10" {
		t.Errorf("got %q", doc.Text)
	}
}

func TestExtractBytes_unsupported(t *testing.T) {
	e := NewExtractor()
	for _, ext := range []string{".pptx", ".png", ".zip"} {
		_, err := e.ExtractBytes([]byte("x"), ext)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: expected ErrUnsupported, got %v", ext, err)
		}
	}
}

func TestExtensions(t *testing.T) {
	e := NewExtractor()
	want := []string{".docx", ".eml", ".md", ".pdf", ".txt", ".xlsx"}
	if got := e.Extensions(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if !e.Supports(".PDF") {
		t.Error("extension matching should ignore case")
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Item")
	f.SetCellValue("Sheet1", "B1", "Price")
	f.SetCellValue("Sheet1", "A2", "T-shirt")
	f.SetCellValue("Sheet1", "B2", "4.50")
	if _, err := f.NewSheet("Terms"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Terms", "A1", "Net 30")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	doc, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if doc.Text != "Item\tPrice\nT-shirt\t4.50\n\n[Terms]\nNet 30" {
		t.Errorf("got %q", doc.Text)
	}
}

func TestExtract_excelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quote.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Total 980 EUR")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	doc, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Text != "Total 980 EUR" || doc.Format != "xlsx" {
		t.Errorf("got %+v", doc)
	}
}

func TestExtract_plainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.txt")
	if err := os.WriteFile(path, []byte("We can deliver in 10 days."), 0600); err != nil {
		t.Fatal(err)
	}
	doc, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Text != "We can deliver in 10 days." {
		t.Errorf("got %q", doc.Text)
	}
}

func TestExtract_tooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), 64), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewExtractor().WithMaxBytes(10).Extract(path); err == nil {
		t.Error("expected size limit error")
	}
}

func TestExtract_nonexistent(t *testing.T) {
	if _, err := NewExtractor().Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestExtract_unsupportedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewExtractor().Extract(path); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func docxPackage(parts map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range parts {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(body))
	}
	_ = w.Close()
	return buf.Bytes()
}

const docxBody = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p w:rsidR="00A1"><w:r><w:t>Quotation for </w:t></w:r><w:r><w:t xml:space="preserve">100 t-shirts</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Total</w:t></w:r><w:r><w:tab/><w:t>1 200 &amp; shipping</w:t></w:r></w:p>` +
	`<w:p><w:pPr/></w:p>` +
	`</w:body></w:document>`

func TestExtractBytes_docx(t *testing.T) {
	content := docxPackage(map[string]string{"word/document.xml": docxBody})
	doc, err := NewExtractor().ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if doc.Text != "Quotation for 100 t-shirts\nTotal\t1 200 & shipping" {
		t.Errorf("got %q", doc.Text)
	}
}

func TestExtractBytes_docxContentTypes(t *testing.T) {
	for _, override := range []string{
		`<Override PartName="/word/document2.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`,
		`<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/word/document2.xml"/>`,
	} {
		content := docxPackage(map[string]string{
			"[Content_Types].xml": `<Types>` + override + `</Types>`,
			"word/document2.xml":  `<w:document><w:body><w:p><w:r><w:t>Moved part</w:t></w:r></w:p></w:body></w:document>`,
		})
		doc, err := NewExtractor().ExtractBytes(content, ".docx")
		if err != nil {
			t.Fatalf("ExtractBytes: %v", err)
		}
		if doc.Text != "Moved part" {
			t.Errorf("got %q", doc.Text)
		}
	}
}

func TestExtractBytes_docxErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for invalid docx")
	}
	if _, err := e.ExtractBytes(docxPackage(map[string]string{"other.xml": "x"}), ".docx"); err == nil {
		t.Error("expected error when document part is missing")
	}
}

func TestExtractBytes_pdfInvalid(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("%PDF-garbage"), ".pdf"); err == nil {
		t.Error("expected error for invalid pdf")
	}
}

func TestExtractBytes_emailPlain(t *testing.T) {
	raw := strings.Join([]string{
		"From: \"Ana Costa\" <ana@teeworks.example>",
		"To: buyer@example.com",
		"Subject: =?UTF-8?Q?Re:_Cota=C3=A7=C3=A3o?=",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"Total: 1.250 EUR=",
		" incl. VAT",
		"Lead time: 15 days",
	}, "\r\n")

	doc, err := NewExtractor().ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if doc.Sender != "ana@teeworks.example" || doc.SenderName != "Ana Costa" {
		t.Errorf("sender = %q / %q", doc.Sender, doc.SenderName)
	}
	if doc.Subject != "Re: Cotação" {
		t.Errorf("subject = %q", doc.Subject)
	}
	if doc.Text != "Total: 1.250 EUR incl. VAT\nLead time: 15 days" {
		t.Errorf("got %q", doc.Text)
	}
	if doc.Format != "email" {
		t.Errorf("format = %q", doc.Format)
	}
}

func TestExtractBytes_emailMultipart(t *testing.T) {
	raw := strings.Join([]string{
		"From: sales@mugs.example",
		"Subject: Quote",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><head><style>p{}</style></head><body><p>Price: <b>3.20</b> per unit</p></body></html>",
		"--inner--",
		"",
		"--outer",
		"Content-Type: text/plain",
		`Content-Disposition: attachment; filename="terms.txt"`,
		"",
		"attachment text",
		"--outer--",
		"",
	}, "\r\n")

	doc, err := NewExtractor().ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if doc.Text != "Price: 3.20 per unit" {
		t.Errorf("got %q", doc.Text)
	}
	if doc.Sender != "sales@mugs.example" || doc.SenderName != "" {
		t.Errorf("sender = %q / %q", doc.Sender, doc.SenderName)
	}
}

func TestExtractBytes_emailBase64(t *testing.T) {
	raw := strings.Join([]string{
		"From: x@y.example",
		`Content-Type: multipart/alternative; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: base64",
		"",
		"V2FycmFudHk6IDEy",
		"IG1vbnRocw==",
		"--b--",
		"",
	}, "\r\n")

	doc, err := NewExtractor().ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if doc.Text != "Warranty: 12 months" {
		t.Errorf("got %q", doc.Text)
	}
}
