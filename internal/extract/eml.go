package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
)

const maxMIMEDepth = 5

var (
	htmlBreakRe = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</tr>|</li>`)
	htmlCellRe  = regexp.MustCompile(`(?i)</td>|</th>`)
	htmlTagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	htmlDropRe  = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
)

// extractEmail parses an RFC 5322 message and returns its text body along with the
// sender and subject. text/plain parts are preferred over text/html.
func extractEmail(content []byte) (*Document, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse email: %w", err)
	}

	doc := &Document{Format: "email"}
	dec := new(mime.WordDecoder)
	if subject, err := dec.DecodeHeader(msg.Header.Get("Subject")); err == nil {
		doc.Subject = subject
	} else {
		doc.Subject = msg.Header.Get("Subject")
	}
	if from, err := msg.Header.AddressList("From"); err == nil && len(from) > 0 {
		doc.Sender = from[0].Address
		doc.SenderName = from[0].Name
	}

	plain, htmlBody, err := collectBodies(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body, 0)
	if err != nil {
		return nil, fmt.Errorf("read email body: %w", err)
	}
	switch {
	case strings.TrimSpace(plain) != "":
		doc.Text = plain
	case strings.TrimSpace(htmlBody) != "":
		doc.Text = htmlToText(htmlBody)
	}
	return doc, nil
}

// collectBodies walks a MIME tree and concatenates its text/plain and text/html leaves.
// Attachments are skipped.
func collectBodies(contentType, encoding string, body io.Reader, depth int) (plain, htmlBody string, err error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxMIMEDepth || params["boundary"] == "" {
			return "", "", nil
		}
		mr := multipart.NewReader(body, params["boundary"])
		var plains, htmls []string
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", "", err
			}
			if isAttachment(part.Header.Get("Content-Disposition")) {
				part.Close()
				continue
			}
			p, h, err := collectBodies(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part, depth+1)
			part.Close()
			if err != nil {
				return "", "", err
			}
			if p != "" {
				plains = append(plains, p)
			}
			if h != "" {
				htmls = append(htmls, h)
			}
		}
		return strings.Join(plains, "\n\n"), strings.Join(htmls, "\n"), nil
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", "", nil
	}

	data, err := io.ReadAll(decodeTransfer(encoding, body))
	if err != nil {
		return "", "", err
	}
	text, _ := extractPlain(data)
	if mediaType == "text/html" {
		return "", text, nil
	}
	return text, "", nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func isAttachment(disposition string) bool {
	d, _, err := mime.ParseMediaType(disposition)
	return err == nil && strings.EqualFold(d, "attachment")
}

func htmlToText(s string) string {
	s = htmlDropRe.ReplaceAllString(s, "")
	s = htmlBreakRe.ReplaceAllString(s, "\n")
	s = htmlCellRe.ReplaceAllString(s, "\t")
	s = htmlTagRe.ReplaceAllString(s, "")
	return html.UnescapeString(s)
}
