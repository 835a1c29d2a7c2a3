package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"github.com/jking323/TaskHarvester/internal/extraction"
)

var headerLine = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*:`)

// looksLikeEmail reports whether data starts with a header block containing
// a From or Subject header.
func looksLikeEmail(data []byte) bool {
	if !headerLine.Match(data) {
		return false
	}
	head, _, _ := bytes.Cut(data, []byte("\n\n"))
	lower := bytes.ToLower(head)
	return bytes.Contains(lower, []byte("from:")) || bytes.Contains(lower, []byte("subject:"))
}

var wordDecoder = &mime.WordDecoder{}

// parseEmail reads an RFC 822 message. For multipart messages the first
// text/plain part is used, or the first part of any type if none is plain.
func parseEmail(name string, data []byte) (extraction.SourceDocument, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return extraction.SourceDocument{}, fmt.Errorf("%s: invalid email: %w", name, err)
	}

	doc := extraction.SourceDocument{
		Ref:        strings.Trim(strings.TrimSpace(msg.Header.Get("Message-ID")), "<>"),
		SourceType: extraction.SourceEmail,
		Sender:     decodeHeader(msg.Header.Get("From")),
		Subject:    decodeHeader(msg.Header.Get("Subject")),
	}
	if doc.Ref == "" {
		doc.Ref = name
	}
	if addr, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		doc.Sender = addr.Address
	}
	if date, err := msg.Header.Date(); err == nil {
		doc.ReceivedAt = date
	}

	body, err := readBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return extraction.SourceDocument{}, fmt.Errorf("%s: read body: %w", name, err)
	}
	doc.Body = strings.TrimSpace(body)
	return doc, nil
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func readBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		mr := multipart.NewReader(r, params["boundary"])
		var fallback string
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return fallback, nil
			}
			if err != nil {
				return "", err
			}
			text, err := readBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if partType == "text/plain" || partType == "" {
				return text, nil
			}
			if fallback == "" {
				fallback = text
			}
		}
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
