// Package ingest turns files into SourceDocuments.
//
// Supported inputs:
//
//	.json        one document, an array of documents, or {"documents": [...]}
//	.yaml, .yml  the same shapes in YAML
//	.eml         an RFC 822 message (From, Date, Subject, Message-ID, body)
//	anything else  the whole file is the body
//
// Documents without a ref are named after their file ("notes.txt", or
// "batch.json#2" for the third entry of a batch file) so that re-ingesting
// a file yields the same refs.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goccy/go-yaml"

	"github.com/jking323/TaskHarvester/internal/extraction"
)

// MaxFileSize bounds a single input file.
const MaxFileSize = 10 << 20

// ErrUnsupported is returned by LoadReader for content it cannot identify.
var ErrUnsupported = errors.New("unsupported document format")

// Defaults fill in fields a file does not carry.
type Defaults struct {
	SourceType extraction.SourceType
}

func (d Defaults) sourceType() extraction.SourceType {
	if d.SourceType == "" {
		return extraction.SourceEmail
	}
	return d.SourceType
}

// fileDocument is the on-disk shape of a document in JSON and YAML files.
type fileDocument struct {
	Ref        string `json:"ref" yaml:"ref"`
	SourceType string `json:"source_type" yaml:"source_type"`
	Sender     string `json:"sender" yaml:"sender"`
	ReceivedAt string `json:"received_at" yaml:"received_at"`
	Subject    string `json:"subject" yaml:"subject"`
	Body       string `json:"body" yaml:"body"`
}

type fileBatch struct {
	Documents []fileDocument `json:"documents" yaml:"documents"`
}

var receivedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

func parseReceived(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range receivedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised received_at %q", s)
}

func (f fileDocument) toSource(name string, index int, defaults Defaults) (extraction.SourceDocument, error) {
	doc := extraction.SourceDocument{
		Ref:     strings.TrimSpace(f.Ref),
		Sender:  f.Sender,
		Subject: f.Subject,
		Body:    f.Body,
	}
	if doc.Ref == "" {
		doc.Ref = fmt.Sprintf("%s#%d", name, index)
	}

	doc.SourceType = defaults.sourceType()
	if f.SourceType != "" {
		st, err := extraction.ParseSourceType(f.SourceType)
		if err != nil {
			return doc, fmt.Errorf("document %s: %w", doc.Ref, err)
		}
		doc.SourceType = st
	}

	received, err := parseReceived(f.ReceivedAt)
	if err != nil {
		return doc, fmt.Errorf("document %s: %w", doc.Ref, err)
	}
	doc.ReceivedAt = received
	return doc, nil
}

func convert(name string, files []fileDocument, defaults Defaults) ([]extraction.SourceDocument, error) {
	docs := make([]extraction.SourceDocument, 0, len(files))
	for i, f := range files {
		doc, err := f.toSource(name, i, defaults)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadFile reads the documents in one file.
func LoadFile(path string, defaults Defaults) ([]extraction.SourceDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%s is too large: %d bytes (max %d)", path, info.Size(), MaxFileSize)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSON(name, data, defaults)
	case ".yaml", ".yml":
		return decodeYAML(name, data, defaults)
	case ".eml":
		doc, err := parseEmail(name, data)
		if err != nil {
			return nil, err
		}
		return []extraction.SourceDocument{doc}, nil
	default:
		return []extraction.SourceDocument{{
			Ref:        name,
			SourceType: defaults.sourceType(),
			ReceivedAt: info.ModTime(),
			Body:       string(data),
		}}, nil
	}
}

// LoadReader reads documents from a stream such as stdin. JSON is detected
// by its first character, an RFC 822 header block by a leading "Name:" line;
// anything else is plain text.
func LoadReader(r io.Reader, name string, defaults Defaults) ([]extraction.SourceDocument, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%s is too large (max %d bytes)", name, MaxFileSize)
	}

	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, fmt.Errorf("%s: %w: empty input", name, ErrUnsupported)
	case trimmed[0] == '[' || trimmed[0] == '{':
		return decodeJSON(name, trimmed, defaults)
	case looksLikeEmail(trimmed):
		doc, err := parseEmail(name, data)
		if err != nil {
			return nil, err
		}
		return []extraction.SourceDocument{doc}, nil
	default:
		return []extraction.SourceDocument{{
			Ref:        name,
			SourceType: defaults.sourceType(),
			Body:       string(data),
		}}, nil
	}
}

func decodeJSON(name string, data []byte, defaults Defaults) ([]extraction.SourceDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var files []fileDocument
		if err := json.Unmarshal(trimmed, &files); err != nil {
			return nil, fmt.Errorf("%s: invalid JSON: %w", name, err)
		}
		return convert(name, files, defaults)
	}

	var batch fileBatch
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON: %w", name, err)
	}
	if len(batch.Documents) > 0 {
		return convert(name, batch.Documents, defaults)
	}

	var single fileDocument
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON: %w", name, err)
	}
	doc, err := single.toSource(name, 0, defaults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if strings.TrimSpace(single.Ref) == "" {
		doc.Ref = name
	}
	return []extraction.SourceDocument{doc}, nil
}

func decodeYAML(name string, data []byte, defaults Defaults) ([]extraction.SourceDocument, error) {
	var files []fileDocument
	if err := yaml.Unmarshal(data, &files); err == nil {
		return convert(name, files, defaults)
	}

	var batch fileBatch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%s: invalid YAML: %w", name, err)
	}
	if len(batch.Documents) > 0 {
		return convert(name, batch.Documents, defaults)
	}

	var single fileDocument
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("%s: invalid YAML: %w", name, err)
	}
	if single.Body == "" && single.Subject == "" {
		return nil, fmt.Errorf("%s: no documents found", name)
	}
	doc, err := single.toSource(name, 0, defaults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if strings.TrimSpace(single.Ref) == "" {
		doc.Ref = name
	}
	return []extraction.SourceDocument{doc}, nil
}

// LoadPaths loads every file named, descending into directories. Hidden
// files and directories are skipped. Directory entries load in lexical order.
func LoadPaths(paths []string, defaults Defaults) ([]extraction.SourceDocument, error) {
	var docs []extraction.SourceDocument
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			loaded, err := LoadFile(p, defaults)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
			continue
		}

		files, err := listDir(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			loaded, err := LoadFile(f, defaults)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
		}
	}
	return docs, nil
}

func listDir(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}
