// Package formdata packs plain objects into ordered multipart form carriers.
package formdata

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/GriffinCanCode/scriptkit/internal/shared/jsvalue"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
)

// Entry is a single form field. File is set for file parts, whose Value
// is the file name.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	File  *File  `json:"file,omitempty"`
}

// File is the content of a file part
type File struct {
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// FormData is an ordered multipart key/value carrier
type FormData struct {
	entries []Entry
}

// New creates an empty carrier
func New() *FormData {
	return &FormData{}
}

// Pack appends every field of a plain object under its key, converted
// with JS String semantics, in the object's enumeration order. Nested
// values are not expanded: an inner object becomes "[object Object]".
// A value that is not a plain object yields an empty carrier.
func Pack(fields any) *FormData {
	fd := New()
	entries, _ := jsvalue.Fields(fields)
	for _, f := range entries {
		fd.Append(f.Key, jsvalue.String(f.Value))
	}
	return fd
}

// Append adds a field; repeated keys are kept
func (fd *FormData) Append(key, value string) {
	fd.entries = append(fd.entries, Entry{Key: key, Value: value})
}

// AppendFile adds a file part. Its content type is sniffed from data.
func (fd *FormData) AppendFile(key, filename string, data []byte) {
	fd.entries = append(fd.entries, Entry{
		Key:   key,
		Value: filename,
		File: &File{
			ContentType: mimetype.Detect(data).String(),
			Size:        len(data),
			Data:        data,
		},
	})
}

// Get returns the first value stored under key
func (fd *FormData) Get(key string) (string, bool) {
	for _, e := range fd.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Entries returns a copy of the fields in order
func (fd *FormData) Entries() []Entry {
	return append([]Entry(nil), fd.entries...)
}

// Len returns the number of fields
func (fd *FormData) Len() int {
	return len(fd.entries)
}

// Encode renders the fields as a multipart/form-data body in order and
// returns it with its Content-Type
func (fd *FormData) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, e := range fd.entries {
		if err := writeEntry(w, e); err != nil {
			return nil, "", fmt.Errorf("failed to write field %q: %w", e.Key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// ApplyTo sets req's body to the encoded multipart form and its
// Content-Type to match. Sending req is up to the caller.
func (fd *FormData) ApplyTo(req *resty.Request) (*resty.Request, error) {
	body, contentType, err := fd.Encode()
	if err != nil {
		return req, err
	}
	return req.SetHeader("Content-Type", contentType).SetBody(body), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeEntry(w *multipart.Writer, e Entry) error {
	if e.File == nil {
		return w.WriteField(e.Key, e.Value)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(e.Key), quoteEscaper.Replace(e.Value)))
	h.Set("Content-Type", e.File.ContentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(e.File.Data)
	return err
}
