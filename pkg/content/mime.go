package content

import (
	"mime"
	"path"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when neither the extension nor the content
// identifies a type.
const DefaultContentType = "application/octet-stream"

// DetectContentType resolves the MIME type for a document from its name,
// falling back to sniffing head (the first bytes of the document) when the
// extension is unknown. head may be nil.
func DetectContentType(name string, head []byte) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	if len(head) == 0 {
		return DefaultContentType
	}
	return mimetype.Detect(head).String()
}
