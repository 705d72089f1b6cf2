package format

// Category groups formats by the engine that handles them.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
)

// Descriptor describes one supported file format: its identity (name,
// extensions, MIME types), the engine category that owns it, and the set of
// formats it may be converted into. Descriptors are defined once at process
// start and never mutated.
type Descriptor struct {
	Name          string   `json:"name"`
	Extensions    []string `json:"extensions"` // lowercase, first is canonical
	MIMETypes     []string `json:"mime_types"`
	Category      Category `json:"category"`
	ConvertibleTo []string `json:"convertible_to"` // extensions; may be asymmetric
}

// Ext returns the canonical extension for the format.
func (d *Descriptor) Ext() string {
	if len(d.Extensions) == 0 {
		return ""
	}
	return d.Extensions[0]
}

// MIME returns the primary MIME type for the format, or
// application/octet-stream if none is declared.
func (d *Descriptor) MIME() string {
	if len(d.MIMETypes) == 0 {
		return "application/octet-stream"
	}
	return d.MIMETypes[0]
}

// HasExtension reports whether ext (already normalized) names this format.
func (d *Descriptor) HasExtension(ext string) bool {
	for _, e := range d.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}
