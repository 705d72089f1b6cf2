package format

import "strings"

// registry is the closed-world table of supported formats. Every extension
// listed in a ConvertibleTo set must resolve to another entry in this table;
// a violation is a data defect, not a runtime condition.
var registry = []Descriptor{
	// Images. webp is decode-only: it appears as a source but no format
	// lists it as a conversion target.
	{
		Name:          "JPEG",
		Extensions:    []string{"jpg", "jpeg"},
		MIMETypes:     []string{"image/jpeg"},
		Category:      CategoryImage,
		ConvertibleTo: []string{"png", "gif", "bmp", "tif"},
	},
	{
		Name:          "PNG",
		Extensions:    []string{"png"},
		MIMETypes:     []string{"image/png"},
		Category:      CategoryImage,
		ConvertibleTo: []string{"jpg", "gif", "bmp", "tif"},
	},
	{
		Name:          "GIF",
		Extensions:    []string{"gif"},
		MIMETypes:     []string{"image/gif"},
		Category:      CategoryImage,
		ConvertibleTo: []string{"jpg", "png", "bmp", "tif"},
	},
	{
		Name:          "BMP",
		Extensions:    []string{"bmp"},
		MIMETypes:     []string{"image/bmp", "image/x-ms-bmp"},
		Category:      CategoryImage,
		ConvertibleTo: []string{"jpg", "png", "gif", "tif"},
	},
	{
		Name:          "TIFF",
		Extensions:    []string{"tif", "tiff"},
		MIMETypes:     []string{"image/tiff"},
		Category:      CategoryImage,
		ConvertibleTo: []string{"jpg", "png", "gif", "bmp"},
	},
	{
		Name:          "WebP",
		Extensions:    []string{"webp"},
		MIMETypes:     []string{"image/webp"},
		Category:      CategoryImage,
		ConvertibleTo: []string{"jpg", "png", "gif", "bmp", "tif"},
	},

	// Audio.
	{
		Name:          "MP3",
		Extensions:    []string{"mp3"},
		MIMETypes:     []string{"audio/mpeg"},
		Category:      CategoryAudio,
		ConvertibleTo: []string{"wav", "flac", "ogg", "m4a", "aac"},
	},
	{
		Name:          "WAV",
		Extensions:    []string{"wav"},
		MIMETypes:     []string{"audio/wav", "audio/x-wav"},
		Category:      CategoryAudio,
		ConvertibleTo: []string{"mp3", "flac", "ogg", "m4a", "aac"},
	},
	{
		Name:          "FLAC",
		Extensions:    []string{"flac"},
		MIMETypes:     []string{"audio/flac", "audio/x-flac"},
		Category:      CategoryAudio,
		ConvertibleTo: []string{"mp3", "wav", "ogg", "m4a", "aac"},
	},
	{
		Name:          "OGG",
		Extensions:    []string{"ogg"},
		MIMETypes:     []string{"audio/ogg"},
		Category:      CategoryAudio,
		ConvertibleTo: []string{"mp3", "wav", "flac", "m4a", "aac"},
	},
	{
		Name:          "M4A",
		Extensions:    []string{"m4a"},
		MIMETypes:     []string{"audio/mp4", "audio/x-m4a"},
		Category:      CategoryAudio,
		ConvertibleTo: []string{"mp3", "wav", "flac", "ogg", "aac"},
	},
	{
		Name:          "AAC",
		Extensions:    []string{"aac"},
		MIMETypes:     []string{"audio/aac"},
		Category:      CategoryAudio,
		ConvertibleTo: []string{"mp3", "wav", "flac", "ogg", "m4a"},
	},

	// Documents. pdf is intentionally absent: the document engine cannot
	// render it in this environment.
	{
		Name:          "Markdown",
		Extensions:    []string{"md", "markdown"},
		MIMETypes:     []string{"text/markdown", "text/x-markdown"},
		Category:      CategoryDocument,
		ConvertibleTo: []string{"html", "txt", "rtf", "tex", "docx", "odt", "epub"},
	},
	{
		Name:          "HTML",
		Extensions:    []string{"html", "htm"},
		MIMETypes:     []string{"text/html"},
		Category:      CategoryDocument,
		ConvertibleTo: []string{"md", "txt", "rtf", "tex", "docx", "odt", "epub"},
	},
	{
		Name:          "Plain Text",
		Extensions:    []string{"txt"},
		MIMETypes:     []string{"text/plain"},
		Category:      CategoryDocument,
		ConvertibleTo: []string{"md", "html", "rtf", "tex", "docx", "odt", "epub"},
	},
	{
		Name:          "Rich Text",
		Extensions:    []string{"rtf"},
		MIMETypes:     []string{"application/rtf", "text/rtf"},
		Category:      CategoryDocument,
		ConvertibleTo: []string{"md", "html", "txt", "tex", "docx", "odt", "epub"},
	},
	{
		Name:          "LaTeX",
		Extensions:    []string{"tex"},
		MIMETypes:     []string{"application/x-latex", "text/x-tex"},
		Category:      CategoryDocument,
		ConvertibleTo: []string{"md", "html", "txt", "rtf", "docx", "odt", "epub"},
	},
	{
		Name:          "Word Document",
		Extensions:    []string{"docx"},
		MIMETypes:     []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		Category:      CategoryDocument,
		ConvertibleTo: []string{"md", "html", "txt", "rtf", "tex", "odt", "epub"},
	},
	{
		Name:          "OpenDocument Text",
		Extensions:    []string{"odt"},
		MIMETypes:     []string{"application/vnd.oasis.opendocument.text"},
		Category:      CategoryDocument,
		ConvertibleTo: []string{"md", "html", "txt", "rtf", "tex", "docx", "epub"},
	},
	{
		Name:          "EPUB",
		Extensions:    []string{"epub"},
		MIMETypes:     []string{"application/epub+zip"},
		Category:      CategoryDocument,
		ConvertibleTo: []string{"md", "html", "txt", "rtf", "tex", "docx", "odt"},
	},
}

// NormalizeExt strips a leading dot and lower-cases an extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// LookupByExtension resolves a file extension to its descriptor, or nil when
// no format claims it.
func LookupByExtension(ext string) *Descriptor {
	ext = NormalizeExt(ext)
	for i := range registry {
		if registry[i].HasExtension(ext) {
			return &registry[i]
		}
	}
	return nil
}

// lookupByMIME resolves an exact MIME type to its descriptor.
func lookupByMIME(mime string) *Descriptor {
	mime = strings.ToLower(strings.TrimSpace(mime))
	for i := range registry {
		for _, m := range registry[i].MIMETypes {
			if m == mime {
				return &registry[i]
			}
		}
	}
	return nil
}

// Detect resolves a filename (or bare extension) to a descriptor, falling
// back to an exact MIME-type match only when the extension matches nothing.
// Returns nil if neither matches.
func Detect(filename, mime string) *Descriptor {
	name := strings.ToLower(filename)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		if d := LookupByExtension(name[idx+1:]); d != nil {
			return d
		}
	} else if d := LookupByExtension(name); d != nil {
		// A bare extension like "png" is accepted too.
		return d
	}
	if mime != "" {
		return lookupByMIME(mime)
	}
	return nil
}

// ListConvertible maps a descriptor's ConvertibleTo extensions through the
// registry. Entries that fail to resolve are dropped; per the closed-world
// invariant they should not exist.
func ListConvertible(d *Descriptor) []*Descriptor {
	if d == nil {
		return nil
	}
	out := make([]*Descriptor, 0, len(d.ConvertibleTo))
	for _, ext := range d.ConvertibleTo {
		if target := LookupByExtension(ext); target != nil {
			out = append(out, target)
		}
	}
	return out
}

// ListByCategory returns every descriptor in the given category, in registry
// order.
func ListByCategory(cat Category) []*Descriptor {
	var out []*Descriptor
	for i := range registry {
		if registry[i].Category == cat {
			out = append(out, &registry[i])
		}
	}
	return out
}

// All returns every registered descriptor.
func All() []*Descriptor {
	out := make([]*Descriptor, len(registry))
	for i := range registry {
		out[i] = &registry[i]
	}
	return out
}
