package format

import "testing"

func TestDetectPrefersExtensionOverMIME(t *testing.T) {
	d := Detect("photo.PNG", "application/octet-stream")
	if d == nil {
		t.Fatal("expected PNG descriptor, got nil")
	}
	if d.Name != "PNG" {
		t.Fatalf("expected PNG, got %s", d.Name)
	}
}

func TestDetectFallsBackToMIME(t *testing.T) {
	d := Detect("clip.bin", "audio/mpeg")
	if d == nil {
		t.Fatal("expected MP3 descriptor via MIME fallback, got nil")
	}
	if d.Name != "MP3" {
		t.Fatalf("expected MP3, got %s", d.Name)
	}
}

func TestDetectUnknownReturnsNil(t *testing.T) {
	if d := Detect("file.xyz", "application/x-unknown"); d != nil {
		t.Fatalf("expected nil for unknown format, got %s", d.Name)
	}
}

func TestDetectDeterministic(t *testing.T) {
	// Extension wins regardless of a conflicting MIME.
	a := Detect("a.jpg", "image/png")
	b := Detect("b.JPG", "")
	if a == nil || b == nil || a != b {
		t.Fatalf("expected both lookups to hit the JPEG descriptor, got %v and %v", a, b)
	}
}

func TestLookupByExtensionNormalizes(t *testing.T) {
	for _, ext := range []string{"jpg", ".jpg", "JPG", ".JPEG"} {
		d := LookupByExtension(ext)
		if d == nil || d.Name != "JPEG" {
			t.Fatalf("lookup %q: expected JPEG, got %v", ext, d)
		}
	}
}

func TestConvertibleClosure(t *testing.T) {
	for _, d := range All() {
		for _, ext := range d.ConvertibleTo {
			if LookupByExtension(ext) == nil {
				t.Errorf("%s: convertible target %q does not resolve", d.Name, ext)
			}
		}
	}
}

func TestNothingConvertsToWebP(t *testing.T) {
	for _, d := range All() {
		for _, ext := range d.ConvertibleTo {
			if ext == "webp" {
				t.Errorf("%s lists webp as a target; webp is decode-only", d.Name)
			}
		}
	}
}

func TestListConvertibleResolvesAll(t *testing.T) {
	d := LookupByExtension("wav")
	if d == nil {
		t.Fatal("wav descriptor missing")
	}
	got := ListConvertible(d)
	if len(got) != len(d.ConvertibleTo) {
		t.Fatalf("expected %d convertible formats, got %d", len(d.ConvertibleTo), len(got))
	}
}

func TestListByCategory(t *testing.T) {
	for _, cat := range []Category{CategoryImage, CategoryAudio, CategoryDocument} {
		list := ListByCategory(cat)
		if len(list) == 0 {
			t.Fatalf("no formats in category %s", cat)
		}
		for _, d := range list {
			if d.Category != cat {
				t.Errorf("%s reported under category %s", d.Name, cat)
			}
		}
	}
}
