package datatype

// BoolType validates booleans, coercing common truthy/falsy wire forms.
type BoolType struct{}

func (BoolType) Validate(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case string:
		switch b {
		case "true", "True", "1", "on":
			return true, nil
		case "false", "False", "0", "off":
			return false, nil
		}
	}
	return nil, badValue("%v is not a bool", v)
}

func (t BoolType) ExportValue(v any) (any, error) { return t.Validate(v) }
func (t BoolType) ImportValue(w any) (any, error) { return t.Validate(w) }
func (BoolType) Default() any                      { return false }
func (BoolType) Describe() map[string]any          { return map[string]any{"type": "bool"} }

// StringType validates single-line strings up to an optional max length.
type StringType struct {
	MaxChars int // 0 means unlimited
}

func (t StringType) Validate(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, badValue("%v is not a string", v)
	}
	if t.MaxChars > 0 && len(s) > t.MaxChars {
		return nil, badValue("string exceeds maxchars=%d", t.MaxChars)
	}
	return s, nil
}

func (t StringType) ExportValue(v any) (any, error) { return t.Validate(v) }
func (t StringType) ImportValue(w any) (any, error) { return t.Validate(w) }
func (StringType) Default() any                      { return "" }

func (t StringType) Describe() map[string]any {
	d := map[string]any{"type": "string"}
	if t.MaxChars > 0 {
		d["maxchars"] = t.MaxChars
	}
	return d
}

// TextType is a StringType variant that allows embedded newlines; the
// only behavioral difference is the wire descriptor's "type" tag.
type TextType struct {
	MaxChars int
}

func (t TextType) Validate(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, badValue("%v is not text", v)
	}
	if t.MaxChars > 0 && len(s) > t.MaxChars {
		return nil, badValue("text exceeds maxchars=%d", t.MaxChars)
	}
	return s, nil
}

func (t TextType) ExportValue(v any) (any, error) { return t.Validate(v) }
func (t TextType) ImportValue(w any) (any, error) { return t.Validate(w) }
func (TextType) Default() any                      { return "" }

func (t TextType) Describe() map[string]any {
	d := map[string]any{"type": "text"}
	if t.MaxChars > 0 {
		d["maxchars"] = t.MaxChars
	}
	return d
}

// BlobType validates byte blobs within an optional [MinBytes, MaxBytes]
// length range. Wire values are base64 strings handled by the codec
// layer; Validate works on raw []byte.
type BlobType struct {
	MinBytes, MaxBytes int // MaxBytes == 0 means unlimited
}

func (t BlobType) Validate(v any) (any, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, badValue("%v is not a blob", v)
	}
	if len(b) < t.MinBytes {
		return nil, badValue("blob shorter than minbytes=%d", t.MinBytes)
	}
	if t.MaxBytes > 0 && len(b) > t.MaxBytes {
		return nil, badValue("blob longer than maxbytes=%d", t.MaxBytes)
	}
	return b, nil
}

func (t BlobType) ExportValue(v any) (any, error) { return t.Validate(v) }
func (t BlobType) ImportValue(w any) (any, error) { return t.Validate(w) }
func (BlobType) Default() any                      { return []byte{} }

func (t BlobType) Describe() map[string]any {
	d := map[string]any{"type": "blob"}
	if t.MinBytes > 0 {
		d["minbytes"] = t.MinBytes
	}
	if t.MaxBytes > 0 {
		d["maxbytes"] = t.MaxBytes
	}
	return d
}
