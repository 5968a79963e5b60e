// Package wire implements the SECoP line-based text protocol codec:
// parsing an incoming frame into its action/specifier/payload parts and
// encoding an outgoing one, per spec.md §6.
package wire

import (
	"encoding/json"
	"strings"

	"github.com/vitalybin/frappy/pkg/secop/secoperr"
)

// Frame is one protocol line: <action> <specifier> <payload>.
type Frame struct {
	Action    string
	Specifier string          // "" for the global specifier ("."); "module" or "module:param" otherwise
	Payload   json.RawMessage // nil if the frame carried no payload
}

// legacyAliases maps bare wire aliases onto their canonical action name.
var legacyAliases = map[string]string{
	"*IDN?": "identify",
}

// Parse splits one incoming line into a Frame. It never returns an error
// for a structurally-plausible line; genuinely malformed input (no
// action token, unbalanced JSON) yields a ProtocolError so the caller
// can reply with error_<inferred-action> without tearing down the
// connection (spec.md §4.6 "a malformed frame never tears down the
// connection").
func Parse(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return Frame{}, secoperr.New(secoperr.KindProtocolError, "empty frame")
	}

	parts := strings.SplitN(line, " ", 3)
	action := parts[0]
	if canon, ok := legacyAliases[action]; ok {
		action = canon
	}

	var specifier string
	if len(parts) >= 2 {
		specifier = strings.TrimSpace(parts[1])
	}
	if specifier == "." {
		specifier = ""
	}

	var payload json.RawMessage
	if len(parts) == 3 {
		raw := strings.TrimSpace(parts[2])
		if raw != "" {
			if !json.Valid([]byte(raw)) {
				return Frame{Action: action, Specifier: specifier}, secoperr.Newf(secoperr.KindProtocolError, "invalid JSON payload: %s", raw)
			}
			payload = json.RawMessage(raw)
		}
	}

	return Frame{Action: action, Specifier: specifier, Payload: payload}, nil
}

// Encode renders f back into one protocol line, without a trailing
// newline (the transport appends it).
func Encode(f Frame) string {
	spec := f.Specifier
	if spec == "" {
		spec = "."
	}
	if len(f.Payload) == 0 {
		return f.Action + " " + spec
	}
	return f.Action + " " + spec + " " + string(f.Payload)
}

// SplitSpecifier splits a "module" or "module:param" specifier. ok is
// false for the empty (global) specifier.
func SplitSpecifier(specifier string) (module, param string, ok bool) {
	if specifier == "" {
		return "", "", false
	}
	if idx := strings.IndexByte(specifier, ':'); idx >= 0 {
		return specifier[:idx], specifier[idx+1:], true
	}
	return specifier, "", true
}

// JoinSpecifier is SplitSpecifier's inverse.
func JoinSpecifier(module, param string) string {
	if param == "" {
		return module
	}
	return module + ":" + param
}

// Qualifiers builds the {"t":ts,"e":detail?} object spec.md §6 attaches
// to every value reply and update frame.
func Qualifiers(ts float64, err error) map[string]any {
	q := map[string]any{"t": ts}
	if err != nil {
		q["e"] = secoperr.AsFramework(err).Detail
	}
	return q
}

// MarshalPayload is a small helper so callers can build a Frame.Payload
// from a Go value without repeating the json.Marshal/RawMessage dance.
func MarshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, secoperr.Newf(secoperr.KindInternalError, "encoding payload: %v", err)
	}
	return json.RawMessage(b), nil
}

// ErrorPayload builds the [errname, detail, extra] triple spec.md §6
// puts in the body of an error_<action> reply.
func ErrorPayload(err error) (json.RawMessage, error) {
	fe := secoperr.AsFramework(err)
	return MarshalPayload([]any{fe.Name(), fe.Detail, map[string]any{}})
}
