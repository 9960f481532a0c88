package sfu

import "encoding/json"

// StreamType classifies what kind of media a Stream carries.
type StreamType string

const (
	StreamTypeAudio           StreamType = "audio"
	StreamTypeVideo           StreamType = "video"
	StreamTypeScreen          StreamType = "screen"
	StreamTypeScreenAudio     StreamType = "screen_audio"
	StreamTypeTranslatedAudio StreamType = "translated_audio"
)

// RawJSON is the opaque JSON-string payload the wire contract uses for
// rtpParameters/metadata/rtpCapabilities. The core never interprets its
// contents beyond what producing/consuming requires; shape is normalised
// at the RPC boundary, never downstream.
type RawJSON = json.RawMessage

// Metadata is the normalised, in-process shape of a Stream's free-form
// metadata. The RPC boundary (internal/sfuapi) decodes RawJSON into this
// before handing it to the core, and the core shallow-merges into it on
// UpdateStreamMetadata without re-validating invariants.
type Metadata map[string]any

// IsScreenShare reports whether the metadata marks its stream as a screen
// share. Metadata wins on conflict; callers check producer app-data only
// if this is false.
func (m Metadata) IsScreenShare() bool {
	if m == nil {
		return false
	}
	if v, ok := m["isScreenShare"].(bool); ok && v {
		return true
	}
	if t, ok := m["type"].(string); ok {
		return t == string(StreamTypeScreen) || t == string(StreamTypeScreenAudio)
	}
	return false
}
