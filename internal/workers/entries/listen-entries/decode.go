// internal/workers/entries/listen-entries/decode.go
package listenentries

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"frontdesk/internal/common/validation"
	"frontdesk/internal/models"

	"golang.org/x/text/encoding/charmap"
)

var (
	ErrInvalidSchema = errors.New("INVALID_ENTRY_SCHEMA")
	ErrInvalidJSON   = errors.New("INVALID_ENTRY_JSON")
)

// entryEventSchema matches row_to_json output for entry_logs.
const entryEventSchema = `{
  "type": "object",
  "required": ["id", "member_id", "created_at"],
  "properties": {
    "id":          {"type": "integer", "minimum": 1},
    "member_id":   {"type": "integer"},
    "access_kind": {"type": ["string", "null"]},
    "area":        {"type": ["string", "null"]},
    "device":      {"type": ["string", "null"]},
    "notes":       {"type": ["string", "null"]},
    "created_at":  {"type": "string", "minLength": 1}
  }
}`

// Decoder turns raw channel payloads into entry events. It is stateless and
// safe for concurrent use.
type Decoder struct {
	schema *validation.SchemaValidator
}

// NewDecoder builds a decoder; validate enables JSON Schema checks before
// unmarshalling.
func NewDecoder(validate bool) (*Decoder, error) {
	d := &Decoder{}
	if validate {
		v, err := validation.NewSchemaValidator(entryEventSchema)
		if err != nil {
			return nil, err
		}
		d.schema = v
	}
	return d, nil
}

// Decode converts one payload. Any error means the payload is dropped.
func (d *Decoder) Decode(p Payload) (models.EntryEvent, error) {
	var ev models.EntryEvent

	text, err := decodeText(p.Data)
	if err != nil {
		return ev, err
	}

	if d.schema != nil {
		if err := d.schema.Validate(text).Err(); err != nil {
			return ev, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}

	if err := json.Unmarshal(text, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if ev.ID <= 0 {
		return ev, fmt.Errorf("%w: missing id", ErrInvalidJSON)
	}
	ev.Channel = p.Channel
	return ev, nil
}

// decodeText returns UTF-8 bytes, reading anything else as Windows-1252.
// That charmap maps every byte, so binary noise passes through here and is
// rejected by the schema or JSON step instead.
func decodeText(raw []byte) ([]byte, error) {
	if utf8.Valid(raw) {
		return raw, nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return out, nil
}
