package mcproto

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// TextComponent is a chat/MOTD text component. On the wire it is either a bare JSON string
// or an object whose extra children are themselves components.
type TextComponent struct {
	Text          string          `json:"text"`
	Type          string          `json:"type,omitempty"`
	Extra         []TextComponent `json:"extra,omitempty"`
	Color         string          `json:"color,omitempty"`
	Font          string          `json:"font,omitempty"`
	Bold          *bool           `json:"bold,omitempty"`
	Italic        *bool           `json:"italic,omitempty"`
	Underlined    *bool           `json:"underlined,omitempty"`
	Strikethrough *bool           `json:"strikethrough,omitempty"`
	Obfuscated    *bool           `json:"obfuscated,omitempty"`
	Insertion     string          `json:"insertion,omitempty"`
}

// Text is a plain, undecorated component
func Text(s string) TextComponent {
	return TextComponent{Text: s}
}

// textComponentObject drops the custom marshalers to avoid recursion
type textComponentObject TextComponent

func (t TextComponent) isPlain() bool {
	return t.Type == "" && t.Extra == nil && t.Color == "" && t.Font == "" &&
		t.Bold == nil && t.Italic == nil && t.Underlined == nil &&
		t.Strikethrough == nil && t.Obfuscated == nil && t.Insertion == ""
}

func (t TextComponent) MarshalJSON() ([]byte, error) {
	if t.isPlain() {
		return json.Marshal(t.Text)
	}
	if t.Extra != nil && len(t.Extra) == 0 {
		// an explicitly empty extra is kept so it decodes back as empty rather than absent
		return json.Marshal(struct {
			textComponentObject
			Extra []TextComponent `json:"extra"`
		}{textComponentObject(t), t.Extra})
	}
	return json.Marshal(textComponentObject(t))
}

func (t *TextComponent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty text component")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TextComponent{Text: s}
		return nil

	case '{':
		var obj textComponentObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*t = TextComponent(obj)
		return nil

	case '[':
		// an array is shorthand for its first element with the rest appended as extra
		var parts []TextComponent
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		if len(parts) == 0 {
			*t = TextComponent{}
			return nil
		}
		head := parts[0]
		head.Extra = append(head.Extra, parts[1:]...)
		*t = head
		return nil

	default:
		return errors.Errorf("unsupported text component %.32s", data)
	}
}

// PlainText flattens the component and its children, dropping all styling
func (t TextComponent) PlainText() string {
	var sb strings.Builder
	t.appendPlain(&sb)
	return sb.String()
}

func (t TextComponent) appendPlain(sb *strings.Builder) {
	sb.WriteString(t.Text)
	for _, child := range t.Extra {
		child.appendPlain(sb)
	}
}
