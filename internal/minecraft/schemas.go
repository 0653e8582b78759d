package minecraft

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

type Version struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type Player struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// UUID parses the player id. Offline-mode and proxy servers are known to
// send ids that are not UUIDs at all, hence the lazy parse.
func (self Player) UUID() (uuid.UUID, error) {
	return uuid.Parse(self.ID)
}

// Anonymous reports whether the entry is a placeholder. Servers that hide
// their online players fill the sample with the nil UUID.
func (self Player) Anonymous() bool {
	id, err := self.UUID()
	return err == nil && id == uuid.Nil
}

type Players struct {
	Max    int      `json:"max"`
	Online int      `json:"online"`
	Sample []Player `json:"sample,omitempty"`
}

// Status is what a server reports about itself. Online may exceed Max.
type Status struct {
	Version            Version       `json:"version"`
	Players            Players       `json:"players"`
	Description        Description   `json:"description"`
	Favicon            string        `json:"favicon,omitempty"`
	EnforcesSecureChat bool          `json:"enforcesSecureChat,omitempty"`
	Latency            time.Duration `json:"-"`
}

// Icon decodes the base64 PNG favicon.
func (self *Status) Icon() ([]byte, error) {
	if self.Favicon == "" {
		return nil, errors.New("status does not contain a favicon")
	}

	icon, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(self.Favicon, "data:image/png;base64,"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode favicon: %w", err)
	}

	return icon, nil
}

type descriptionKind int

const (
	absent descriptionKind = iota
	plainText
	component
)

// Component is a chat component with its styling dropped.
type Component struct {
	Text  string        `json:"text,omitempty"`
	Extra []Description `json:"extra,omitempty"`
}

func (self Component) String() string {
	var sb strings.Builder
	sb.WriteString(self.Text)

	for _, extra := range self.Extra {
		sb.WriteString(extra.String())
	}

	return sb.String()
}

// Description is either plain text or a chat component.
type Description struct {
	kind      descriptionKind
	text      string
	component Component
}

func PlainText(text string) Description {
	return Description{kind: plainText, text: text}
}

func NewComponent(c Component) Description {
	return Description{kind: component, component: c}
}

// Component reports the chat component, if that is what the server sent.
func (self Description) Component() (Component, bool) {
	return self.component, self.kind == component
}

// String flattens the description into its visible text.
func (self Description) String() string {
	switch self.kind {
	case plainText:
		return self.text
	case component:
		return self.component.String()
	default:
		return ""
	}
}

func (self *Description) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return errors.New("empty description")
	}

	switch b[0] {
	case 'n':
		*self = Description{}
		return nil

	case '"':
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*self = PlainText(text)
		return nil

	case '{':
		var c Component
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		*self = NewComponent(c)
		return nil

	default:
		return fmt.Errorf("description has unrecognized shape %q", b[0])
	}
}

func (self Description) MarshalJSON() ([]byte, error) {
	return json.Marshal(self.String())
}

// wireStatus mirrors Status with the mandatory fields as pointers so that a
// missing one can be told apart from a zero.
type wireStatus struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players *struct {
		Max    *int     `json:"max"`
		Online *int     `json:"online"`
		Sample []Player `json:"sample"`
	} `json:"players"`
	Description        Description `json:"description"`
	Favicon            string      `json:"favicon"`
	EnforcesSecureChat bool        `json:"enforcesSecureChat"`
}

func decodeStatus(document string) (*Status, error) {
	var raw wireStatus
	if err := json.Unmarshal([]byte(document), &raw); err != nil {
		return nil, fmt.Errorf("%w: undecodable status document: %w", mcerrors.ErrProtocol, err)
	}

	if raw.Players == nil || raw.Players.Online == nil || raw.Players.Max == nil {
		return nil, fmt.Errorf("%w: status document lacks players.online or players.max", mcerrors.ErrProtocol)
	}

	if *raw.Players.Online < 0 || *raw.Players.Max < 0 {
		return nil, fmt.Errorf("%w: negative player count %d/%d", mcerrors.ErrProtocol, *raw.Players.Online, *raw.Players.Max)
	}

	return &Status{
		Version: Version{Name: raw.Version.Name, Protocol: raw.Version.Protocol},
		Players: Players{
			Max:    *raw.Players.Max,
			Online: *raw.Players.Online,
			Sample: raw.Players.Sample,
		},
		Description:        raw.Description,
		Favicon:            raw.Favicon,
		EnforcesSecureChat: raw.EnforcesSecureChat,
	}, nil
}
