package protocol

// Point is a single 2-D coordinate on the shared canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Effect is the visual effect applied to a stroke.
type Effect string

const (
	EffectNone    Effect = "none"
	EffectSparkle Effect = "sparkle"
	EffectRainbow Effect = "rainbow"
)

// Valid reports whether the effect is one of the known effect tags.
func (e Effect) Valid() bool {
	switch e {
	case EffectNone, EffectSparkle, EffectRainbow:
		return true
	}
	return false
}

// ParticipantInfo is the identity snapshot attached to strokes and deltas.
// It is captured at the moment of the originating operation and is not
// live-linked to the participant record.
type ParticipantInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Emoji    string `json:"emoji"`
}

// ParticipantState is a participant's full presence state as delivered in a
// room-state snapshot.
type ParticipantState struct {
	ParticipantInfo
	Cursor  *Point `json:"cursor,omitempty"`
	Drawing bool   `json:"drawing"`
}

// StrokeMeta carries the immutable attributes of a stroke, fixed at
// stroke-start.
type StrokeMeta struct {
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Effect Effect  `json:"effect"`
}

// Stroke is one continuous freehand line. While in progress it receives
// appended points from its owner only; once committed it is immutable.
type Stroke struct {
	ID     string          `json:"id"`
	Points []Point         `json:"points"`
	Color  string          `json:"color"`
	Width  float64         `json:"width"`
	Effect Effect          `json:"effect"`
	Owner  ParticipantInfo `json:"owner"`
}

// MaxNicknameLen is the longest display nickname accepted at join.
const MaxNicknameLen = 20

// DefaultAvatar is used when a join request carries an avatar outside the
// fixed set.
const DefaultAvatar = "🐶"

// AvatarEmojis is the fixed set of avatar glyphs a participant may pick from.
var AvatarEmojis = []string{
	"🐶", "🐱", "🐭", "🐹", "🐰", "🦊", "🐻", "🐼",
	"🐨", "🐯", "🦁", "🐮", "🐷", "🐸", "🐵", "🐔",
	"🦄", "🐲", "🦋", "🐝", "🐞", "🦀", "🐙", "🦆",
	"🦉", "🦅", "🐧", "🐺", "🦘", "🦒", "🐘", "🦏",
}

// ValidAvatar reports whether the glyph belongs to the fixed avatar set.
func ValidAvatar(emoji string) bool {
	for _, e := range AvatarEmojis {
		if e == emoji {
			return true
		}
	}
	return false
}
