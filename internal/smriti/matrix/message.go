package matrix

import (
	"strings"

	"maunium.net/go/mautrix/event"
)

// Kind distinguishes what a Message carries.
type Kind int

const (
	KindText Kind = iota
	KindAudio
)

// Message is an incoming chat message stripped of Matrix types.
type Message struct {
	RoomID  string
	EventID string
	Sender  string
	Kind    Kind
	Body    string
	// Audio is set for voice messages.
	Audio *Attachment
}

// Attachment points at uploaded media.
type Attachment struct {
	URI      string
	MimeType string
	Filename string
}

// messageFromEvent converts text and audio m.room.message events. Other
// message types and encrypted media are skipped.
func messageFromEvent(evt *event.Event) (Message, bool) {
	content := evt.Content.AsMessage()
	if content == nil {
		return Message{}, false
	}
	msg := Message{
		RoomID:  evt.RoomID.String(),
		EventID: evt.ID.String(),
		Sender:  evt.Sender.String(),
		Body:    strings.TrimSpace(content.Body),
	}
	switch content.MsgType {
	case event.MsgText:
		msg.Kind = KindText
		return msg, msg.Body != ""
	case event.MsgAudio:
		if content.URL == "" {
			return Message{}, false
		}
		msg.Kind = KindAudio
		msg.Audio = &Attachment{URI: string(content.URL), Filename: content.FileName}
		if msg.Audio.Filename == "" {
			msg.Audio.Filename = msg.Body
		}
		if content.Info != nil {
			msg.Audio.MimeType = content.Info.MimeType
		}
		return msg, true
	default:
		return Message{}, false
	}
}
