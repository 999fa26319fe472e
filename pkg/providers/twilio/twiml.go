package twilio

import (
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// Reply is the provider-neutral answer to a voice webhook.
type Reply struct {
	Text     string
	Voice    string
	Language string
	AudioURL string
	// GatherAction makes the reply listen for speech and post it there.
	GatherAction string
	Hangup       bool
}

// Render turns a reply into a TwiML document. A listening reply repeats the
// prompt and redirects to the gather action when the caller stays silent.
func Render(r Reply) (string, error) {
	var verbs []twiml.Element
	if r.Hangup || r.GatherAction == "" {
		if prompt := r.prompt(); prompt != nil {
			verbs = append(verbs, prompt)
		}
		verbs = append(verbs, &twiml.VoiceHangup{})
		return twiml.Voice(verbs)
	}

	gather := &twiml.VoiceGather{
		Input:           "speech",
		Action:          r.GatherAction,
		Language:        r.Language,
		SpeechTimeout:   "auto",
		SpeechModel:     "phone_call",
		Enhanced:        "true",
		ProfanityFilter: "false",
	}
	if prompt := r.prompt(); prompt != nil {
		gather.InnerElements = []twiml.Element{prompt}
		verbs = append(verbs, gather, r.prompt())
	} else {
		verbs = append(verbs, gather)
	}
	verbs = append(verbs, &twiml.VoiceRedirect{Url: r.GatherAction})
	return twiml.Voice(verbs)
}

func (r Reply) prompt() twiml.Element {
	if r.AudioURL != "" {
		return &twiml.VoicePlay{Url: r.AudioURL}
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return nil
	}
	return &twiml.VoiceSay{Message: text, Voice: r.Voice, Language: r.Language}
}
