package speech

import "strings"

var baselineVoices = map[string]string{
	"en": "Polly.Joanna",
	"es": "Polly.Conchita",
	"fr": "Polly.Celine",
	"de": "Polly.Marlene",
	"it": "Polly.Carla",
	"pt": "Polly.Vitoria",
	"zh": "Polly.Zhiyu",
	"ja": "Polly.Mizuki",
	"ko": "Polly.Seoyeon",
	"ar": "Polly.Zeina",
	"hi": "Polly.Aditi",
	"ru": "Polly.Tatyana",
}

var locales = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-BR",
	"zh": "zh-CN",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"ar": "ar-AE",
	"hi": "hi-IN",
	"ru": "ru-RU",
}

func baseLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

// Locale maps an ISO language to the telephony locale, defaulting to en-US.
func Locale(lang string) string {
	if l, ok := locales[baseLanguage(lang)]; ok {
		return l
	}
	return "en-US"
}

// BaselineVoice picks the configured voice or the language default and
// upgrades Polly voices to their neural variant.
func BaselineVoice(configured, lang string) string {
	voice := strings.TrimSpace(configured)
	if voice == "" {
		voice = baselineVoices[baseLanguage(lang)]
	}
	if voice == "" {
		voice = baselineVoices["en"]
	}
	if strings.HasPrefix(voice, "Polly.") && !strings.Contains(voice, "-Neural") {
		voice += "-Neural"
	}
	return voice
}

var ssmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// SSML wraps text in the conversational prosody template.
func SSML(text string) string {
	return `<speak><amazon:domain name="conversational"><prosody rate="medium" pitch="+2%">` +
		ssmlEscaper.Replace(text) +
		`</prosody></amazon:domain></speak>`
}
