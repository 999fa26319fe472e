package elevenlabs

import "strings"

// voiceIDs maps friendly voice names to ElevenLabs voice ids.
var voiceIDs = map[string]string{
	"rachel":            "21m00Tcm4TlvDq8ikWAM",
	"domi":              "AZnzlk1XvdvUeBnXmlld",
	"bella":             "EXAVITQu4vr4xnSDxMaL",
	"antoni":            "ErXwobaYiN019PkySvjV",
	"elli":              "MF3mGyEYCl7XYWbV9V6O",
	"josh":              "TxGEqnHWrfWFTfGW9XjX",
	"arnold":            "VR6AewLTigWG4xSOukaG",
	"adam":              "pNInz6obpgDQGcFmaJgB",
	"sam":               "yoZ06aMxZJJ28mfd3POQ",
	"charlotte":         "XB0fDUnXU5powFXDhCwa",
	"matilda":           "XrExE9yKIg1WjnnlVkGX",
	"james":             "ZQe5CZNOzWyzPSCn5a3c",
	"joseph":            "Zlb1dXrM653N07WRdFW3",
	"jeremy":            "bVMeCyTHy58xNoL34h3p",
	"michael":           "flq6f7yk4E4fJM5XTYuZ",
	"ethan":             "g5CIjZEefAph4nQFvHAz",
	"gigi":              "jBpfuIE2acCO8z3wKNLl",
	"freya":             "jsCqWAovK2LkecY7zXl4",
	"grace":             "oWAxZDx7w5VEj9dCyTzz",
	"daniel":            "onwK4e9ZLuTAKqWW03F9",
	"lily":              "pFZP5JQG7iQjIQuC4Bku",
	"serena":            "pMsXgVXv3BLzUgSXRplE",
	"adam_multilingual": "pNInz6obpgDQGcFmaJgB",
	"nicole":            "piTKgcLEGmPE4e6mEKli",
	"callum":            "t0jbNlBVZ17f02VDIeMI",
	"charlie":           "IKne3meq5aSn9XLyUdCD",
	"george":            "JBFqnCBsd6RMkjVDRZzb",
	"emily":             "LcfcDJNUP1GQjkzn1xUU",
	"thomas":            "GBv7mTt0atIp3Br8iCZE",
	"alice":             "Xb7hH8MSUJpSbSDYk0k2",
	"tom":               "N2lVS1w4EtoT3dr4eOWO",
	"will":              "ErXwobaYiN019PkySvjV",
}

var languageVoices = map[string]string{
	"en-us-female": "rachel",
	"en-us-male":   "antoni",
	"en-gb-female": "lily",
	"en-gb-male":   "daniel",
	"en-au-male":   "james",
	"es-female":    "domi",
	"fr-female":    "charlotte",
	"de-female":    "charlotte",
}

// ResolveVoice turns a friendly name into a voice id; unknown values are
// assumed to already be ids.
func ResolveVoice(nameOrID string) string {
	if id, ok := voiceIDs[strings.ToLower(strings.TrimSpace(nameOrID))]; ok {
		return id
	}
	if nameOrID == "" {
		return voiceIDs["rachel"]
	}
	return nameOrID
}

// VoiceForLanguage picks a friendly voice name for language, gender and region.
func VoiceForLanguage(language, gender, region string) string {
	if gender == "" {
		gender = "female"
	}
	if region == "" {
		region = "us"
	}
	lang := strings.ToLower(language)
	if v, ok := languageVoices[lang+"-"+strings.ToLower(region)+"-"+strings.ToLower(gender)]; ok {
		return v
	}
	if v, ok := languageVoices[lang+"-"+strings.ToLower(gender)]; ok {
		return v
	}
	if strings.EqualFold(gender, "male") {
		return "adam_multilingual"
	}
	if lang == "en" {
		return "rachel"
	}
	return "bella"
}
