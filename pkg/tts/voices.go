package tts

import (
	"slices"
	"strings"
)

// Voice is a named voice offered by one provider.
type Voice struct {
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// DefaultElevenLabsVoiceID is the gravelly voice the app ships with.
const DefaultElevenLabsVoiceID = "21m00Tcm4TlvDq8ikWAM"

var catalog = []Voice{
	{providerElevenLabs, "rachel", DefaultElevenLabsVoiceID, "calm, low"},
	{providerElevenLabs, "adam", "pNInz6obpgDQGcFmaJgB", "deep"},
	{providerElevenLabs, "antoni", "ErXwobaYiN019PkySvjV", "well-rounded"},
	{providerElevenLabs, "josh", "TxGEqnHWrfWFTfGW9XjX", "deep, young"},
	{providerElevenLabs, "sam", "yoZ06aMxZJJ28mfd3POQ", "raspy"},
	{providerElevenLabs, "domi", "AZnzlk1XvdvUeBnXmlld", "strong"},

	{providerOpenAI, "alloy", VoiceAlloy, "neutral"},
	{providerOpenAI, "echo", VoiceEcho, ""},
	{providerOpenAI, "fable", VoiceFable, "british"},
	{providerOpenAI, "onyx", VoiceOnyx, "deep"},
	{providerOpenAI, "nova", VoiceNova, "bright"},
	{providerOpenAI, "shimmer", VoiceShimmer, "soft"},
}

// Voices lists the known voices of provider.
func Voices(provider string) []Voice {
	var out []Voice
	for _, v := range catalog {
		if v.Provider == provider {
			out = append(out, v)
		}
	}
	return out
}

// ResolveVoice maps a catalog name of provider to its voice ID. Anything
// else is taken to be an ID already and returned unchanged.
func ResolveVoice(provider, name string) string {
	i := slices.IndexFunc(catalog, func(v Voice) bool {
		return v.Provider == provider && strings.EqualFold(v.Name, name)
	})
	if i < 0 {
		return name
	}
	return catalog[i].ID
}
