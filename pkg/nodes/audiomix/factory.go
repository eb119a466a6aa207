// Package audiomix provides the audio mix node type.
package audiomix

import (
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/protocol"
)

type AudioMixNodeFactory struct{}

func NewAudioMixNodeFactory() protocol.NodeFactory {
	return &AudioMixNodeFactory{}
}

func (f *AudioMixNodeFactory) ID() string {
	return "audiomix"
}

func (f *AudioMixNodeFactory) Name() string {
	return "Audio Mix"
}

func (f *AudioMixNodeFactory) Description() string {
	return "Mixes voice-over and music tracks into the upstream video artifact"
}

func (f *AudioMixNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"music_track_id": map[string]any{
				"type":        "string",
				"description": "Library id of the background music track",
			},
			"music_gain_db": map[string]any{
				"type":    "number",
				"minimum": -60,
				"maximum": 12,
				"default": -18,
			},
			"ducking": map[string]any{
				"type":        "boolean",
				"description": "Lower music under speech",
				"default":     true,
			},
			"normalize_lufs": map[string]any{
				"type":    "number",
				"minimum": -36,
				"maximum": -8,
			},
		},
		"required": []string{"music_track_id"},
	}
}

func (f *AudioMixNodeFactory) Ports() models.PortArity {
	return models.PortArity{
		// Voice and music arrive on separate input ports.
		Inputs:  []string{"input", "music"},
		Outputs: []string{"output"},
	}
}
