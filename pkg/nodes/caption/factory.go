// Package caption provides the caption node type: generates and burns
// subtitles into an upstream video artifact.
package caption

import (
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/protocol"
)

type CaptionNodeFactory struct{}

func NewCaptionNodeFactory() protocol.NodeFactory {
	return &CaptionNodeFactory{}
}

func (f *CaptionNodeFactory) ID() string {
	return "caption"
}

func (f *CaptionNodeFactory) Name() string {
	return "Caption"
}

func (f *CaptionNodeFactory) Description() string {
	return "Generates subtitles from the audio track and optionally burns them in"
}

func (f *CaptionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"language": map[string]any{
				"type":        "string",
				"description": "BCP 47 language tag for the generated captions",
			},
			"burn_in": map[string]any{
				"type":    "boolean",
				"default": false,
			},
			"style": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"font":      map[string]any{"type": "string"},
					"size":      map[string]any{"type": "integer", "minimum": 8, "maximum": 96},
					"placement": map[string]any{"type": "string", "enum": []string{"top", "bottom"}},
				},
			},
		},
		"required": []string{"language"},
	}
}

func (f *CaptionNodeFactory) Ports() models.PortArity {
	return models.PortArity{
		Inputs:  []string{"input"},
		Outputs: []string{"output"},
	}
}
