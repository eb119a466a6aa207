// Package render provides the render node type: composes a story's scenes
// into a video through the external render farm.
package render

import (
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/protocol"
)

// RenderNodeFactory describes the render node type.
type RenderNodeFactory struct{}

// NewRenderNodeFactory creates a new factory instance.
func NewRenderNodeFactory() protocol.NodeFactory {
	return &RenderNodeFactory{}
}

func (f *RenderNodeFactory) ID() string {
	return "render"
}

func (f *RenderNodeFactory) Name() string {
	return "Render"
}

func (f *RenderNodeFactory) Description() string {
	return "Renders a story's scene composition into a video file on the render farm"
}

// Schema returns the JSON schema for render node configuration.
func (f *RenderNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"story_id": map[string]any{
				"type":        "string",
				"description": "Story document to render",
			},
			"resolution": map[string]any{
				"type":        "string",
				"description": "Output resolution",
				"enum":        []string{"720p", "1080p", "4k"},
				"default":     "1080p",
			},
			"fps": map[string]any{
				"type":        "integer",
				"description": "Frames per second",
				"minimum":     1,
				"maximum":     120,
				"default":     30,
			},
			"watermark": map[string]any{
				"type":        "boolean",
				"description": "Burn the project watermark into the output",
				"default":     false,
			},
		},
		"required": []string{"story_id", "resolution"},
	}
}

func (f *RenderNodeFactory) Ports() models.PortArity {
	return models.PortArity{
		Inputs:  []string{"input"},
		Outputs: []string{"output"},
	}
}
