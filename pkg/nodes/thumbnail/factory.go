// Package thumbnail provides the thumbnail node type.
package thumbnail

import (
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/protocol"
)

type ThumbnailNodeFactory struct{}

func NewThumbnailNodeFactory() protocol.NodeFactory {
	return &ThumbnailNodeFactory{}
}

func (f *ThumbnailNodeFactory) ID() string {
	return "thumbnail"
}

func (f *ThumbnailNodeFactory) Name() string {
	return "Thumbnail"
}

func (f *ThumbnailNodeFactory) Description() string {
	return "Extracts still frames from the upstream video as cover thumbnails"
}

func (f *ThumbnailNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"maximum": 20,
				"default": 3,
			},
			"format": map[string]any{
				"type":    "string",
				"enum":    []string{"jpg", "png", "webp"},
				"default": "jpg",
			},
			"at_seconds": map[string]any{
				"type":        "array",
				"description": "Explicit timestamps to capture; evenly spaced when omitted",
				"items":       map[string]any{"type": "number", "minimum": 0},
			},
		},
	}
}

func (f *ThumbnailNodeFactory) Ports() models.PortArity {
	return models.PortArity{
		Inputs:  []string{"input"},
		Outputs: []string{"output"},
	}
}
