// Package transcode provides the transcode node type for format conversion.
package transcode

import (
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/protocol"
)

type TranscodeNodeFactory struct{}

func NewTranscodeNodeFactory() protocol.NodeFactory {
	return &TranscodeNodeFactory{}
}

func (f *TranscodeNodeFactory) ID() string {
	return "transcode"
}

func (f *TranscodeNodeFactory) Name() string {
	return "Transcode"
}

func (f *TranscodeNodeFactory) Description() string {
	return "Transcodes an upstream video artifact into a target container and codec"
}

func (f *TranscodeNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"container": map[string]any{
				"type":    "string",
				"enum":    []string{"mp4", "webm", "mov"},
				"default": "mp4",
			},
			"video_codec": map[string]any{
				"type":    "string",
				"enum":    []string{"h264", "h265", "vp9", "av1"},
				"default": "h264",
			},
			"audio_codec": map[string]any{
				"type":    "string",
				"enum":    []string{"aac", "opus"},
				"default": "aac",
			},
			"bitrate_kbps": map[string]any{
				"type":    "integer",
				"minimum": 100,
				"maximum": 100000,
			},
		},
		"required": []string{"container", "video_codec"},
	}
}

func (f *TranscodeNodeFactory) Ports() models.PortArity {
	return models.PortArity{
		Inputs:  []string{"input"},
		Outputs: []string{"output"},
	}
}
