// Package registry provides node factory registration for the registry system.
package registry

import (
	"github.com/storycut/storycut/pkg/nodes/audiomix"
	"github.com/storycut/storycut/pkg/nodes/caption"
	"github.com/storycut/storycut/pkg/nodes/render"
	"github.com/storycut/storycut/pkg/nodes/thumbnail"
	"github.com/storycut/storycut/pkg/nodes/transcode"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() error {
	factories := []func() error{
		func() error { return r.Register(render.NewRenderNodeFactory()) },
		func() error { return r.Register(transcode.NewTranscodeNodeFactory()) },
		func() error { return r.Register(caption.NewCaptionNodeFactory()) },
		func() error { return r.Register(audiomix.NewAudioMixNodeFactory()) },
		func() error { return r.Register(thumbnail.NewThumbnailNodeFactory()) },
	}

	for _, register := range factories {
		if err := register(); err != nil {
			return err
		}
	}

	return nil
}
