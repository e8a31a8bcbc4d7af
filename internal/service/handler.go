package service

import "quicknotes/pkg/types"

// ClipsChangeHandler is implemented by components that render the clip collection.
// It is called after every state-changing operation and after every filter.
type ClipsChangeHandler interface {
	Render(clips []types.Clip)
}

// RenderFunc adapts a function to ClipsChangeHandler
type RenderFunc func(clips []types.Clip)

func (f RenderFunc) Render(clips []types.Clip) {
	f(clips)
}
