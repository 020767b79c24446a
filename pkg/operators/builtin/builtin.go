// Package builtin provides the ffmpeg operators for every editing intent.
package builtin

import (
	"github.com/chicogong/vidioai/pkg/operators"
)

// RegisterAll registers every builtin operator
func RegisterAll(reg *operators.Registry) {
	reg.Register(&SilenceOperator{})
	reg.Register(&CutOperator{})
	reg.Register(&AudioOperator{})
	reg.Register(&RemoveAudioOperator{})
	reg.Register(&ViralOperator{})
	reg.Register(&SubtitlesOperator{})
	reg.Register(&CustomOperator{})
}

// NewRegistry returns a registry holding the builtin operators
func NewRegistry() *operators.Registry {
	reg := operators.NewRegistry()
	RegisterAll(reg)
	return reg
}
