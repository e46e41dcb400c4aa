//go:build !darwin && !linux

package fmi2

import "go.uber.org/zap"

func Load(path, modelIdentifier string, log *zap.Logger) (*Binding, error) {
	return nil, ErrUnsupportedPlatform
}
