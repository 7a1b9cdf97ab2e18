package event

import (
	"log/slog"

	"github.com/viant/buildfarm/service/messaging/fs"
	"github.com/viant/buildfarm/service/messaging/memory"
)

type Option func(s *Service)

// WithFSConfig sets the file system queue configuration per queue name
func WithFSConfig(newConfig func(name string) fs.Config) Option {
	return func(s *Service) {
		s.fsConfig = newConfig
	}
}

// WithMemoryConfig sets the memory queue configuration per queue name
func WithMemoryConfig(newConfig func(name string) memory.Config) Option {
	return func(s *Service) {
		s.memConfig = newConfig
	}
}

// WithLogger sets the logger used by listeners
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
