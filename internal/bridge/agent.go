package bridge

import (
	"github.com/Iron-Ham/maabridge/internal/instance"
)

// StopAgent disconnects the agent client of id and kills its process.
// A connect still in progress is abandoned. Calling it without an agent, or
// twice, succeeds.
func (s *Service) StopAgent(id string) error {
	s.logger.WithInstance(id).Info("stop_agent")
	return s.registry.With(id, func(rt *instance.Runtime) error {
		s.agents.Stop(rt)
		return nil
	})
}
