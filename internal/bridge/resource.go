package bridge

import (
	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/instance"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// LoadResource posts one bundle load per path, creating the resource on
// first use. Paths the engine refuses are skipped with a warning.
func (s *Service) LoadResource(id string, paths []string) ([]int64, error) {
	log := s.logger.WithInstance(id)
	log.Info("load_resource", "paths", paths)

	ids := make([]int64, 0, len(paths))
	err := s.registry.With(id, func(rt *instance.Runtime) error {
		if rt.Resource() == 0 {
			res, err := s.engine.CreateResource()
			if err != nil {
				return err
			}
			if res == 0 {
				return errors.NewBridgeError("failed to create resource", errors.ErrHandleCreation).
					WithInstanceID(id).
					WithCall("MaaResourceCreate")
			}
			if err := s.engine.ResourceAddSink(res, rt.Token()); err != nil {
				_ = s.engine.DestroyResource(res)
				return err
			}
			rt.SetResource(res)
		}

		for _, path := range paths {
			bundle := s.resolveBundle(path)
			resID, err := s.engine.ResourcePostBundle(rt.Resource(), bundle)
			if err != nil {
				return err
			}
			if resID == native.InvalidID {
				log.Warn("resource bundle post failed", "path", bundle)
				continue
			}
			log.Info("resource bundle posted", "path", bundle, "res_id", resID)
			ids = append(ids, resID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// IsResourceLoaded reports whether id's resource has finished loading.
// An instance without a resource reports false.
func (s *Service) IsResourceLoaded(id string) (bool, error) {
	var loaded bool
	err := s.registry.View(id, func(rt *instance.Runtime) error {
		if rt.Resource() == 0 {
			return nil
		}
		var err error
		loaded, err = s.engine.ResourceLoaded(rt.Resource())
		return err
	})
	return loaded, err
}

// DestroyResource releases id's resource along with the tasker and agent
// client bound to it. The controller is kept.
func (s *Service) DestroyResource(id string) error {
	log := s.logger.WithInstance(id)
	log.Info("destroy_resource")

	return s.registry.With(id, func(rt *instance.Runtime) error {
		if !s.engine.Loaded() {
			return errors.ErrLibraryNotLoaded
		}
		rt.ReleaseAgent(s.engine, log)
		rt.ReleaseTasker(s.engine, log)
		rt.ReleaseResource(s.engine, log)
		return nil
	})
}
