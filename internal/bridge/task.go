package bridge

import (
	"context"
	"time"

	"github.com/Iron-Ham/maabridge/internal/agent"
	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/instance"
	"github.com/Iron-Ham/maabridge/internal/logging"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// TaskStatus is the lifecycle state of a posted task.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
)

// MapStatus converts an engine status code. Unrecognized codes map to
// TaskFailed.
func MapStatus(code int32) TaskStatus {
	switch code {
	case native.StatusPending:
		return TaskPending
	case native.StatusRunning:
		return TaskRunning
	case native.StatusSucceeded:
		return TaskSucceeded
	default:
		return TaskFailed
	}
}

func (t TaskStatus) String() string {
	switch t {
	case TaskPending:
		return "Pending"
	case TaskRunning:
		return "Running"
	case TaskSucceeded:
		return "Succeeded"
	default:
		return "Failed"
	}
}

// MarshalText renders the status by name.
func (t TaskStatus) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Done reports whether the status is terminal.
func (t TaskStatus) Done() bool {
	return t == TaskSucceeded || t == TaskFailed
}

// TaskConfig is one entry of a batch start.
type TaskConfig struct {
	Entry            string `json:"entry" yaml:"entry"`
	PipelineOverride string `json:"pipeline_override" yaml:"pipeline_override"`
}

// ensureTasker creates and binds the tasker on first use. The caller holds
// the runtime lock and has checked that resource and controller exist.
func (s *Service) ensureTasker(rt *instance.Runtime, log *logging.Logger) error {
	if rt.Tasker() != 0 {
		return nil
	}

	tasker, err := s.engine.CreateTasker()
	if err != nil {
		return err
	}
	if tasker == 0 {
		return errors.NewBridgeError("failed to create tasker", errors.ErrHandleCreation).
			WithInstanceID(rt.ID()).
			WithCall("MaaTaskerCreate")
	}

	fail := func(err error) error {
		if derr := s.engine.DestroyTasker(tasker); derr != nil {
			log.Warn("tasker destroy failed", "error", derr)
		}
		return err
	}

	if err := s.engine.TaskerAddSink(tasker, rt.Token()); err != nil {
		return fail(err)
	}
	if ok, err := s.engine.TaskerBindResource(tasker, rt.Resource()); err != nil {
		return fail(err)
	} else if !ok {
		return fail(errors.NewBridgeError("failed to bind resource", errors.ErrNativeCall).
			WithInstanceID(rt.ID()).
			WithCall("MaaTaskerBindResource"))
	}
	if ok, err := s.engine.TaskerBindController(tasker, rt.Controller()); err != nil {
		return fail(err)
	} else if !ok {
		return fail(errors.NewBridgeError("failed to bind controller", errors.ErrNativeCall).
			WithInstanceID(rt.ID()).
			WithCall("MaaTaskerBindController"))
	}

	rt.SetTasker(tasker)
	log.Debug("tasker created")
	return nil
}

func (s *Service) requireBindings(rt *instance.Runtime) error {
	if err := precondition(rt.Resource() != 0, rt.ID(), "resource not loaded"); err != nil {
		return err
	}
	return precondition(rt.Controller() != 0, rt.ID(), "controller not connected")
}

func (s *Service) requireInited(rt *instance.Runtime) error {
	inited, err := s.engine.TaskerInited(rt.Tasker())
	if err != nil {
		return err
	}
	if !inited {
		return errors.NewBridgeError("tasker not properly initialized", errors.ErrSchedulerNotInitialized).
			WithInstanceID(rt.ID()).
			WithCall("MaaTaskerInited")
	}
	return nil
}

// RunTask posts a single task and returns its id.
func (s *Service) RunTask(id, entry, override string) (int64, error) {
	log := s.logger.WithInstance(id)
	log.Info("run_task", "entry", entry, "pipeline_override", override)

	var taskID int64
	err := s.registry.With(id, func(rt *instance.Runtime) error {
		if err := s.requireBindings(rt); err != nil {
			return err
		}
		if err := s.ensureTasker(rt, log); err != nil {
			return err
		}
		if err := s.requireInited(rt); err != nil {
			return err
		}

		var err error
		taskID, err = s.engine.TaskerPostTask(rt.Tasker(), entry, override)
		if err != nil {
			return err
		}
		if taskID == native.InvalidID {
			return errors.NewBridgeError("failed to post task", errors.ErrRequestPost).
				WithInstanceID(id).
				WithCall("MaaTaskerPostTask")
		}
		rt.AppendTaskIDs(taskID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info("task posted", "entry", entry, "task_id", taskID)
	return taskID, nil
}

// StartTasks optionally starts an agent, then posts every task in order.
// Tasks the engine refuses are skipped with a warning. An agent failure
// leaves resource and controller in place for a retry. The instance stays
// usable by other callers while the agent connects.
func (s *Service) StartTasks(id string, tasks []TaskConfig, agentCfg *agent.Config, cwd string) ([]int64, error) {
	log := s.logger.WithInstance(id)
	log.Info("start_tasks", "tasks", len(tasks), "agent", agentCfg != nil, "cwd", cwd)

	err := s.registry.With(id, func(rt *instance.Runtime) error {
		if err := s.requireBindings(rt); err != nil {
			return err
		}
		return s.ensureTasker(rt, log)
	})
	if err != nil {
		return nil, err
	}

	if agentCfg != nil {
		if err := s.agents.Start(s.registry, id, *agentCfg, cwd); err != nil {
			return nil, err
		}
	}

	ids := make([]int64, 0, len(tasks))
	err = s.registry.With(id, func(rt *instance.Runtime) error {
		if err := s.requireBindings(rt); err != nil {
			return err
		}
		// The bindings may have been replaced while the agent connected.
		if err := s.ensureTasker(rt, log); err != nil {
			return err
		}
		if err := s.requireInited(rt); err != nil {
			return err
		}

		for _, task := range tasks {
			taskID, err := s.engine.TaskerPostTask(rt.Tasker(), task.Entry, task.PipelineOverride)
			if err != nil {
				return err
			}
			if taskID == native.InvalidID {
				log.Warn("task post failed", "entry", task.Entry)
				continue
			}
			log.Info("task posted", "entry", task.Entry, "task_id", taskID)
			ids = append(ids, taskID)
		}
		rt.AppendTaskIDs(ids...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TaskStatus queries the status of taskID.
func (s *Service) TaskStatus(id string, taskID int64) (TaskStatus, error) {
	var status TaskStatus
	err := s.registry.View(id, func(rt *instance.Runtime) error {
		if err := precondition(rt.Tasker() != 0, id, "tasker not created"); err != nil {
			return err
		}
		code, err := s.engine.TaskerStatus(rt.Tasker(), taskID)
		if err != nil {
			return err
		}
		status = MapStatus(code)
		return nil
	})
	return status, err
}

// Stop forgets the recorded task ids and asks the tasker to stop. It does
// not wait; poll IsRunning to observe the stop.
func (s *Service) Stop(id string) error {
	log := s.logger.WithInstance(id)
	log.Info("stop_task")

	return s.registry.With(id, func(rt *instance.Runtime) error {
		rt.ClearTaskIDs()
		if err := precondition(rt.Tasker() != 0, id, "tasker not created"); err != nil {
			return err
		}
		stopID, err := s.engine.TaskerPostStop(rt.Tasker())
		if err != nil {
			return err
		}
		log.Info("stop posted", "stop_id", stopID)
		return nil
	})
}

// OverridePipeline changes the pipeline of a posted task that has not run
// yet. It returns whether the engine accepted the override.
func (s *Service) OverridePipeline(id string, taskID int64, override string) (bool, error) {
	log := s.logger.WithInstance(id)
	log.Info("override_pipeline", "task_id", taskID, "pipeline_override", override)

	var accepted bool
	err := s.registry.With(id, func(rt *instance.Runtime) error {
		if err := precondition(rt.Tasker() != 0, id, "tasker not created"); err != nil {
			return err
		}
		var err error
		accepted, err = s.engine.TaskerOverridePipeline(rt.Tasker(), taskID, override)
		return err
	})
	log.Info("override_pipeline result", "task_id", taskID, "accepted", accepted)
	return accepted, err
}

// IsRunning reports whether id's tasker is running. Instances without a
// tasker report false.
func (s *Service) IsRunning(id string) (bool, error) {
	var running bool
	err := s.registry.View(id, func(rt *instance.Runtime) error {
		if rt.Tasker() == 0 {
			return nil
		}
		var err error
		running, err = s.engine.TaskerRunning(rt.Tasker())
		return err
	})
	return running, err
}

// WaitTask polls the status of taskID every interval until it is terminal
// or ctx is done. Command handlers never call it.
func (s *Service) WaitTask(ctx context.Context, id string, taskID int64, interval time.Duration) (TaskStatus, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := s.TaskStatus(id, taskID)
		if err != nil {
			return status, err
		}
		if status.Done() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
