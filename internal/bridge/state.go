package bridge

import (
	"github.com/sourcegraph/conc/iter"

	"github.com/Iron-Ham/maabridge/internal/agent"
	"github.com/Iron-Ham/maabridge/internal/instance"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// InstanceState is a point-in-time view of one instance, queried from the
// engine rather than cached.
type InstanceState struct {
	Connected      bool    `json:"connected" yaml:"connected"`
	ResourceLoaded bool    `json:"resource_loaded" yaml:"resource_loaded"`
	TaskerInited   bool    `json:"tasker_inited" yaml:"tasker_inited"`
	IsRunning      bool    `json:"is_running" yaml:"is_running"`
	TaskIDs        []int64 `json:"task_ids" yaml:"task_ids"`
	// Agent is the state of the instance's agent process.
	Agent agent.State `json:"agent" yaml:"agent"`
}

// AllStates is the snapshot a host uses to restore its view after a
// restart.
type AllStates struct {
	Instances          map[string]InstanceState `json:"instances" yaml:"instances"`
	CachedAdbDevices   []native.AdbDevice       `json:"cached_adb_devices" yaml:"cached_adb_devices"`
	CachedWin32Windows []native.DesktopWindow   `json:"cached_win32_windows" yaml:"cached_win32_windows"`
}

func (s *Service) queryState(rt *instance.Runtime) (InstanceState, error) {
	st := InstanceState{
		TaskIDs: rt.TaskIDs(),
		Agent:   agent.StateOf(rt),
	}
	if st.TaskIDs == nil {
		st.TaskIDs = []int64{}
	}

	var err error
	if c := rt.Controller(); c != 0 {
		if st.Connected, err = s.engine.ControllerConnected(c); err != nil {
			return st, err
		}
	}
	if r := rt.Resource(); r != 0 {
		if st.ResourceLoaded, err = s.engine.ResourceLoaded(r); err != nil {
			return st, err
		}
	}
	if t := rt.Tasker(); t != 0 {
		if st.TaskerInited, err = s.engine.TaskerInited(t); err != nil {
			return st, err
		}
		if st.IsRunning, err = s.engine.TaskerRunning(t); err != nil {
			return st, err
		}
	}
	return st, nil
}

// InstanceState queries the state of id.
func (s *Service) InstanceState(id string) (InstanceState, error) {
	var st InstanceState
	err := s.registry.View(id, func(rt *instance.Runtime) error {
		var err error
		st, err = s.queryState(rt)
		return err
	})
	return st, err
}

// AllStates queries every instance in parallel and includes the discovery
// caches. Without a loaded engine the instance map is empty.
func (s *Service) AllStates() AllStates {
	all := AllStates{
		Instances:          map[string]InstanceState{},
		CachedAdbDevices:   s.CachedAdbDevices(),
		CachedWin32Windows: s.CachedDesktopWindows(),
	}
	if !s.engine.Loaded() {
		return all
	}

	type result struct {
		id    string
		state InstanceState
		ok    bool
	}
	results := iter.Map(s.registry.IDs(), func(id *string) result {
		st, err := s.InstanceState(*id)
		if err != nil {
			s.logger.Debug("state query skipped", "instance_id", *id, "error", err)
			return result{id: *id}
		}
		return result{id: *id, state: st, ok: true}
	})
	for _, r := range results {
		if r.ok {
			all.Instances[r.id] = r.state
		}
	}
	return all
}
