package host

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/maabridge/internal/agent"
	"github.com/Iron-Ham/maabridge/internal/bridge"
	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/logging"
)

type handlerFunc func(args json.RawMessage) (any, error)

// Dispatcher routes requests to the bridge service.
type Dispatcher struct {
	svc      *bridge.Service
	logger   *logging.Logger
	handlers map[string]handlerFunc
}

type instanceArgs struct {
	InstanceID string `json:"instance_id"`
}

type initArgs struct {
	LibDir string `json:"lib_dir"`
}

type resourceDirArgs struct {
	ResourceDir string `json:"resource_dir"`
}

type findWindowsArgs struct {
	ClassRegex  string `json:"class_regex"`
	WindowRegex string `json:"window_regex"`
}

type connectArgs struct {
	InstanceID string                  `json:"instance_id"`
	Config     bridge.ControllerConfig `json:"config"`
	AgentPath  string                  `json:"agent_path"`
}

type loadResourceArgs struct {
	InstanceID string   `json:"instance_id"`
	Paths      []string `json:"paths"`
}

type runTaskArgs struct {
	InstanceID       string `json:"instance_id"`
	Entry            string `json:"entry"`
	PipelineOverride string `json:"pipeline_override"`
}

type taskArgs struct {
	InstanceID string `json:"instance_id"`
	TaskID     int64  `json:"task_id"`
}

type overrideArgs struct {
	InstanceID       string `json:"instance_id"`
	TaskID           int64  `json:"task_id"`
	PipelineOverride string `json:"pipeline_override"`
}

type startTasksArgs struct {
	InstanceID  string              `json:"instance_id"`
	Tasks       []bridge.TaskConfig `json:"tasks"`
	AgentConfig *agent.Config       `json:"agent_config"`
	Cwd         string              `json:"cwd"`
}

// decode unmarshals args into T. Missing args decode as the zero value.
func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, errors.NewValidationError("invalid arguments").WithField("args").WithCause(err)
	}
	return v, nil
}

// withInstance adapts an instance-scoped command.
func withInstance(fn func(id string) (any, error)) handlerFunc {
	return func(raw json.RawMessage) (any, error) {
		args, err := decode[instanceArgs](raw)
		if err != nil {
			return nil, err
		}
		return fn(args.InstanceID)
	}
}

// typed adapts a command taking an argument struct.
func typed[T any](fn func(T) (any, error)) handlerFunc {
	return func(raw json.RawMessage) (any, error) {
		args, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		return fn(args)
	}
}

// NewDispatcher creates a Dispatcher over svc.
func NewDispatcher(svc *bridge.Service, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	d := &Dispatcher{svc: svc, logger: logger.WithComponent("host")}
	d.handlers = map[string]handlerFunc{
		"init": typed(func(a initArgs) (any, error) {
			return svc.Init(a.LibDir)
		}),
		"set_resource_dir": typed(func(a resourceDirArgs) (any, error) {
			svc.SetResourceDir(a.ResourceDir)
			return nil, nil
		}),
		"get_version": func(json.RawMessage) (any, error) {
			return svc.Version()
		},
		"find_adb_devices": func(json.RawMessage) (any, error) {
			return svc.FindAdbDevices()
		},
		"find_win32_windows": typed(func(a findWindowsArgs) (any, error) {
			return svc.FindDesktopWindows(a.ClassRegex, a.WindowRegex)
		}),
		"create_instance": withInstance(func(id string) (any, error) {
			return nil, svc.CreateInstance(id)
		}),
		"destroy_instance": withInstance(func(id string) (any, error) {
			return nil, svc.DestroyInstance(id)
		}),
		"connect_controller": typed(func(a connectArgs) (any, error) {
			return svc.ConnectController(a.InstanceID, a.Config, a.AgentPath)
		}),
		"get_connection_status": withInstance(func(id string) (any, error) {
			return svc.ConnectionStatus(id)
		}),
		"load_resource": typed(func(a loadResourceArgs) (any, error) {
			return svc.LoadResource(a.InstanceID, a.Paths)
		}),
		"is_resource_loaded": withInstance(func(id string) (any, error) {
			return svc.IsResourceLoaded(id)
		}),
		"destroy_resource": withInstance(func(id string) (any, error) {
			return nil, svc.DestroyResource(id)
		}),
		"run_task": typed(func(a runTaskArgs) (any, error) {
			return svc.RunTask(a.InstanceID, a.Entry, a.PipelineOverride)
		}),
		"get_task_status": typed(func(a taskArgs) (any, error) {
			return svc.TaskStatus(a.InstanceID, a.TaskID)
		}),
		"stop_task": withInstance(func(id string) (any, error) {
			return nil, svc.Stop(id)
		}),
		"override_pipeline": typed(func(a overrideArgs) (any, error) {
			return svc.OverridePipeline(a.InstanceID, a.TaskID, a.PipelineOverride)
		}),
		"is_running": withInstance(func(id string) (any, error) {
			return svc.IsRunning(id)
		}),
		"post_screencap": withInstance(func(id string) (any, error) {
			return svc.PostScreencap(id)
		}),
		"get_cached_image": withInstance(func(id string) (any, error) {
			return svc.CachedImage(id)
		}),
		"start_tasks": typed(func(a startTasksArgs) (any, error) {
			return svc.StartTasks(a.InstanceID, a.Tasks, a.AgentConfig, a.Cwd)
		}),
		"stop_agent": withInstance(func(id string) (any, error) {
			return nil, svc.StopAgent(id)
		}),
		"get_instance_state": withInstance(func(id string) (any, error) {
			return svc.InstanceState(id)
		}),
		"get_all_states": func(json.RawMessage) (any, error) {
			return svc.AllStates(), nil
		},
		"get_cached_adb_devices": func(json.RawMessage) (any, error) {
			return svc.CachedAdbDevices(), nil
		},
		"get_cached_win32_windows": func(json.RawMessage) (any, error) {
			return svc.CachedDesktopWindows(), nil
		},
	}
	return d
}

// Commands returns the supported command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle runs one request. It never panics; a panicking handler yields an
// error response.
func (d *Dispatcher) Handle(req Request) Response {
	resp := Response{ID: req.ID}

	handler, ok := d.handlers[req.Cmd]
	if !ok {
		resp.Error = fmt.Sprintf("unknown command '%s'", req.Cmd)
		return resp
	}

	var (
		result any
		err    error
		pc     panics.Catcher
	)
	pc.Try(func() { result, err = handler(req.Args) })
	if r := pc.Recovered(); r != nil {
		d.logger.Error("command panicked", "cmd", req.Cmd, "panic", r.Value, "stack", string(r.Stack))
		err = fmt.Errorf("internal error in %s: %v", req.Cmd, r.Value)
	}

	if err != nil {
		switch sev := errors.GetSeverity(err); {
		case sev >= errors.SeverityError:
			d.logger.Error("command failed", "cmd", req.Cmd, "severity", sev.String(), "error", err)
		case errors.IsUserFacing(err):
			d.logger.Info("command rejected", "cmd", req.Cmd, "error", err)
		default:
			d.logger.Warn("command failed", "cmd", req.Cmd, "severity", sev.String(), "error", err)
		}
		resp.Error = errors.Describe(err)
		return resp
	}
	resp.OK = true
	resp.Result = result
	return resp
}
