package instance

import (
	"slices"
	"sync"

	"github.com/Iron-Ham/maabridge/internal/logging"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// Process is an external agent process owned by a runtime.
type Process interface {
	PID() int
	// Stop terminates the process and reaps it. It must be idempotent.
	Stop() error
}

// Runtime holds the native handles and agent state of one instance.
//
// All fields except the connection tracker are guarded by the runtime
// mutex, which Registry.With acquires before invoking its callback. Methods
// on Runtime assume the caller holds it.
type Runtime struct {
	id    string
	token uintptr

	mu        sync.Mutex
	poisoned  bool
	destroyed bool

	resource     native.Resource
	controller   native.Controller
	tasker       native.Tasker
	agentClient  native.AgentClient
	agentProcess Process
	taskIDs      []int64

	// pendingAgent is a client whose connect is in progress without the
	// runtime lock. The connecting caller owns it until FinishAgentConnect.
	pendingAgent native.AgentClient
	agentGen     uint64

	conn *ConnTracker
}

func newRuntime(id string, token uintptr) *Runtime {
	return &Runtime{
		id:    id,
		token: token,
		conn:  &ConnTracker{},
	}
}

// ID returns the instance id.
func (rt *Runtime) ID() string { return rt.id }

// Token is the value registered as the transparent argument of every sink
// this runtime adds. It maps engine events back to the instance.
func (rt *Runtime) Token() uintptr { return rt.token }

// Connection returns the connection tracker. It may be used without holding
// the runtime mutex.
func (rt *Runtime) Connection() *ConnTracker { return rt.conn }

func (rt *Runtime) Resource() native.Resource           { return rt.resource }
func (rt *Runtime) SetResource(r native.Resource)       { rt.resource = r }
func (rt *Runtime) Controller() native.Controller       { return rt.controller }
func (rt *Runtime) SetController(c native.Controller)   { rt.controller = c }
func (rt *Runtime) Tasker() native.Tasker               { return rt.tasker }
func (rt *Runtime) SetTasker(t native.Tasker)           { rt.tasker = t }
func (rt *Runtime) AgentClient() native.AgentClient     { return rt.agentClient }
func (rt *Runtime) SetAgentClient(a native.AgentClient) { rt.agentClient = a }
func (rt *Runtime) AgentProcess() Process               { return rt.agentProcess }
func (rt *Runtime) SetAgentProcess(p Process)           { rt.agentProcess = p }

// BeginAgentConnect parks client as the pending agent client and returns the
// generation FinishAgentConnect must be called with.
func (rt *Runtime) BeginAgentConnect(client native.AgentClient) uint64 {
	rt.agentGen++
	rt.pendingAgent = client
	return rt.agentGen
}

// FinishAgentConnect clears the pending client of generation gen and, when
// attach is set, makes it the agent client. It reports false when the agent
// was released or replaced since BeginAgentConnect; the caller then still
// owns the client.
func (rt *Runtime) FinishAgentConnect(gen uint64, attach bool) bool {
	if gen != rt.agentGen || rt.pendingAgent == 0 {
		return false
	}
	if attach {
		rt.agentClient = rt.pendingAgent
	}
	rt.pendingAgent = 0
	return true
}

// AgentConnecting reports whether an agent connect is in progress.
func (rt *Runtime) AgentConnecting() bool { return rt.pendingAgent != 0 }

// TaskIDs returns a copy of the ids posted since the last stop.
func (rt *Runtime) TaskIDs() []int64 {
	return slices.Clone(rt.taskIDs)
}

// AppendTaskIDs records newly posted task ids.
func (rt *Runtime) AppendTaskIDs(ids ...int64) {
	rt.taskIDs = append(rt.taskIDs, ids...)
}

// ClearTaskIDs forgets all recorded task ids.
func (rt *Runtime) ClearTaskIDs() {
	rt.taskIDs = nil
}

// ReleaseAgent disconnects and destroys the agent client, then stops the
// agent process. A pending connect is abandoned; its caller destroys the
// client once the connect returns. Failures are logged.
func (rt *Runtime) ReleaseAgent(engine native.Engine, logger *logging.Logger) {
	if rt.pendingAgent != 0 {
		logger.Info("abandoning pending agent connect")
		rt.pendingAgent = 0
		rt.agentGen++
	}
	if rt.agentClient != 0 {
		if _, err := engine.AgentClientDisconnect(rt.agentClient); err != nil {
			logger.Warn("agent client disconnect failed", "error", err)
		}
		if err := engine.DestroyAgentClient(rt.agentClient); err != nil {
			logger.Warn("agent client destroy failed", "error", err)
		}
		rt.agentClient = 0
	}
	if rt.agentProcess != nil {
		pid := rt.agentProcess.PID()
		if err := rt.agentProcess.Stop(); err != nil {
			logger.Warn("agent process stop failed", "pid", pid, "error", err)
		} else {
			logger.Info("agent process stopped", "pid", pid)
		}
		rt.agentProcess = nil
	}
}

// ReleaseTasker destroys the tasker, if any.
func (rt *Runtime) ReleaseTasker(engine native.Engine, logger *logging.Logger) {
	if rt.tasker == 0 {
		return
	}
	if err := engine.DestroyTasker(rt.tasker); err != nil {
		logger.Warn("tasker destroy failed", "error", err)
	}
	rt.tasker = 0
}

// ReleaseController destroys the controller, if any, and resets the
// connection tracker.
func (rt *Runtime) ReleaseController(engine native.Engine, logger *logging.Logger) {
	if rt.controller == 0 {
		return
	}
	if err := engine.DestroyController(rt.controller); err != nil {
		logger.Warn("controller destroy failed", "error", err)
	}
	rt.controller = 0
	rt.conn.Reset()
}

// ReleaseResource destroys the resource, if any.
func (rt *Runtime) ReleaseResource(engine native.Engine, logger *logging.Logger) {
	if rt.resource == 0 {
		return
	}
	if err := engine.DestroyResource(rt.resource); err != nil {
		logger.Warn("resource destroy failed", "error", err)
	}
	rt.resource = 0
}

// Teardown releases everything the runtime owns in dependency order:
// agent client, agent process, tasker, controller, resource.
func (rt *Runtime) Teardown(engine native.Engine, logger *logging.Logger) {
	rt.ReleaseAgent(engine, logger)
	rt.ReleaseTasker(engine, logger)
	rt.ReleaseController(engine, logger)
	rt.ReleaseResource(engine, logger)
	rt.taskIDs = nil
}
