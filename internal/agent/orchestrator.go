package agent

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/event"
	"github.com/Iron-Ham/maabridge/internal/instance"
	"github.com/Iron-Ham/maabridge/internal/logging"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// Orchestrator starts and stops agents for instance runtimes.
type Orchestrator struct {
	engine    native.Engine
	logFile   *LogFile
	relay     *event.Relay
	logger    *logging.Logger
	killGrace time.Duration
}

// Options configures an Orchestrator.
type Options struct {
	// LogFile receives every agent output line. May be nil.
	LogFile *LogFile
	// Relay receives AgentOutputEvents. May be nil.
	Relay *event.Relay
	// KillGrace is how long Stop lets a disconnected agent exit on its own.
	KillGrace time.Duration
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(engine native.Engine, opts Options, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Orchestrator{
		engine:    engine,
		logFile:   opts.LogFile,
		relay:     opts.Relay,
		logger:    logger.WithComponent("agent"),
		killGrace: opts.KillGrace,
	}
}

// pendingStart is an agent whose process runs but whose client has not
// connected yet.
type pendingStart struct {
	client    native.AgentClient
	gen       uint64
	proc      *Process
	execPath  string
	connected bool
	attached  bool
}

// Start launches an agent for instance id and waits for it to connect.
//
// The runtime lock is taken to set up the client and process, released for
// the connect wait, then taken again to attach the client. Other operations
// on the instance, stop and destroy included, proceed while the agent
// connects; if the agent is stopped or replaced meanwhile, Start fails with
// ErrAgentConnect.
//
// On spawn failure the client is destroyed and the runtime is left as it
// was. On connect failure the client is destroyed but the process stays on
// the runtime so a later stop or destroy reaps it.
func (o *Orchestrator) Start(reg *instance.Registry, id string, cfg Config, cwd string) error {
	log := o.logger.WithInstance(id)

	var p *pendingStart
	err := reg.With(id, func(rt *instance.Runtime) error {
		var err error
		p, err = o.launch(rt, cfg, cwd, log)
		return err
	})
	if err != nil {
		return err
	}
	defer o.settle(p, log)

	connected, err := o.engine.AgentClientConnect(p.client)
	p.connected = connected
	if err == nil && !connected {
		log.Error("agent connect failed", "pid", p.proc.PID())
		err = errors.NewAgentError("failed to connect to agent", errors.ErrAgentConnect).
			WithInstanceID(id).
			WithExecutable(p.execPath).
			WithPID(p.proc.PID())
	}

	return reg.With(id, func(rt *instance.Runtime) error {
		if !rt.FinishAgentConnect(p.gen, err == nil) {
			log.Warn("agent released before it connected", "pid", p.proc.PID())
			return errors.NewAgentError("agent stopped before it connected", errors.ErrAgentConnect).
				WithInstanceID(id).
				WithExecutable(p.execPath).
				WithPID(p.proc.PID())
		}
		if err != nil {
			p.proc.setState(StateFailed)
			return err
		}
		p.attached = true
		p.proc.setState(StateConnected)
		log.Info("agent state", "state", StateConnected.String(), "pid", p.proc.PID())
		return nil
	})
}

// launch creates and binds the client, spawns the process and parks the
// client on rt as a pending connect. The caller holds the runtime lock.
func (o *Orchestrator) launch(rt *instance.Runtime, cfg Config, cwd string, log *logging.Logger) (*pendingStart, error) {
	if rt.Resource() == 0 {
		return nil, errors.NewBridgeError("resource not loaded", errors.ErrPrecondition).WithInstanceID(rt.ID())
	}

	// A new run replaces any previous agent.
	rt.ReleaseAgent(o.engine, log)

	client, err := o.engine.CreateAgentClient(cfg.Identifier)
	if err != nil {
		return nil, err
	}
	if client == 0 {
		return nil, errors.NewBridgeError("failed to create agent client", errors.ErrHandleCreation).
			WithInstanceID(rt.ID()).
			WithCall("MaaAgentClientCreateV2")
	}

	fail := func(err error) (*pendingStart, error) {
		if derr := o.engine.DestroyAgentClient(client); derr != nil {
			log.Warn("agent client destroy failed", "error", derr)
		}
		return nil, err
	}

	if ok, err := o.engine.AgentClientBindResource(client, rt.Resource()); err != nil {
		return fail(err)
	} else if !ok {
		return fail(errors.NewBridgeError("failed to bind agent resource", errors.ErrNativeCall).
			WithInstanceID(rt.ID()).
			WithCall("MaaAgentClientBindResource"))
	}

	identifier, ok, err := o.engine.AgentClientIdentifier(client)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(errors.NewBridgeError("failed to get agent identifier", errors.ErrNativeCall).
			WithInstanceID(rt.ID()).
			WithCall("MaaAgentClientIdentifier"))
	}
	log.Info("agent identifier acquired", "identifier", identifier)

	execPath := ResolveExecutable(cwd, cfg.ChildExec)
	args := cfg.Args(identifier)
	log.Info("agent state", "state", StateSpawning.String(), "exec", execPath, "args", args, "cwd", cwd)

	out := &output{
		instanceID: rt.ID(),
		logFile:    o.logFile,
		logger:     log,
		relay:      o.relay,
	}
	proc, err := spawn(execPath, args, cwd, out, o.killGrace)
	if err != nil {
		log.Error("agent spawn failed", "exec", execPath, "error", err)
		return fail(errors.NewAgentError("cannot launch agent", fmt.Errorf("%w: %w", errors.ErrAgentSpawn, err)).
			WithInstanceID(rt.ID()).
			WithExecutable(execPath))
	}
	rt.SetAgentProcess(proc)

	if _, err := o.engine.AgentClientSetTimeout(client, cfg.Timeout()); err != nil {
		proc.setState(StateFailed)
		return fail(err)
	}
	log.Info("agent state", "state", StateConnecting.String(), "pid", proc.PID(), "timeout_ms", cfg.Timeout())

	return &pendingStart{
		client:   client,
		gen:      rt.BeginAgentConnect(client),
		proc:     proc,
		execPath: execPath,
	}, nil
}

// settle destroys the client of p unless it was attached to the runtime.
func (o *Orchestrator) settle(p *pendingStart, log *logging.Logger) {
	if p.attached {
		return
	}
	if p.connected {
		if _, err := o.engine.AgentClientDisconnect(p.client); err != nil {
			log.Warn("agent client disconnect failed", "error", err)
		}
	}
	if err := o.engine.DestroyAgentClient(p.client); err != nil {
		log.Warn("agent client destroy failed", "error", err)
	}
}

// Stop disconnects and destroys the agent client and kills the agent
// process. It is a no-op when no agent is present. The caller must hold the
// runtime lock.
func (o *Orchestrator) Stop(rt *instance.Runtime) {
	if rt.AgentClient() == 0 && rt.AgentProcess() == nil {
		return
	}
	rt.ReleaseAgent(o.engine, o.logger.WithInstance(rt.ID()))
}

// StateOf reports the agent state recorded on rt.
func StateOf(rt *instance.Runtime) State {
	p, ok := rt.AgentProcess().(*Process)
	if !ok || p == nil {
		return StateNotStarted
	}
	return p.State()
}

// Close releases the shared log file.
func (o *Orchestrator) Close() error {
	if o.logFile == nil {
		return nil
	}
	return o.logFile.Close()
}
