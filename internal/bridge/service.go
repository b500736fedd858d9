package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/maabridge/internal/agent"
	"github.com/Iron-Ham/maabridge/internal/config"
	"github.com/Iron-Ham/maabridge/internal/discovery"
	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/event"
	"github.com/Iron-Ham/maabridge/internal/instance"
	"github.com/Iron-Ham/maabridge/internal/logging"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// DefaultScreenshotShortSide is applied to new controllers when Options
// leaves it unset.
const DefaultScreenshotShortSide = 720

// Loader loads the engine libraries from a directory.
type Loader interface {
	Load(dir string) error
}

// Options configures a Service.
type Options struct {
	// LibraryDir is loaded by Init when it is called without a directory.
	LibraryDir string
	// ResourceDir is the base for relative resource bundle paths.
	ResourceDir string
	// ScreenshotShortSide is the screenshot target short side in pixels.
	ScreenshotShortSide int
	// QueueSize bounds undelivered events.
	QueueSize int
	// AgentLogPath receives agent output. Empty disables the agent log.
	AgentLogPath string
	// KillGrace lets a disconnected agent exit before it is killed.
	KillGrace time.Duration
	// Loader performs Init. Nil makes Init fail.
	Loader Loader
}

// OptionsFromConfig maps the application configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LibraryDir:          cfg.ResolveLibraryDir(),
		ResourceDir:         cfg.Resource.Dir,
		ScreenshotShortSide: cfg.Controller.ScreenshotShortSide,
		QueueSize:           cfg.Events.QueueSize,
		AgentLogPath:        cfg.AgentLogPath(),
		KillGrace:           cfg.Agent.KillGrace(),
	}
}

// Service owns the instance registry, the discovery cache, the agent
// orchestrator and the event pipeline for one loaded engine.
type Service struct {
	engine    native.Engine
	loader    Loader
	registry  *instance.Registry
	discovery *discovery.Cache
	agents    *agent.Orchestrator
	bus       *event.Bus
	relay     *event.Relay
	logger    *logging.Logger

	shortSide  int32
	libraryDir string

	mu          sync.RWMutex
	resourceDir string

	closeOnce sync.Once
}

// New creates a Service over engine and installs its event sink.
func New(engine native.Engine, opts Options, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NopLogger()
	}
	shortSide := opts.ScreenshotShortSide
	if shortSide <= 0 {
		shortSide = DefaultScreenshotShortSide
	}

	bus := event.NewBus(logger)
	relay := event.NewRelay(bus, opts.QueueSize, logger)
	relay.Start()

	var logFile *agent.LogFile
	if opts.AgentLogPath != "" {
		logFile = agent.NewLogFile(opts.AgentLogPath)
	}

	s := &Service{
		engine:    engine,
		loader:    opts.Loader,
		registry:  instance.NewRegistry(engine, relay, logger),
		discovery: discovery.NewCache(engine, logger),
		agents: agent.NewOrchestrator(engine, agent.Options{
			LogFile:   logFile,
			Relay:     relay,
			KillGrace: opts.KillGrace,
		}, logger),
		bus:         bus,
		relay:       relay,
		logger:      logger.WithComponent("bridge"),
		shortSide:   int32(shortSide),
		libraryDir:  opts.LibraryDir,
		resourceDir: opts.ResourceDir,
	}
	engine.SetEventSink(s.onEngineEvent)
	return s
}

// Bus returns the bus host-visible events are published on.
func (s *Service) Bus() *event.Bus { return s.bus }

// Registry returns the instance registry.
func (s *Service) Registry() *instance.Registry { return s.registry }

// DroppedEvents reports how many events were discarded on a full queue.
func (s *Service) DroppedEvents() uint64 { return s.relay.Dropped() }

// Init loads the engine from dir, or from the configured library directory
// when dir is empty, and returns the engine version.
func (s *Service) Init(dir string) (string, error) {
	if dir == "" {
		dir = s.libraryDir
	}
	s.logger.Info("init", "lib_dir", dir)

	if s.loader == nil {
		return "", errors.NewBridgeError("no library loader configured", errors.ErrLibraryNotLoaded)
	}
	if _, err := os.Stat(dir); err != nil {
		return "", errors.NewBridgeError(fmt.Sprintf("MaaFramework library directory not found: %s", dir), errors.ErrLibraryNotLoaded)
	}
	if err := s.loader.Load(dir); err != nil {
		s.logger.Error("library load failed", "lib_dir", dir, "error", err)
		return "", err
	}

	version, err := s.engine.Version()
	if err != nil {
		s.logger.Warn("version query failed", "error", err)
		version = ""
	}
	s.logger.Info("init succeeded", "version", version)
	return version, nil
}

// Version returns the loaded engine version.
func (s *Service) Version() (string, error) {
	return s.engine.Version()
}

// Loaded reports whether the engine library is loaded.
func (s *Service) Loaded() bool {
	return s.engine.Loaded()
}

// LibraryDir is the directory Init loads when called without one.
func (s *Service) LibraryDir() string { return s.libraryDir }

// SetResourceDir sets the base directory for relative bundle paths.
func (s *Service) SetResourceDir(dir string) {
	s.mu.Lock()
	s.resourceDir = dir
	s.mu.Unlock()
	s.logger.Info("resource dir set", "resource_dir", dir)
}

// ResourceDir returns the base directory for relative bundle paths.
func (s *Service) ResourceDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resourceDir
}

func (s *Service) resolveBundle(path string) string {
	base := s.ResourceDir()
	if base == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// CreateInstance registers id. Creating an existing id succeeds without
// touching it.
func (s *Service) CreateInstance(id string) error {
	_, err := s.registry.Create(id)
	return err
}

// DestroyInstance releases everything id owns. Unknown ids succeed.
func (s *Service) DestroyInstance(id string) error {
	return s.registry.Destroy(id)
}

// Close destroys every instance and stops event delivery.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.registry.Close()
		s.relay.Close()
		err = s.agents.Close()
		if dropped := s.relay.Dropped(); dropped > 0 {
			s.logger.Warn("events dropped during session", "dropped", dropped)
		}
	})
	return err
}

// precondition returns an ErrPrecondition error unless ok.
func precondition(ok bool, id, what string) error {
	if ok {
		return nil
	}
	return errors.NewBridgeError(what, errors.ErrPrecondition).WithInstanceID(id)
}
