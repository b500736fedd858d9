//go:build !windows

package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/maabridge/internal/agent"
	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/native/nativetest"
)

func sleepingAgent() *agent.Config {
	return &agent.Config{ChildExec: "/bin/sh", ChildArgs: []string{"-c", "exec sleep 1000"}}
}

// startWithPendingAgent runs StartTasks in the background until it blocks
// in the agent connect.
func startWithPendingAgent(t *testing.T, svc *Service, eng *nativetest.Engine, id string) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, err := svc.StartTasks(id, []TaskConfig{{Entry: "main"}}, sleepingAgent(), t.TempDir())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return eng.CountCalls("AgentClientConnect") == 1
	}, 5*time.Second, 10*time.Millisecond)
	return done
}

func returnsWithin(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s still blocked while the agent connects", what)
	}
}

func TestService_InstanceUsableWhileAgentConnects(t *testing.T) {
	svc, eng := newTestService(t)
	ready(t, svc, "x")
	gate := make(chan struct{})
	eng.AgentConnectGate = gate
	var once bool
	release := func() {
		if !once {
			once = true
			close(gate)
		}
	}
	defer release()

	done := startWithPendingAgent(t, svc, eng, "x")

	returnsWithin(t, "is_running", func() {
		running, err := svc.IsRunning("x")
		assert.NoError(t, err)
		assert.False(t, running)
	})
	returnsWithin(t, "get_instance_state", func() {
		st, err := svc.InstanceState("x")
		assert.NoError(t, err)
		assert.Equal(t, agent.StateConnecting, st.Agent)
	})
	returnsWithin(t, "get_all_states", func() {
		all := svc.AllStates()
		assert.Contains(t, all.Instances, "x")
	})
	returnsWithin(t, "stop_agent", func() {
		assert.NoError(t, svc.StopAgent("x"))
	})

	st, err := svc.InstanceState("x")
	require.NoError(t, err)
	assert.Equal(t, agent.StateNotStarted, st.Agent, "stopped agent is detached")

	release()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrAgentConnect)
	case <-time.After(5 * time.Second):
		t.Fatal("start_tasks did not return")
	}
	assert.Equal(t, 0, eng.Live(nativetest.KindAgentClient))

	ids, err := svc.StartTasks("x", []TaskConfig{{Entry: "main"}}, nil, "")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestService_DestroyWhileAgentConnects(t *testing.T) {
	svc, eng := newTestService(t)
	ready(t, svc, "x")
	gate := make(chan struct{})
	eng.AgentConnectGate = gate

	done := startWithPendingAgent(t, svc, eng, "x")

	returnsWithin(t, "destroy_instance", func() {
		assert.NoError(t, svc.DestroyInstance("x"))
	})

	close(gate)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrInstanceNotFound)
	case <-time.After(5 * time.Second):
		t.Fatal("start_tasks did not return")
	}
	assert.Equal(t, 0, eng.Live(nativetest.KindAgentClient))
	assert.Equal(t, 0, eng.Live(nativetest.KindTasker))
}
