package btctl

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommander is the test seam for the daemon: canned (optionally queued)
// outputs per command, recorded calls, and a counted kill function.
type fakeCommander struct {
	mu        sync.Mutex
	calls     [][]string
	responses map[string][]string // queued outputs keyed by joined args
	errs      map[string]error
	startErr  error
	kills     int
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
	}
}

func (f *fakeCommander) respond(key string, outputs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = append(f.responses[key], outputs...)
}

func (f *fakeCommander) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

func (f *fakeCommander) Run(_ context.Context, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, args)
	key := strings.Join(args, " ")
	if err, ok := f.errs[key]; ok && err != nil {
		return "", err
	}
	queue := f.responses[key]
	if len(queue) == 0 {
		return "", nil
	}
	out := queue[0]
	if len(queue) > 1 {
		f.responses[key] = queue[1:]
	}
	return out, nil
}

func (f *fakeCommander) Start(_ context.Context, args ...string) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}
	f.calls = append(f.calls, append([]string{"start:"}, args...))
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.kills++
		return nil
	}, nil
}

func (f *fakeCommander) countCalls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.Join(call, " ") == key {
			n++
		}
	}
	return n
}

func testClient(t *testing.T) (*Client, *fakeCommander) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	fake := newFakeCommander()
	return NewClient(fake, logger), fake
}

func TestClient_Powered(t *testing.T) {
	// GOAL: Verify Powered issues the status query and parses the indicator
	//
	// TEST SCENARIO: show returns powered/unpowered dumps → true/false

	client, fake := testClient(t)
	fake.respond("show", "\tPowered: yes\n", "\tPowered: no\n")

	powered, err := client.Powered(context.Background())
	require.NoError(t, err, "status query MUST succeed")
	assert.True(t, powered, "powered dump MUST parse as powered")

	powered, err = client.Powered(context.Background())
	require.NoError(t, err, "status query MUST succeed")
	assert.False(t, powered, "unpowered dump MUST parse as unpowered")

	assert.Equal(t, 2, fake.countCalls("show"), "each Powered call MUST issue one status query")
}

func TestClient_DeviceOperations(t *testing.T) {
	// GOAL: Verify the per-device operations issue the expected daemon commands
	//
	// TEST SCENARIO: Pair/Trust/Connect/Remove → one command each with the address argument

	client, fake := testClient(t)
	addr := "AA:BB:CC:DD:EE:02"

	require.NoError(t, client.Pair(context.Background(), addr))
	require.NoError(t, client.Trust(context.Background(), addr))
	require.NoError(t, client.Connect(context.Background(), addr))
	require.NoError(t, client.Remove(context.Background(), addr))

	for _, key := range []string{"pair", "trust", "connect", "remove"} {
		assert.Equal(t, 1, fake.countCalls(key+" "+addr), "%s MUST be issued once with the address", key)
	}
}

func TestClient_Devices(t *testing.T) {
	// GOAL: Verify Devices returns the parsed listing
	//
	// TEST SCENARIO: Listing with one malformed line → only valid records returned

	client, fake := testClient(t)
	fake.respond("devices", "Device AA:BB:CC:DD:EE:01 AirPods Pro\nnoise\n")

	devices, err := client.Devices(context.Background())
	require.NoError(t, err, "listing MUST succeed")
	require.Len(t, devices, 1, "malformed lines MUST be skipped")
	assert.Equal(t, "AirPods Pro", devices[0].Name)
}

func TestClient_ServicesResolved(t *testing.T) {
	// GOAL: Verify ServicesResolved queries the info dump for the indicator
	//
	// TEST SCENARIO: info returns resolved dump → true

	client, fake := testClient(t)
	addr := "AA:BB:CC:DD:EE:01"
	fake.respond("info "+addr, "\tServicesResolved: yes\n")

	resolved, err := client.ServicesResolved(context.Background(), addr)
	require.NoError(t, err, "info query MUST succeed")
	assert.True(t, resolved, "resolved indicator MUST be detected")
}

func TestClient_StartDiscovery_StopIsIdempotent(t *testing.T) {
	// GOAL: Verify the discovery stop handle can be called defensively more than once
	//
	// TEST SCENARIO: StartDiscovery, stop twice → scan off issued once, task killed once

	client, fake := testClient(t)

	stop, err := client.StartDiscovery(context.Background())
	require.NoError(t, err, "StartDiscovery MUST succeed")

	stop()
	stop()

	assert.Equal(t, 1, fake.countCalls("scan off"), "scan off MUST be issued exactly once")
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.kills, "the background task MUST be killed exactly once")
}

func TestClient_StartDiscovery_StopSurvivesScanOffFailure(t *testing.T) {
	// GOAL: Verify a failing scan off is logged, not escalated, and the task is still killed
	//
	// TEST SCENARIO: scan off errors → stop completes, kill still happens

	client, fake := testClient(t)
	fake.fail("scan off", assert.AnError)

	stop, err := client.StartDiscovery(context.Background())
	require.NoError(t, err, "StartDiscovery MUST succeed")

	assert.NotPanics(t, stop, "stop MUST absorb a scan-off failure")
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.kills, "the lingering task MUST still be killed")
}
