package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/avsync/av/receiver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const opusSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 5004 RTP/AVP 111 101\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n"

func TestLoadScenarioDefaults(t *testing.T) {
	s, err := LoadScenario([]byte("packets: 10\n"), true)
	require.NoError(t, err)
	assert.Equal(t, 20, s.FrameMs)
	assert.Equal(t, 10, s.Packets)
	assert.Equal(t, uint8(0), s.PayloadType)
	assert.Empty(t, s.SDP)
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"frame not multiple of tick", "frame_ms: 25\n"},
		{"zero packets", "packets: 0\n"},
		{"negative ticks", "ticks: -1\n"},
		{"drop outside stream", "packets: 5\ndrop: [5]\n"},
		{"dtmf outside stream", "packets: 5\ndtmf: [-1]\n"},
		{"inverted delay window", "packets: 5\ndelays: [{from: 3, to: 2, delay_ms: 10}]\n"},
		{"negative delay", "packets: 5\ndelays: [{from: 1, to: 2, delay_ms: -10}]\n"},
		{"unknown key", "packets: 5\nloss_rate: 0.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadScenario([]byte(tt.body), true)
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestScenarioDelayFor(t *testing.T) {
	s := &Scenario{Delays: []DelayWindow{{From: 2, To: 4, DelayMs: 60}}}
	assert.Equal(t, 0, s.delayFor(1))
	assert.Equal(t, 60, s.delayFor(2))
	assert.Equal(t, 60, s.delayFor(4))
	assert.Equal(t, 0, s.delayFor(5))
}

func testConfig(delayMs int) receiver.Config {
	cfg := receiver.DefaultConfig()
	cfg.InitialDelayMs = delayMs
	return cfg
}

func TestSimulateLostPackets(t *testing.T) {
	s := &Scenario{
		FrameMs: 20,
		Packets: 50,
		Ticks:   100,
		Drop:    []int{20, 21, 22, 23, 24, 25, 26, 27, 28, 29},
	}
	require.NoError(t, s.Validate())

	report, err := simulate(s, testConfig(100))
	require.NoError(t, err)

	assert.Equal(t, 50, report.PacketsSent)
	assert.Equal(t, 10, report.PacketsDropped)
	assert.Equal(t, 0, report.PacketsRejected)
	assert.Equal(t, 100, report.FirstPlayoutMs)
	assert.Equal(t, uint64(40), report.Receiver.PacketsInserted)
	assert.Equal(t, uint64(0), report.Receiver.MissingSyncPackets)
	// two runs while the outage lasts: 4 after the last audio packet, 5 after that
	assert.Equal(t, uint64(9), report.Receiver.LateSyncPackets)
	assert.Equal(t, uint64(0), report.Receiver.SyncInsertFailures)
	assert.Equal(t, uint64(5), report.Receiver.SilentFrames)
}

func TestSimulateDelayedPackets(t *testing.T) {
	s := &Scenario{
		FrameMs: 20,
		Packets: 30,
		Ticks:   60,
		Delays:  []DelayWindow{{From: 10, To: 12, DelayMs: 200}},
	}
	require.NoError(t, s.Validate())

	report, err := simulate(s, testConfig(100))
	require.NoError(t, err)

	assert.Equal(t, 0, report.PacketsDropped)
	assert.Equal(t, 3, report.PacketsRejected, "arrive after their slot was played")
	assert.Equal(t, uint64(1), report.Receiver.MissingSyncPackets)
	assert.Equal(t, uint64(0), report.Receiver.LateSyncPackets)
	assert.Equal(t, uint64(3), report.Receiver.PacketsDiscarded)
}

func TestSimulateWithoutInitialDelay(t *testing.T) {
	s := &Scenario{
		FrameMs: 20,
		Packets: 20,
		Drop:    []int{5, 6, 7, 8, 9, 10, 11},
	}
	require.NoError(t, s.Validate())

	report, err := simulate(s, testConfig(0))
	require.NoError(t, err)

	assert.Equal(t, 0, report.FirstPlayoutMs)
	assert.Equal(t, uint64(0), report.Receiver.MissingSyncPackets)
	assert.Equal(t, uint64(0), report.Receiver.LateSyncPackets)
	assert.Equal(t, uint64(0), report.Receiver.SilentFrames)
	assert.Equal(t, uint64(13), report.Receiver.PacketsInserted)
}

func TestSimulateFromSDP(t *testing.T) {
	s := &Scenario{
		SDP:         opusSDP,
		PayloadType: 111,
		FrameMs:     20,
		Packets:     20,
		DTMF:        []int{3},
	}
	require.NoError(t, s.Validate())

	report, err := simulate(s, testConfig(60))
	require.NoError(t, err)
	assert.Equal(t, 0, report.PacketsRejected)
	assert.Equal(t, uint64(20), report.Receiver.PacketsInserted)
	assert.Equal(t, uint64(0), report.Receiver.MissingSyncPackets)
}

func TestSimulateErrors(t *testing.T) {
	tests := []struct {
		name     string
		scenario *Scenario
	}{
		{"comfort noise is not audio", &Scenario{PayloadType: 13, FrameMs: 20, Packets: 1}},
		{"unregistered payload type", &Scenario{PayloadType: 96, FrameMs: 20, Packets: 1}},
		{"dtmf without telephone-event", &Scenario{FrameMs: 20, Packets: 5, DTMF: []int{1}}},
		{"broken sdp", &Scenario{SDP: "garbage", FrameMs: 20, Packets: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := simulate(tt.scenario, testConfig(0))
			assert.Error(t, err)
			assert.Nil(t, report)
		})
	}
}

func TestRunSimulationCommand(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte("packets: 30\ndrop: [10, 11, 12, 13]\n"), 0o600))

	configPath := filepath.Join(dir, "receiver.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("initial_delay_ms: 40\nlate_packet_threshold: 3\n"), 0o600))

	var out bytes.Buffer
	app := &cli.App{
		Flags:  flags,
		Action: runSimulation,
		Writer: &out,
	}

	err := app.Run([]string{"avsync-sim",
		"--scenario", scenarioPath,
		"--config", configPath,
		"--initial-delay", "100",
		"--log-level", "error",
	})
	require.NoError(t, err)

	var report Report
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 100, report.InitialDelayMs, "flag overrides config")
	assert.Equal(t, 30, report.PacketsSent)
	assert.Equal(t, 4, report.PacketsDropped)
	assert.NotEmpty(t, report.StreamID)
}

func TestRunSimulationCommandErrors(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte("packets: 10\n"), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{"missing scenario file", []string{"--scenario", filepath.Join(dir, "nope.yaml")}},
		{"bad log level", []string{"--scenario", scenarioPath, "--log-level", "loud"}},
		{"delay out of range", []string{"--scenario", scenarioPath, "--initial-delay", "20000"}},
		{"bad config body", []string{"--scenario", scenarioPath, "--config-body", "late_packet_threshold: 0\n"}},
		{"missing config file", []string{"--scenario", scenarioPath, "--config", filepath.Join(dir, "nope.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &cli.App{
				Flags:  flags,
				Action: runSimulation,
				Writer: &bytes.Buffer{},
			}
			err := app.Run(append([]string{"avsync-sim"}, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestSampleScenario(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "outage.yaml"))
	require.NoError(t, err)
	s, err := LoadScenario(body, true)
	require.NoError(t, err)

	confBody, err := os.ReadFile(filepath.Join("testdata", "receiver.yaml"))
	require.NoError(t, err)
	cfg, err := receiver.LoadConfig(string(confBody), true)
	require.NoError(t, err)

	report, err := simulate(s, *cfg)
	require.NoError(t, err)

	assert.Equal(t, 150, report.PacketsSent)
	assert.Equal(t, 10, report.PacketsDropped)
	assert.Equal(t, 200, report.FirstPlayoutMs)
	assert.Greater(t, report.Receiver.LateSyncPackets, uint64(0))
	assert.Equal(t, uint64(0), report.Receiver.BufferFlushes)
}
