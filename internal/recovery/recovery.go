// Failure injector and recovery monitor for simulated power outages
package recovery

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"homeops-driver/internal/config"
	"homeops-driver/internal/target"
)

// Phase tracks where a target sits in the outage/restore state machine.
type Phase string

const (
	PhaseRunning    Phase = "running"
	PhaseStopping   Phase = "stopping"
	PhaseStopped    Phase = "stopped"
	PhaseStarting   Phase = "starting"
	PhaseRecovering Phase = "recovering"
	PhaseOnline     Phase = "online"
	PhaseTimedOut   Phase = "timed_out"
)

const (
	commandTimeout     = 30 * time.Second
	settleDelay        = 2 * time.Second
	healthPollInterval = time.Second
)

// DefaultVerifyTimeout applies when a verify_system event carries no timeout.
const DefaultVerifyTimeout = 60 * time.Second

// Record is the outage/restore bookkeeping for one target.
// RecoverySeconds stays nil iff the target never came back before timeout.
type Record struct {
	Phase           Phase
	StopTime        time.Time
	RestoreTime     time.Time
	RecoverySeconds *float64
}

// Injector stops and restarts SUT processes and measures recovery latency.
// External command failures are logged but never abort the sequence: the
// driver observes outages, it does not orchestrate them transactionally.
type Injector struct {
	targets []*target.Target
	cfgs    map[string]config.TargetConfig
	records map[string]*Record
	log     *slog.Logger

	// swapped by tests
	now      func() time.Time
	runCmd   func(ctx context.Context, command string) error
	sleep    func(d time.Duration)
	pollWait time.Duration
}

// NewInjector builds an injector over the run's targets.
func NewInjector(targets []*target.Target, cfgs []config.TargetConfig, log *slog.Logger) *Injector {
	inj := &Injector{
		targets:  targets,
		cfgs:     make(map[string]config.TargetConfig, len(cfgs)),
		records:  make(map[string]*Record, len(targets)),
		log:      log,
		now:      time.Now,
		runCmd:   runShellCommand,
		sleep:    time.Sleep,
		pollWait: healthPollInterval,
	}
	for _, c := range cfgs {
		inj.cfgs[c.Name] = c
	}
	for _, t := range targets {
		inj.records[t.Name] = &Record{Phase: PhaseRunning}
	}
	return inj
}

// Record returns the bookkeeping for one target.
func (inj *Injector) Record(name string) *Record {
	return inj.records[name]
}

// PowerOutage stops every target: MQTT disconnects first so stale publishes
// cannot race the restart, then the configured stop command runs bounded by
// a 30s deadline.
func (inj *Injector) PowerOutage(ctx context.Context) {
	for _, t := range inj.targets {
		rec := inj.records[t.Name]
		rec.Phase = PhaseStopping
		inj.log.Info("power outage: stopping target", "target", t.Name)

		t.DisconnectMQTT()

		if cmd := inj.cfgs[t.Name].StopCommand; cmd != "" {
			if err := inj.runBounded(ctx, cmd); err != nil {
				inj.log.Warn("stop command failed", "target", t.Name, "err", err)
			}
		}
		rec.StopTime = inj.now()
		rec.Phase = PhaseStopped
	}
}

// PowerRestore starts every target. The restore time is recorded immediately,
// before the process is confirmed up, so recovery duration measures from
// restart intent. An absent start command means the process is externally
// managed and only the timestamp is taken. MQTT reconnects after a short
// settle delay.
func (inj *Injector) PowerRestore(ctx context.Context) {
	for _, t := range inj.targets {
		rec := inj.records[t.Name]
		rec.Phase = PhaseStarting
		inj.log.Info("power restore: starting target", "target", t.Name)

		if cmd := inj.cfgs[t.Name].StartCommand; cmd != "" {
			if err := inj.runBounded(ctx, cmd); err != nil {
				inj.log.Warn("start command failed", "target", t.Name, "err", err)
			}
		}
		rec.RestoreTime = inj.now()
		rec.RecoverySeconds = nil
		rec.Phase = PhaseRecovering
	}

	inj.sleep(settleDelay)
	for _, t := range inj.targets {
		t.ReconnectMQTT()
	}
}

// VerifySystem polls the named target's health endpoint once per second until
// it answers 200 OK or the timeout elapses. Success records the recovery
// latency; timeout leaves RecoverySeconds nil, distinguishing "came back
// slowly" from "never came back".
func (inj *Injector) VerifySystem(ctx context.Context, system string, timeout time.Duration) bool {
	var tgt *target.Target
	for _, t := range inj.targets {
		if t.Name == system {
			tgt = t
			break
		}
	}
	if tgt == nil {
		inj.log.Warn("verify_system: unknown target", "system", system)
		return false
	}
	rec := inj.records[system]
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	deadline := inj.now().Add(timeout)

	for {
		if _, err := tgt.Health(ctx); err == nil {
			secs := inj.now().Sub(rec.RestoreTime).Seconds()
			rec.RecoverySeconds = &secs
			rec.Phase = PhaseOnline
			inj.log.Info("system online", "target", system, "recovery_seconds", secs)
			return true
		}
		if inj.now().After(deadline) {
			rec.Phase = PhaseTimedOut
			inj.log.Warn("system never came back", "target", system, "timeout", timeout)
			return false
		}
		select {
		case <-ctx.Done():
			rec.Phase = PhaseTimedOut
			return false
		case <-time.After(inj.pollWait):
		}
	}
}

// runBounded runs an external command with the fixed process-control deadline.
func (inj *Injector) runBounded(ctx context.Context, command string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return inj.runCmd(cmdCtx, command)
}

func runShellCommand(ctx context.Context, command string) error {
	return exec.CommandContext(ctx, "sh", "-c", command).Run()
}
