// Package hollywood wires the runtime entry point described in spec
// section 4.8: it resolves (system, bus URI), connects to the bus with
// retry, instantiates the control plane and broker, and hosts the agent
// loop.
package hollywood

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/grippy/hollywood/addr"
	"github.com/grippy/hollywood/agent"
	"github.com/grippy/hollywood/broker"
	"github.com/grippy/hollywood/bus"
	"github.com/grippy/hollywood/control"
	"github.com/grippy/hollywood/env"
)

// RunOpts configures Run. System and BusURI are resolved from the
// environment (spec section 6) when empty.
type RunOpts struct {
	System  string
	BusURI  string
	Dialer  bus.Dialer
	Mode    addr.Mode // Queue() by default
	MaxSize int       // 0 means unbounded
	Tuning  broker.Tuning

	// LivenessInterval configures the optional liveness ticker (step 6
	// of spec section 4.8); zero disables it.
	LivenessInterval time.Duration

	// ConnectRetryInterval overrides the default 1s retry cadence from
	// step 2 of spec section 4.8.
	ConnectRetryInterval time.Duration
}

// defaultOpts fills in spec-mandated defaults for any zero-valued field.
func (o RunOpts) defaultOpts() RunOpts {
	if o.Mode == nil {
		o.Mode = addr.Queue()
	}
	if o.Tuning == (broker.Tuning{}) {
		o.Tuning = broker.DefaultTuning()
	}
	if o.ConnectRetryInterval == 0 {
		o.ConnectRetryInterval = time.Second
	}
	return o
}

// Run implements the full runtime entry point for actor. It blocks
// until ctx is cancelled or the agent exits after a Shutdown.
func Run(ctx context.Context, actor agent.Actor, opts RunOpts) error {
	opts = opts.defaultOpts()

	system, busURI := opts.System, opts.BusURI
	if system == "" {
		resolved, err := env.System()
		if err != nil {
			return fmt.Errorf("hollywood: resolving system from environment: %w", err)
		}
		system = resolved
	}
	if busURI == "" {
		resolved, err := env.SystemNATSURI(system)
		if err != nil {
			return fmt.Errorf("hollywood: resolving bus URI from environment: %w", err)
		}
		busURI = resolved
	}

	conn, err := connectWithRetry(ctx, opts.Dialer, busURI, opts.ConnectRetryInterval)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctrlBus := control.NewBus()
	agentCtrl := ctrlBus.Subscribe(8)
	brokerCtrl := ctrlBus.Subscribe(8)
	go func() {
		<-ctx.Done()
		ctrlBus.Publish(control.NewShutdown())
	}()

	mboxIn, mboxOut := agent.NewMailboxChannel(opts.MaxSize)

	b := broker.New(conn, system, actor.ActorKind(), opts.Mode, opts.MaxSize, mboxIn, brokerCtrl, opts.Tuning)
	if err := b.Run(actor.DispatchTypes()); err != nil {
		return fmt.Errorf("hollywood: starting broker: %w", err)
	}

	var stopLiveness func()
	if opts.LivenessInterval > 0 {
		stopLiveness = startLivenessTicker(ctrlBus, opts.LivenessInterval)
		defer stopLiveness()
	}

	a := agent.New(actor, mboxOut, agentCtrl, conn)
	a.Run(ctx)
	return nil
}

// connectWithRetry implements step 2 of spec section 4.8: infinite
// retry at a fixed cadence, logging each failure.
func connectWithRetry(ctx context.Context, dialer bus.Dialer, uri string, interval time.Duration) (bus.Conn, error) {
	for {
		conn, err := dialer.Dial(uri)
		if err == nil {
			return conn, nil
		}
		log.Printf("hollywood: connecting to bus %s: %v", uri, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// startLivenessTicker polls Health every interval and logs when no
// heartbeat at all is observed within 3s (spec section 4.8 step 6 /
// SPEC_FULL.md section 4.8). It is a lightweight liveness signal, not a
// per-component supervisor: Non-goals rule out process supervision.
func startLivenessTicker(ctrlBus *control.Bus, interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				probe := control.NewHealth()
				ctrlBus.Publish(probe)
				select {
				case <-probe.Reply:
				case <-time.After(3 * time.Second):
					log.Printf("hollywood: liveness probe missed heartbeat within 3s")
				}
			}
		}
	}()
	return func() { close(stop) }
}
