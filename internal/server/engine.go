package server

import (
	"fmt"
	"time"

	"github.com/silopolis/tftpgui/internal/minilog"
	"github.com/silopolis/tftpgui/internal/tftp"
)

// EngineError wraps a recovered panic from the dispatcher loop, the
// "engine failure" case spec section 6's exit-code rule refers to.
type EngineError struct {
	Cause interface{}
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine loop failed: %v", e.Cause)
}

// idlePoll is the interval the engine loop sleeps at while
// engineAvailable is set but serving is false, per spec section 9's
// note 3 (the source's time.sleep(0.25) idle loop).
const idlePoll = 250 * time.Millisecond

// serveCheckInterval is how often the engine goroutine re-checks the
// serving/engineAvailable flags while a Dispatcher is actively running,
// to turn an observer's Shutdown/SetServing(false) into a closed stop
// channel promptly.
const serveCheckInterval = 100 * time.Millisecond

// Engine ties a Config, a State and repeated serving periods together:
// it is the outer loop spec section 4.6 calls "the engine loop", the
// thing cmd/tftpgui actually runs.
type Engine struct {
	cfg   tftp.Config
	state *State
}

// NewEngine returns an Engine ready to Run against cfg, reporting through
// state.
func NewEngine(cfg tftp.Config, state *State) *Engine {
	return &Engine{cfg: cfg, state: state}
}

// Run executes the engine loop until State.EngineAvailable() goes
// false (a clean Shutdown), binding a fresh Dispatcher at the start of
// each serving period and tearing it down when serving is toggled off.
// A bind failure parks the engine idle and is reported through
// state.text and the log sink rather than ending the loop (spec
// section 4.6: "the engine loop then pauses in the idle state"). Run
// only returns a non-nil error if the dispatcher loop itself panics,
// mapping to the engine-failure exit code spec section 7 describes;
// a Shutdown-driven exit is always reported as nil.
func (e *Engine) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			minilog.Errorln("engine loop panic:", r)
			err = &EngineError{Cause: r}
		}
	}()

	for e.state.EngineAvailable() {
		if !e.state.Serving() {
			time.Sleep(idlePoll)
			continue
		}

		d, bindErr := tftp.NewDispatcher(e.cfg, e.state)
		if bindErr != nil {
			if be, ok := bindErr.(*tftp.BindError); ok {
				e.state.AddText(be.Error(), true)
				minilog.Errorln(be.Hint(true))
			} else {
				minilog.Errorln(bindErr)
			}
			e.state.SetServing(false)
			continue
		}

		e.state.setConnections(d.Connections)

		stop := make(chan struct{})
		go func() {
			for e.state.Serving() && e.state.EngineAvailable() {
				time.Sleep(serveCheckInterval)
			}
			close(stop)
		}()

		d.Run(stop)
		d.Close()
		e.state.setConnections(nil)
	}

	return nil
}
