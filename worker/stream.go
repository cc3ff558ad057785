package worker

import (
	"context"
	"sync/atomic"
	"time"

	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/AltairaLabs/agentgw/pkg/httputil"
	"github.com/AltairaLabs/agentgw/sse"
)

// StreamRunner opens and drives an SSE ingress to completion, invoking
// onInit exactly once with the outcome of the first frame (spec §4.I).
// sse.Ingress satisfies this directly; it is an interface here so worker
// tests can substitute a fake without an httptest server.
type StreamRunner interface {
	Run(ctx context.Context, req sse.Request, onInit func(sse.InitResult)) error
}

// Stream begins an upstream SSE call through runner and blocks until the
// first frame arrives, an error occurs, or initTimeout elapses (spec §4.G
// stream() contract: "the caller is notified exactly once with either
// stream_init ... or stream_error"). Unlike Call, admission accounting for
// the breaker is tied to the init outcome (a transport/decode failure
// before the first frame counts as a dispatch failure); inFlight is held
// for the whole connection and released only once runner.Run fully
// returns, since the connection itself -- not just its opening handshake --
// is the admitted unit of work.
func (w *Worker) Stream(ctx context.Context, req sse.Request, runner StreamRunner, initTimeout time.Duration) (sse.InitResult, error) {
	if initTimeout <= 0 {
		initTimeout = httputil.DefaultStreamInitTimeout
	}
	if err := w.admit(); err != nil {
		return sse.InitResult{}, err
	}

	started := w.clk.Now()
	initCh := make(chan sse.InitResult, 1)

	w.childWG.Add(1)
	go func() {
		defer w.childWG.Done()
		var initErr error
		runErr := runner.Run(ctx, req, func(res sse.InitResult) {
			if !res.OK {
				initErr = gwerrors.New("worker", "stream", gwerrors.KindRemote, res.Err)
			}
			initCh <- res
		})
		if runErr == nil {
			runErr = initErr
		}
		// runner.Run has now fully returned: the connection (the admitted
		// unit of work for Stream) is over, regardless of how long ago init
		// fired. Release the admission slot and apply breaker accounting
		// exactly once here -- there is no "late result" race for Stream
		// the way there is for Call, since this goroutine is the only
		// place completion is ever accounted.
		var accounted atomic.Bool
		w.completeOnce(&accounted, CallResult{Err: runErr}, "stream", started)
	}()

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	select {
	case res := <-initCh:
		if !res.OK {
			return res, gwerrors.New("worker", "stream", gwerrors.KindRemote, res.Err)
		}
		return res, nil
	case <-initCtx.Done():
		return sse.InitResult{}, gwerrors.New("worker", "stream", gwerrors.KindTimeout, initCtx.Err())
	}
}
