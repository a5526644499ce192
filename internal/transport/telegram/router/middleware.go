package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "postbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Tell shows a short text to whoever sent req: the callback toast for button
// presses, a private message otherwise.
type Tell func(ctx context.Context, req *Request, text string)

const (
	msgUnexpected = "Something went wrong, try again."
	msgTimedOut   = "Timed out, try again."
)

// Chain wraps h so that m[0] is the outermost middleware.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// MWTimeout bounds a handler. A handler that fails because the bound expired
// gets a "timed out" reply unless it already told the user something.
func MWTimeout(d time.Duration, tell Tell) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			err := next(cctx, req)
			if err == nil || ctx.Err() != nil || !errors.Is(cctx.Err(), context.DeadlineExceeded) {
				return err
			}
			requestLogger(req, logx.Nop()).Warn("handler timed out", logx.Duration("limit", d))
			if tell != nil && !req.told {
				tell(ctx, req, msgTimedOut)
			}
			return err
		}
	}
}

// MWPanicRecover turns a handler panic into an error. The user still gets a
// reply, and callbacks are still answered by the router.
func MWPanicRecover(log logx.Logger, tell Tell) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					requestLogger(req, log).Error("panic recovered",
						logx.String("cmd", req.Command),
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
					if tell != nil {
						tell(ctx, req, msgUnexpected)
					}
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs one line per request with the decoded selection and the
// toast shown to the user.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			if req.isCallback() {
				fields = append(fields, logx.String("sel", req.Sel.Kind.String()))
				if req.Sel.ChannelID != 0 {
					fields = append(fields, logx.Int64("channel_id", req.Sel.ChannelID))
				}
				if req.Sel.JobID != 0 {
					fields = append(fields, logx.Int("job_id", req.Sel.JobID))
				}
			}
			if req.Answer != "" {
				fields = append(fields, logx.String("answer", req.Answer))
			}

			logger := requestLogger(req, log)
			switch {
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				logger.Info("request ok", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

func requestLogger(req *Request, fallback logx.Logger) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}
