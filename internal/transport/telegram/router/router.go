package router

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"postbot/internal/core"
	"postbot/internal/jobstore"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/scheduler"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

// Request is one routed update.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string // "/name" for commands, "cb:<data>" for callbacks
	Args    []string
	Sel     core.Selection // decoded callback payload
	ReqID   string
	Logger  logx.Logger

	// Answer is shown as the callback toast once the handler returns.
	Answer string

	told bool
}

func (r *Request) isCallback() bool { return r.Update.Kind == kit.UpdateCallback && r.Update.Callback != nil }

func (r *Request) messageRef() kit.MessageRef {
	cb := r.Update.Callback
	return kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
}

type Options struct {
	// Workers is the dispatch pool size; defaults to NumCPU (min 2).
	Workers int
	// QueueSize is the total number of queued requests across workers.
	QueueSize int
	// Timeout bounds a single handler run.
	Timeout time.Duration
}

// Router turns transport updates into core calls and renders the result.
// Updates of one user always land on the same worker so they run in order.
type Router struct {
	svc *core.Service
	ad  kit.Adapter
	log logx.Logger
	opt Options

	cmds  map[string]Command
	order []string

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	queues []chan func()
}

func New(svc *core.Service, ad kit.Adapter, opt Options, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = runtime.NumCPU()
		if opt.Workers < 2 {
			opt.Workers = 2
		}
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 45 * time.Second
	}
	per := opt.QueueSize / opt.Workers
	if per < 8 {
		per = 8
	}
	r := &Router{
		svc: svc,
		ad:  ad,
		log: log.With(logx.String("comp", "telegram.router")),
		opt: opt,
	}
	r.queues = make([]chan func(), opt.Workers)
	for i := range r.queues {
		r.queues[i] = make(chan func(), per)
	}
	r.registerCommands()
	return r
}

// Supervisor returns the dispatcher's supervisor (nil if not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *rtsup.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

func (r *Router) queueFor(userID int64) chan func() {
	i := userID % int64(len(r.queues))
	if i < 0 {
		i = -i
	}
	return r.queues[i]
}

// tryEnqueue is a panic-safe enqueue helper (handles the queue being closed).
func (r *Router) tryEnqueue(userID int64, fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.queueFor(userID) <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop reads updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.setSupervisor(sup, true)
	r.log.Info("dispatcher started", logx.Int("workers", len(r.queues)), logx.Int("queue_cap", cap(r.queues[0])))

	var closeOnce sync.Once
	closeQueues := func() {
		closeOnce.Do(func() {
			r.setSupervisor(sup, false)
			for _, q := range r.queues {
				close(q)
			}
		})
	}

	for i, q := range r.queues {
		idx, jobs := i, q
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			r.log.Debug("worker started", logx.Int("worker", idx))
			defer r.log.Debug("worker stopped", logx.Int("worker", idx))
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeQueues()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setSupervisor(nil, false)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("updates channel closed")
				return nil
			}
			req, h := r.prepare(up)
			if h == nil {
				continue
			}
			if !r.tryEnqueue(req.FromID, func() { r.run(ctx, req, h) }) {
				r.busy(ctx, req)
			}
		}
	}
}

// Handle routes a single update synchronously on the caller's goroutine and
// returns the handler's unexpected error, if any.
func (r *Router) Handle(ctx context.Context, up kit.Update) error {
	req, h := r.prepare(up)
	if h == nil {
		return nil
	}
	return r.run(ctx, req, h)
}

func (r *Router) run(ctx context.Context, req *Request, h HandlerFunc) error {
	final := Chain(
		h,
		MWPanicRecover(r.log, r.tell),
		MWRequestLog(r.log),
		MWTimeout(r.opt.Timeout, r.tell),
	)
	err := final(ctx, req)
	if req.isCallback() {
		// always stop the client's loading spinner
		if aerr := r.ad.AnswerCallback(ctx, req.Update.Callback.ID, req.Answer); aerr != nil {
			req.Logger.Debug("answer callback failed", logx.Err(aerr))
		}
	}
	return err
}

const replyGrace = 5 * time.Second

// tell sets the toast of a callback or replies to a message. Membership
// updates have no one to reply to.
func (r *Router) tell(ctx context.Context, req *Request, text string) {
	req.told = true
	switch {
	case req.isCallback():
		req.Answer = text
	case req.Update.Kind == kit.UpdateMessage:
		if ctx.Err() != nil {
			// the handler's deadline has passed; the reply still goes out
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), replyGrace)
			defer cancel()
		}
		if _, err := r.ad.SendText(ctx, req.Chat, text, nil); err != nil {
			req.Logger.Debug("reply failed", logx.Err(err))
		}
	}
}

func (r *Router) busy(ctx context.Context, req *Request) {
	req.Logger.Warn("dispatch queue full")
	if req.isCallback() {
		_ = r.ad.AnswerCallback(ctx, req.Update.Callback.ID, "busy, try again")
		return
	}
	if req.Update.Kind == kit.UpdateMessage {
		_, _ = r.ad.SendText(ctx, req.Chat, "busy, try again", nil)
	}
}

func newReqID() string { return uuid.NewString() }

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

// prepare maps an update to its request and handler. A nil handler drops
// the update.
func (r *Router) prepare(up kit.Update) (*Request, HandlerFunc) {
	switch up.Kind {
	case kit.UpdateMessage:
		return r.prepareMessage(up)
	case kit.UpdateCallback:
		return r.prepareCallback(up)
	case kit.UpdateChatAdded:
		ev := up.ChatAdded
		if ev == nil {
			return nil, nil
		}
		req := r.newRequest(up, kit.ChatTarget{ChatID: ev.ChatID}, ev.ByID, "chat_added")
		return req, r.onChatAdded
	}
	return nil, nil
}

func (r *Router) prepareMessage(up kit.Update) (*Request, HandlerFunc) {
	msg := up.Message
	if msg == nil {
		return nil, nil
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID}
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") && msg.PhotoID == "" {
		parts := strings.Fields(text)
		word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
		if i := strings.IndexByte(word, '@'); i >= 0 {
			word = word[:i]
		}
		req := r.newRequest(up, chat, msg.FromID, "/"+word)
		req.Args = parts[1:]
		cmd, ok := r.cmds[word]
		if !ok {
			return req, r.unknownCommand
		}
		if cmd.PrivateOnly && !msg.IsPrivate {
			return req, r.privateOnly
		}
		return req, cmd.Handle
	}

	// Plain messages only matter in the private dialog.
	if !msg.IsPrivate {
		return nil, nil
	}
	req := r.newRequest(up, chat, msg.FromID, "text")
	return req, r.onText
}

func (r *Router) prepareCallback(up kit.Update) (*Request, HandlerFunc) {
	cb := up.Callback
	if cb == nil {
		return nil, nil
	}
	data := strings.TrimSpace(cb.Data)
	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID}, cb.FromID, "cb:"+data)
	sel, err := core.Decode(data)
	if err != nil {
		return req, func(ctx context.Context, req *Request) error {
			req.Logger.Debug("undecodable callback", logx.Err(err))
			req.Answer = "This button is no longer supported."
			return nil
		}
	}
	req.Sel = sel
	return req, r.onCallback
}

// reply edits the callback's message, or sends a new one for messages.
func (r *Router) reply(ctx context.Context, req *Request, m tgui.Message) error {
	if req.isCallback() {
		err := m.Edit(ctx, r.ad, req.messageRef())
		if err == nil {
			return nil
		}
		// the original message may be too old to edit
		req.Logger.Debug("edit failed, sending new message", logx.Err(err))
	}
	_, err := m.Send(ctx, r.ad, req.Chat)
	return err
}

// fail reports err to the user. It returns the error only when it is not
// an expected outcome of user input.
func (r *Router) fail(ctx context.Context, req *Request, err error) error {
	var text string
	var unexpected bool
	if verr, ok := core.IsValidation(err); ok {
		text = "Cannot save yet: " + verr.Error() + "."
	} else {
		switch {
		case errors.Is(err, core.ErrPermission):
			text = "forbidden"
		case errors.Is(err, core.ErrNoSession):
			text = "This dialog has expired. Open /channels to start again."
		case errors.Is(err, jobstore.ErrNotFound):
			text = "That job no longer exists."
		case errors.Is(err, core.ErrEmptyJob):
			text = "This job has nothing to send."
		case errors.Is(err, scheduler.ErrInvalidJob):
			text = "This post has no valid time or days. Edit it before resuming."
		case errors.Is(err, context.DeadlineExceeded):
			text = msgTimedOut
			unexpected = true
		default:
			text = msgUnexpected
			unexpected = true
		}
	}
	r.tell(ctx, req, text)
	if unexpected {
		return err
	}
	req.Logger.Debug("request rejected", logx.Err(err))
	return nil
}
