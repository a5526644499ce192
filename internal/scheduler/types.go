package scheduler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"postbot/internal/eventbus"
	logx "postbot/pkg/logx"
)

var ErrInvalidJob = errors.New("scheduler: job has no valid time or days")

// Event types published on the bus after each firing.
const (
	EventPostSent   = "post.sent"
	EventPostFailed = "post.failed"
)

type Config struct {
	Timezone       string // IANA name; empty means UTC
	DeliverTimeout time.Duration
	RatePerSec     int // shared delivery rate; <=0 disables throttling
}

// Deliverer posts a payload to a chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, text, photo string) error
}

type Key struct {
	ChannelID int64
	JobID     int
}

func (k Key) String() string {
	return strconv.FormatInt(k.ChannelID, 10) + "/" + strconv.Itoa(k.JobID)
}

// Payload is the content captured when a trigger is registered.
type Payload struct {
	Text  string
	Photo string
}

// Delivery is the Data of EventPostSent and EventPostFailed events.
type Delivery struct {
	Key     Key
	OwnerID int64
	Took    time.Duration
	Err     error
}

// TriggerInfo describes an active registration.
type TriggerInfo struct {
	Key  Key
	Spec string
	Next time.Time
}

type registration struct {
	key     Key
	spec    string
	sched   cron.Schedule
	owner   int64
	payload Payload
	job     cron.Job
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	deliver Deliverer
	loc     *time.Location
	limiter *rate.Limiter
	parser  cron.Parser

	c    *cron.Cron
	regs map[Key]*registration

	// runCtx bounds firings; canceled on Stop.
	runCtx    context.Context
	runCancel context.CancelFunc
}
