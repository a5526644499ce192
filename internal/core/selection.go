package core

import (
	"fmt"
	"strconv"

	"postbot/internal/wizard"
	"postbot/pkg/tgui"
)

// CallbackNS prefixes every callback payload this bot produces.
const CallbackNS = "w"

// Kind tags a Selection.
type Kind uint8

const (
	SelNoop Kind = iota
	SelChannels
	SelChannel
	SelJob
	SelAdd
	SelEdit
	SelPause
	SelResume
	SelDelete
	SelDeleteConfirm
	SelSendNow
	SelPeriod
	SelHour
	SelMinute
	SelDay
	SelAllDays
	SelCommit
	SelCancel
)

var kindCodes = map[Kind]string{
	SelNoop:          "_",
	SelChannels:      "ls",
	SelChannel:       "ch",
	SelJob:           "jb",
	SelAdd:           "add",
	SelEdit:          "ed",
	SelPause:         "pa",
	SelResume:        "re",
	SelDelete:        "dl",
	SelDeleteConfirm: "dc",
	SelSendNow:       "sn",
	SelPeriod:        "pd",
	SelHour:          "hr",
	SelMinute:        "mn",
	SelDay:           "dy",
	SelAllDays:       "da",
	SelCommit:        "ok",
	SelCancel:        "x",
}

var codeKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindCodes))
	for k, c := range kindCodes {
		m[c] = k
	}
	return m
}()

// String returns the wire code of k.
func (k Kind) String() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// argument layout per kind
type layout uint8

const (
	argsNone layout = iota
	argsValue
	argsChannel
	argsJob
	argsJobValue
)

func (k Kind) layout() layout {
	switch k {
	case SelChannels, SelPeriod, SelHour, SelMinute, SelDay:
		return argsValue
	case SelChannel, SelAdd:
		return argsChannel
	case SelJob, SelPause, SelResume, SelDelete, SelDeleteConfirm, SelSendNow:
		return argsJob
	case SelEdit:
		return argsJobValue
	default:
		return argsNone
	}
}

// Selection is a decoded button press.
//
// Value carries the page (SelChannels), AM/PM (SelPeriod), hour, minute,
// weekday index or the wizard mode (SelEdit).
type Selection struct {
	Kind      Kind
	ChannelID int64
	JobID     int
	Value     int
}

func Channels(page int) Selection    { return Selection{Kind: SelChannels, Value: page} }
func OpenChannel(ch int64) Selection { return Selection{Kind: SelChannel, ChannelID: ch} }
func AddJob(ch int64) Selection      { return Selection{Kind: SelAdd, ChannelID: ch} }

func OnJob(kind Kind, ch int64, job int) Selection {
	return Selection{Kind: kind, ChannelID: ch, JobID: job}
}

func Edit(ch int64, job int, mode wizard.Mode) Selection {
	return Selection{Kind: SelEdit, ChannelID: ch, JobID: job, Value: int(mode)}
}

func Pick(kind Kind, v int) Selection { return Selection{Kind: kind, Value: v} }

// Mode is the wizard mode of a SelEdit selection.
func (s Selection) Mode() wizard.Mode { return wizard.Mode(s.Value) }

// Encode renders "w:<kind>[:<args>]" callback data.
func (s Selection) Encode() string {
	code, ok := kindCodes[s.Kind]
	if !ok {
		code = kindCodes[SelNoop]
	}
	ch := strconv.FormatInt(s.ChannelID, 10)
	job := strconv.Itoa(s.JobID)
	v := strconv.Itoa(s.Value)
	switch s.Kind.layout() {
	case argsValue:
		return tgui.Data(CallbackNS, code, v)
	case argsChannel:
		return tgui.Data(CallbackNS, code, ch)
	case argsJob:
		return tgui.Data(CallbackNS, code, ch, job)
	case argsJobValue:
		return tgui.Data(CallbackNS, code, ch, job, v)
	default:
		return tgui.Data(CallbackNS, code)
	}
}

// Decode parses callback data produced by Encode.
func Decode(data string) (Selection, error) {
	ns, code, args, err := tgui.ParseData(data)
	if err != nil {
		return Selection{}, err
	}
	if ns != CallbackNS {
		return Selection{}, fmt.Errorf("%w: namespace %q", ErrBadSelection, ns)
	}
	kind, ok := codeKinds[code]
	if !ok {
		return Selection{}, fmt.Errorf("%w: kind %q", ErrBadSelection, code)
	}
	sel := Selection{Kind: kind}

	want := map[layout]int{argsNone: 0, argsValue: 1, argsChannel: 1, argsJob: 2, argsJobValue: 3}[kind.layout()]
	if len(args) != want {
		return Selection{}, fmt.Errorf("%w: %q wants %d args", ErrBadSelection, code, want)
	}
	switch kind.layout() {
	case argsValue:
		if sel.Value, err = strconv.Atoi(args[0]); err != nil {
			return Selection{}, fmt.Errorf("%w: %v", ErrBadSelection, err)
		}
	case argsChannel, argsJob, argsJobValue:
		if sel.ChannelID, err = strconv.ParseInt(args[0], 10, 64); err != nil {
			return Selection{}, fmt.Errorf("%w: %v", ErrBadSelection, err)
		}
		if len(args) > 1 {
			if sel.JobID, err = strconv.Atoi(args[1]); err != nil {
				return Selection{}, fmt.Errorf("%w: %v", ErrBadSelection, err)
			}
		}
		if len(args) > 2 {
			if sel.Value, err = strconv.Atoi(args[2]); err != nil {
				return Selection{}, fmt.Errorf("%w: %v", ErrBadSelection, err)
			}
		}
	}
	return sel, nil
}
