package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var (
	ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
	ErrCallbackDataInvalid = errors.New("tgui: malformed callback_data")
)

// Data formats inline callback data as "ns:action[:arg...]".
// Args must not contain ':'.
func Data(ns, action string, args ...string) string {
	parts := make([]string, 0, 2+len(args))
	parts = append(parts, strings.TrimSpace(ns), strings.TrimSpace(action))
	parts = append(parts, args...)
	return strings.Join(parts, ":")
}

// CheckData validates the size limit.
func CheckData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}

// ParseData splits callback data produced by Data.
func ParseData(data string) (ns, action string, args []string, err error) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", nil, ErrCallbackDataInvalid
	}
	return parts[0], parts[1], parts[2:], nil
}
