package jobstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Days is a set of weekday indices, Monday=0 .. Sunday=6, stored as a bitmask.
type Days uint8

// AllDays contains every weekday.
const AllDays Days = 1<<7 - 1

var dayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// DayName returns the short English name for index d, or "" if out of range.
func DayName(d int) string {
	if d < 0 || d > 6 {
		return ""
	}
	return dayNames[d]
}

// NewDays builds a set from indices; out-of-range values are ignored.
func NewDays(idx ...int) Days {
	var d Days
	for _, i := range idx {
		d = d.With(i)
	}
	return d
}

func (d Days) Has(i int) bool { return i >= 0 && i <= 6 && d&(1<<uint(i)) != 0 }

func (d Days) With(i int) Days {
	if i < 0 || i > 6 {
		return d
	}
	return d | 1<<uint(i)
}

// Toggle flips membership of i.
func (d Days) Toggle(i int) Days {
	if i < 0 || i > 6 {
		return d
	}
	return d ^ 1<<uint(i)
}

// ToggleAll clears a full set and fills any other set.
func (d Days) ToggleAll() Days {
	if d&AllDays == AllDays {
		return 0
	}
	return AllDays
}

func (d Days) Empty() bool { return d&AllDays == 0 }

func (d Days) Len() int {
	n := 0
	for i := 0; i < 7; i++ {
		if d.Has(i) {
			n++
		}
	}
	return n
}

// Slice returns the indices in ascending order.
func (d Days) Slice() []int {
	out := make([]int, 0, 7)
	for i := 0; i < 7; i++ {
		if d.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

func (d Days) String() string {
	switch {
	case d.Empty():
		return "none"
	case d&AllDays == AllDays:
		return "every day"
	}
	names := make([]string, 0, 7)
	for _, i := range d.Slice() {
		names = append(names, dayNames[i])
	}
	return strings.Join(names, ", ")
}

func (d Days) MarshalJSON() ([]byte, error) { return json.Marshal(d.Slice()) }

func (d *Days) UnmarshalJSON(b []byte) error {
	var idx []int
	if err := json.Unmarshal(b, &idx); err != nil {
		return err
	}
	for _, i := range idx {
		if i < 0 || i > 6 {
			return fmt.Errorf("weekday %d out of range", i)
		}
	}
	*d = NewDays(idx...)
	return nil
}
