// Package render holds the text layout shared by the text listeners.
package render

import (
	"fmt"
	"time"
)

// TimeLayout is the clock-only timestamp printed by console and file output.
const TimeLayout = "15:04:05.000"

// DayLayout names daily log files.
const DayLayout = "20060102"

// AppendMessage appends "tag msg\n", inserting the error (with stack when the
// error carries one) before the final newline.
func AppendMessage(b []byte, tag, msg string, err error) []byte {
	b = append(b, tag...)
	b = append(b, ' ')
	b = append(b, msg...)
	if err != nil {
		b = append(b, '\n')
		b = fmt.Appendf(b, "%+v", err)
	}
	return append(b, '\n')
}

// Message is AppendMessage into a new string.
func Message(tag, msg string, err error) string {
	return string(AppendMessage(make([]byte, 0, len(tag)+len(msg)+2), tag, msg, err))
}

// AppendTime appends t as TimeLayout in local time.
func AppendTime(b []byte, t time.Time) []byte {
	return t.Local().AppendFormat(b, TimeLayout)
}
