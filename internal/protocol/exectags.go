package protocol

import (
	"regexp"
	"strings"
)

// Execution progress events arrive embedded as self-closing tags inside
// streamed assistant text, not as dedicated frames:
//
//	<task_complete phaseId="p1" taskId="t1"/>
//	<task_update phaseId="p1" taskId="t2" status="in_progress"/>
//	<phase_complete phaseId="p1"/>
//
// The scanner strips them from display text and surfaces them as events.
const (
	ExecTaskComplete  = "task_complete"
	ExecTaskUpdate    = "task_update"
	ExecPhaseComplete = "phase_complete"
)

type ExecEvent struct {
	Kind    string
	PhaseID string
	TaskID  string
	Status  string
}

var (
	execTagRe  = regexp.MustCompile(`<(task_complete|task_update|phase_complete)\b([^<>]*)/>`)
	execAttrRe = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

// TagScanner accumulates streamed text and emits execution events as soon
// as a complete tag has arrived. A tag split across chunk boundaries is
// held back until its closing "/>" shows up.
type TagScanner struct {
	tail string
}

// Feed consumes one chunk and returns the display text (tags removed) plus
// any complete events. A trailing partial tag is buffered, not displayed.
func (s *TagScanner) Feed(chunk string) (string, []ExecEvent) {
	text := s.tail + chunk
	s.tail = ""

	// Hold back an unterminated tag opener at the end of the buffer.
	if i := strings.LastIndex(text, "<"); i >= 0 && !strings.Contains(text[i:], ">") {
		if looksLikeExecTag(text[i:]) {
			s.tail = text[i:]
			text = text[:i]
		}
	}

	var events []ExecEvent
	display := execTagRe.ReplaceAllStringFunc(text, func(tag string) string {
		m := execTagRe.FindStringSubmatch(tag)
		ev := ExecEvent{Kind: m[1]}
		for _, attr := range execAttrRe.FindAllStringSubmatch(m[2], -1) {
			switch attr[1] {
			case "phaseId":
				ev.PhaseID = attr[2]
			case "taskId":
				ev.TaskID = attr[2]
			case "status":
				ev.Status = attr[2]
			}
		}
		events = append(events, ev)
		return ""
	})
	return display, events
}

// Flush returns any buffered partial tag as plain text. Called when the
// message completes so a malformed tail is not silently dropped.
func (s *TagScanner) Flush() string {
	out := s.tail
	s.tail = ""
	return out
}

// looksLikeExecTag reports whether a partial "<..." prefix could still grow
// into one of the recognized tags. Anything else is passed through so normal
// markdown (e.g. "a < b") is not withheld from display.
func looksLikeExecTag(partial string) bool {
	body := strings.TrimPrefix(partial, "<")
	for _, kind := range []string{ExecTaskComplete, ExecTaskUpdate, ExecPhaseComplete} {
		if strings.HasPrefix(kind, body) || strings.HasPrefix(body, kind) {
			return true
		}
	}
	return false
}

// ScanExecTags is the one-shot form used for non-streamed text.
func ScanExecTags(text string) (string, []ExecEvent) {
	var s TagScanner
	display, events := s.Feed(text)
	return display + s.Flush(), events
}
