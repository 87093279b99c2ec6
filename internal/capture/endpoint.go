package capture

import "time"

// endpointer decides when an utterance has ended: once the recognized
// text has stopped changing for silenceTimeout, the utterance is done.
// The clock runs from the last text *change* (initially session start),
// so long stable speech never times out mid-sentence.
type endpointer struct {
	silenceTimeout time.Duration
	lastText       string
	lastChange     time.Time
}

func newEndpointer(silenceTimeout time.Duration, start time.Time) *endpointer {
	return &endpointer{silenceTimeout: silenceTimeout, lastChange: start}
}

// observe feeds the current recognized text at time now and reports
// whether the endpoint has been reached. Once it returns true the caller
// finalizes and stops observing.
func (e *endpointer) observe(text string, now time.Time) bool {
	if text != e.lastText {
		e.lastText = text
		e.lastChange = now
		return false
	}
	return now.Sub(e.lastChange) >= e.silenceTimeout
}
