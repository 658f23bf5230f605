package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// The payload log is a separate sink for raw decision text as it arrived from
// the model, so rejected decisions can be replayed later.
var (
	payloadMu  sync.Mutex
	payloadLog *log.Logger
)

func SetPayloadWriter(w io.Writer) {
	payloadMu.Lock()
	defer payloadMu.Unlock()
	if w == nil {
		payloadLog = nil
		return
	}
	payloadLog = log.New(w, "", log.LstdFlags)
}

type section struct {
	Title string
	Body  string
}

func writePayload(tags []string, sections []section) {
	payloadMu.Lock()
	l := payloadLog
	payloadMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			b.WriteString("[" + tag + "]")
		}
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- " + t + " ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

// LogDecisionPayload records the raw decision text and, when present, the
// validation errors it produced.
func LogDecisionPayload(source, symbol, raw string, errs []string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	sections := []section{{Title: "RAW", Body: raw}}
	if len(errs) > 0 {
		sections = append(sections, section{Title: "REJECTED", Body: strings.Join(errs, "\n")})
	}
	writePayload([]string{"DECISION", source, symbol}, sections)
}
