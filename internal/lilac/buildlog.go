package lilac

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BuildLogEvent is one line in build-log.json.
type BuildLogEvent struct {
	TS      int64  `json:"ts"`
	Event   string `json:"event"` // build start, build end, successful, failed, skipped
	PkgBase string `json:"pkgbase"`
	NvOld   string `json:"nv_old,omitempty"`
	NvNew   string `json:"nv_new,omitempty"`
	Epoch   string `json:"epoch,omitempty"`
	PkgVer  string `json:"pkgver,omitempty"`
	PkgRel  string `json:"pkgrel,omitempty"`
	Elapsed int64  `json:"elapsed,omitempty"` // seconds
	B3Sum   string `json:"b3sum,omitempty"`
	Msg     string `json:"msg,omitempty"`
}

// BuildLogger appends to the two run-spanning logs: build.log for humans,
// build-log.json for machines. Both are append-only across invocations.
type BuildLogger struct {
	summary *os.File
	events  *os.File
}

// OpenBuildLogger opens (creating if needed) build.log and build-log.json
// in dir.
func OpenBuildLogger(dir string) (*BuildLogger, error) {
	summary, err := os.OpenFile(filepath.Join(dir, "build.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open build.log: %w", err)
	}
	events, err := os.OpenFile(filepath.Join(dir, "build-log.json"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		summary.Close()
		return nil, fmt.Errorf("failed to open build-log.json: %w", err)
	}
	return &BuildLogger{summary: summary, events: events}, nil
}

// Append writes the event to build-log.json and, for terminal events, a
// one-line human summary to build.log.
func (l *BuildLogger) Append(ev BuildLogEvent) {
	if l == nil {
		return
	}
	if ev.TS == 0 {
		ev.TS = time.Now().Unix()
	}
	if data, err := json.Marshal(ev); err == nil {
		l.events.Write(append(data, '\n'))
	}

	switch ev.Event {
	case "successful":
		fmt.Fprintf(l.summary, "%s %s successful in %ds (%s)\n",
			time.Unix(ev.TS, 0).Format(time.RFC3339), ev.PkgBase, ev.Elapsed,
			FormatPackageVersion(PkgFields{Epoch: ev.Epoch, PkgVer: ev.PkgVer, PkgRel: ev.PkgRel}))
	case "failed":
		fmt.Fprintf(l.summary, "%s %s failed in %ds: %s\n",
			time.Unix(ev.TS, 0).Format(time.RFC3339), ev.PkgBase, ev.Elapsed, ev.Msg)
	case "skipped":
		fmt.Fprintf(l.summary, "%s %s skipped: %s\n",
			time.Unix(ev.TS, 0).Format(time.RFC3339), ev.PkgBase, ev.Msg)
	}
}

// Close flushes and closes both logs.
func (l *BuildLogger) Close() {
	if l == nil {
		return
	}
	l.summary.Close()
	l.events.Close()
}
