package agent

import (
	"bufio"
	"bytes"
	"io"

	"golang.org/x/text/encoding/unicode"

	"github.com/Iron-Ham/maabridge/internal/event"
	"github.com/Iron-Ham/maabridge/internal/logging"
)

// output fans one decoded line out to the log file, the application log and
// the event relay.
type output struct {
	instanceID string
	logFile    *LogFile
	logger     *logging.Logger
	relay      *event.Relay
}

func (o *output) line(stream, line string) {
	if o.logFile != nil {
		if err := o.logFile.Append(stream, line); err != nil {
			o.logger.Debug("agent log append failed", "error", err)
		}
	}
	if stream == event.StreamStderr {
		o.logger.Warn("agent output", "stream", stream, "line", line)
	} else {
		o.logger.Info("agent output", "stream", stream, "line", line)
	}
	if o.relay != nil {
		o.relay.Offer(event.NewAgentOutputEvent(o.instanceID, stream, line))
	}
}

// drain reads r line by line until EOF or a read error.
func (o *output) drain(stream string, r io.Reader) {
	br := bufio.NewReader(r)
	dec := unicode.UTF8.NewDecoder()

	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			raw = bytes.TrimSuffix(raw, []byte("\n"))
			raw = bytes.TrimSuffix(raw, []byte("\r"))
			text, decErr := dec.Bytes(raw)
			if decErr != nil {
				text = bytes.ToValidUTF8(raw, []byte("�"))
			}
			o.line(stream, string(text))
		}
		if err != nil {
			if err != io.EOF {
				o.logger.Error("agent output read failed", "stream", stream, "error", err)
			}
			return
		}
	}
}
