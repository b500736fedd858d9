package bridge

import (
	"encoding/json"
	"strings"

	"github.com/Iron-Ham/maabridge/internal/event"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// Controller action notifications carry the connection request id.
const (
	msgControllerActionSucceeded = "Controller.Action.Succeeded"
	msgControllerActionFailed    = "Controller.Action.Failed"
)

type controllerActionDetails struct {
	CtrlID int64  `json:"ctrl_id"`
	Action string `json:"action"`
}

// onEngineEvent runs on engine threads. It must not take the registry or
// runtime locks and must not block.
func (s *Service) onEngineEvent(ev native.Event) {
	rt, ok := s.registry.ByToken(ev.TransArg)
	if !ok {
		s.logger.Debug("event for unknown instance", "message", ev.Message, "trans_arg", ev.TransArg)
		return
	}

	switch ev.Message {
	case msgControllerActionSucceeded, msgControllerActionFailed:
		var details controllerActionDetails
		if err := json.Unmarshal([]byte(ev.Details), &details); err == nil &&
			(details.Action == "" || strings.EqualFold(details.Action, "connect")) {
			okConn := ev.Message == msgControllerActionSucceeded
			reason := ""
			if !okConn {
				reason = "connection failed"
			}
			rt.Connection().Observe(details.CtrlID, okConn, reason)
		}
	}

	if !s.relay.Offer(event.NewCallbackEvent(rt.ID(), ev.Message, ev.Details)) {
		s.logger.Debug("event dropped", "instance_id", rt.ID(), "message", ev.Message)
	}
}
