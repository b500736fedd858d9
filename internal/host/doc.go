// Package host exposes the bridge to a host application as JSON messages
// over stdio (one message per line) or a websocket.
//
// A request names a command and carries its arguments:
//
//	{"id":1,"cmd":"create_instance","args":{"instance_id":"main"}}
//
// Every request gets exactly one response echoing its id:
//
//	{"id":1,"ok":true}
//	{"id":2,"ok":false,"error":"instance 'x' not found"}
//
// Requests run concurrently, so responses may arrive out of order. Engine
// callbacks and agent output are pushed as unsolicited event messages:
//
//	{"event":"maa-callback","payload":{"instance_id":"main","message":"...","details":"{...}"}}
//	{"event":"maa-agent-output","payload":{"instance_id":"main","stream":"stdout","line":"..."}}
package host
