package okx

import "encoding/json"

// --------------------------------------------------------------------------
// Outbound
// --------------------------------------------------------------------------

type subscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

// --------------------------------------------------------------------------
// Inbound
// --------------------------------------------------------------------------

// wsMessage covers push frames, subscription acks and error events on the
// public books channel.
type wsMessage struct {
	Event  string    `json:"event,omitempty"`
	Code   string    `json:"code,omitempty"`
	Msg    string    `json:"msg,omitempty"`
	Arg    *wsArg    `json:"arg,omitempty"`
	Action string    `json:"action,omitempty"`
	Data   []wsBooks `json:"data,omitempty"`
}

type wsArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// wsBooks holds one book payload. Levels are [price, size, deprecated,
// orderCount] string tuples.
type wsBooks struct {
	Asks     [][]json.RawMessage `json:"asks"`
	Bids     [][]json.RawMessage `json:"bids"`
	Ts       string              `json:"ts"`
	Checksum *int64              `json:"checksum,omitempty"`
}
