package bybit

import "encoding/json"

type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// wsMessage is either a subscription ack or an orderbook push.
type wsMessage struct {
	Op      string  `json:"op,omitempty"`
	Success *bool   `json:"success,omitempty"`
	RetMsg  string  `json:"ret_msg,omitempty"`
	Topic   string  `json:"topic,omitempty"`
	Type    string  `json:"type,omitempty"`
	Ts      int64   `json:"ts,omitempty"`
	Data    *wsBook `json:"data,omitempty"`
}

// wsBook is the orderbook payload. B and A are [price, size] string pairs;
// U is the per-symbol update id.
type wsBook struct {
	Symbol string              `json:"s"`
	B      [][]json.RawMessage `json:"b"`
	A      [][]json.RawMessage `json:"a"`
	U      *int64              `json:"u,omitempty"`
	Seq    int64               `json:"seq,omitempty"`
}
