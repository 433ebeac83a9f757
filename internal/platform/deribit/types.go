package deribit

import "encoding/json"

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Channels []string `json:"channels"`
}

// rpcMessage covers RPC responses, errors and subscription notifications.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *notification   `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	Channel string    `json:"channel"`
	Data    *bookData `json:"data,omitempty"`
}

// bookData entries are [price, size] for snapshots and [action, price, size]
// for changes; numbers may arrive as strings.
type bookData struct {
	InstrumentName string              `json:"instrument_name"`
	ChangeID       *int64              `json:"change_id,omitempty"`
	PrevChangeID   *int64              `json:"prev_change_id,omitempty"`
	Bids           [][]json.RawMessage `json:"bids"`
	Asks           [][]json.RawMessage `json:"asks"`
	Timestamp      int64               `json:"timestamp"`
}
