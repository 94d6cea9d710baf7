package core

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

type ConversationID string

type ExchangeID string

type RequestID string

func NewConversationID() ConversationID {
	return ConversationID("conv_" + timestamp() + "_" + randomSeed())
}

func NewExchangeID() ExchangeID {
	return ExchangeID("xchg_" + timestamp() + "_" + randomSeed())
}

func NewRequestID() RequestID {
	return RequestID("req_" + timestamp() + "_" + randomSeed())
}

func timestamp() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}

func randomSeed() string {
	buffer := make([]byte, 6)
	_, _ = rand.Read(buffer)
	return hex.EncodeToString(buffer)
}
