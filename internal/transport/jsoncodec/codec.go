// Package jsoncodec registers a grpc.Codec under the name "proto", the
// name the gRPC-Go transport asks for by default, so every RPC on this
// server marshals its messages with encoding/json instead of real
// protobuf wire bytes.
//
// See internal/pb's package doc for why: protoc is unavailable in this
// environment and the teacher's generated pkg/proto/balance/v1 package
// was not captured by the retrieval pack. Registering under "proto"
// means cmd/billingd and any client dialing it need no special
// grpc.CallOption — the substitution is transparent to everything
// above the wire.
package jsoncodec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the codec name registered with grpc-go, matching the name the
// transport requests when no content-subtype is negotiated.
const Name = "proto"

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsoncodec: marshal: %w", err)
	}
	return b, nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsoncodec: unmarshal: %w", err)
	}
	return nil
}

func (codec) Name() string {
	return Name
}
