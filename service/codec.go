package service

import (
	"encoding/json"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts any JSON-tagged value into a protobuf Struct. Decimals
// travel as strings, so no precision is lost.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal json")
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(b, st); err != nil {
		return nil, errors.Wrap(err, "json to struct")
	}
	return st, nil
}

// FromStruct fills v from a protobuf Struct.
func FromStruct(st *structpb.Struct, v any) error {
	b, err := protojson.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "struct to json")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(ErrBadRequest, err.Error())
	}
	return nil
}

// EncodeRequest is the entry WAL payload of a request.
func EncodeRequest(req *Request) ([]byte, error) {
	st, err := ToStruct(req)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(st)
	return b, errors.Wrap(err, "marshal request")
}

func DecodeRequest(b []byte) (*Request, error) {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(b, st); err != nil {
		return nil, errors.Wrap(err, "unmarshal request")
	}
	req := &Request{}
	if err := FromStruct(st, req); err != nil {
		return nil, err
	}
	return req, nil
}
