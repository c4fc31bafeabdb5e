package qdrant

import (
	pb "github.com/qdrant/go-client/qdrant"
)

// payloadToPB converts a payload mapping into Qdrant values. Supported value
// types: string, bool, integers, floats, []string, []any of the same.
// Unsupported types and nil values are dropped.
func payloadToPB(payload map[string]any) map[string]*pb.Value {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]*pb.Value, len(payload))
	for k, v := range payload {
		if pv := valueToPB(v); pv != nil {
			out[k] = pv
		}
	}
	return out
}

func valueToPB(v any) *pb.Value {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: t}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: t}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(t)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: t}}
	case []string:
		values := make([]*pb.Value, len(t))
		for i, s := range t {
			values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	case []any:
		values := make([]*pb.Value, 0, len(t))
		for _, item := range t {
			if pv := valueToPB(item); pv != nil {
				values = append(values, pv)
			}
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	default:
		return nil
	}
}

// payloadFromPB converts Qdrant values back into a plain mapping.
func payloadFromPB(payload map[string]*pb.Value) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueFromPB(v)
	}
	return out
}

func valueFromPB(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			items = append(items, valueFromPB(item))
		}
		return items
	default:
		return nil
	}
}
