package messaging

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

// Wire schema shared with the processing service:
//
//	message OrderCreationKey { int64 order_id = 1; }
//	message OrderCreationValue {
//	  oneof event {
//	    OrderCreated created = 1;                      // order_id = 1, created_at = 2
//	    OrderProcessingStarted processing_started = 2; // order_id = 1, started_at = 2
//	  }
//	}
//	message OrderProcessingValue {
//	  oneof event {
//	    ApprovalReceived approval_received = 1;  // order_id = 1, is_approved = 2, created_by = 3
//	    PackingStarted packing_started = 2;      // order_id = 1, packing_by = 2
//	    PackingFinished packing_finished = 3;    // order_id = 1, is_finished_successfully = 2, failure_reason = 3
//	    DeliveryStarted delivery_started = 4;    // order_id = 1, delivered_by = 2
//	    DeliveryFinished delivery_finished = 5;  // order_id = 1, is_finished_successfully = 2, failure_reason = 3
//	  }
//	}

// ErrUnknownEvent means the value carried no oneof variant this service knows.
var ErrUnknownEvent = errors.New("unknown event variant")

const (
	creationCreated           protowire.Number = 1
	creationProcessingStarted protowire.Number = 2

	processingApprovalReceived protowire.Number = 1
	processingPackingStarted   protowire.Number = 2
	processingPackingFinished  protowire.Number = 3
	processingDeliveryStarted  protowire.Number = 4
	processingDeliveryFinished protowire.Number = 5
)

func EncodeOrderCreationKey(orderID int64) []byte {
	return appendInt64(nil, 1, orderID)
}

func DecodeOrderCreationKey(b []byte) (int64, error) {
	fields, err := parseFields(b)
	if err != nil {
		return 0, fmt.Errorf("decode order creation key: %w", err)
	}
	return fields.int64(1), nil
}

func EncodeOrderCreationEvent(event domain.OrderCreationEvent) ([]byte, error) {
	var (
		num protowire.Number
		at  time.Time
	)
	switch e := event.(type) {
	case domain.OrderCreated:
		num, at = creationCreated, e.CreatedAt
	case domain.OrderProcessingStarted:
		num, at = creationProcessingStarted, e.StartedAt
	default:
		return nil, fmt.Errorf("encode order creation value: unsupported event %T", event)
	}

	ts, err := proto.MarshalOptions{Deterministic: true}.Marshal(timestamppb.New(at))
	if err != nil {
		return nil, fmt.Errorf("encode timestamp: %w", err)
	}
	body := appendInt64(nil, 1, event.EventOrderID())
	body = appendBytes(body, 2, ts)
	return appendBytes(nil, num, body), nil
}

func DecodeOrderCreationEvent(b []byte) (domain.OrderCreationEvent, error) {
	fields, err := parseFields(b)
	if err != nil {
		return nil, fmt.Errorf("decode order creation value: %w", err)
	}

	var event domain.OrderCreationEvent
	for _, f := range fields {
		if f.typ != protowire.BytesType || (f.num != creationCreated && f.num != creationProcessingStarted) {
			continue
		}
		body, err := parseFields(f.bytes)
		if err != nil {
			return nil, fmt.Errorf("decode order creation value: %w", err)
		}
		at, err := body.timestamp(2)
		if err != nil {
			return nil, err
		}
		if f.num == creationCreated {
			event = domain.OrderCreated{OrderID: body.int64(1), CreatedAt: at}
		} else {
			event = domain.OrderProcessingStarted{OrderID: body.int64(1), StartedAt: at}
		}
	}
	if event == nil {
		return nil, ErrUnknownEvent
	}
	return event, nil
}

func EncodeProcessingEvent(event domain.ProcessingEvent) ([]byte, error) {
	var (
		num  protowire.Number
		body = appendInt64(nil, 1, event.EventOrderID())
	)
	switch e := event.(type) {
	case domain.ApprovalReceived:
		num = processingApprovalReceived
		body = appendBool(body, 2, e.IsApproved)
		body = appendString(body, 3, e.CreatedBy)
	case domain.PackingStarted:
		num = processingPackingStarted
		body = appendString(body, 2, e.PackingBy)
	case domain.PackingFinished:
		num = processingPackingFinished
		body = appendBool(body, 2, e.IsFinishedSuccessfully)
		body = appendString(body, 3, e.FailureReason)
	case domain.DeliveryStarted:
		num = processingDeliveryStarted
		body = appendString(body, 2, e.DeliveredBy)
	case domain.DeliveryFinished:
		num = processingDeliveryFinished
		body = appendBool(body, 2, e.IsFinishedSuccessfully)
		body = appendString(body, 3, e.FailureReason)
	default:
		return nil, fmt.Errorf("encode order processing value: unsupported event %T", event)
	}
	return appendBytes(nil, num, body), nil
}

// DecodeProcessingEvent returns ErrUnknownEvent when no known variant is set.
func DecodeProcessingEvent(b []byte) (domain.ProcessingEvent, error) {
	fields, err := parseFields(b)
	if err != nil {
		return nil, fmt.Errorf("decode order processing value: %w", err)
	}

	var event domain.ProcessingEvent
	for _, f := range fields {
		if f.typ != protowire.BytesType {
			continue
		}
		body, err := parseFields(f.bytes)
		if err != nil {
			return nil, fmt.Errorf("decode order processing value field %d: %w", f.num, err)
		}

		switch f.num {
		case processingApprovalReceived:
			event = domain.ApprovalReceived{OrderID: body.int64(1), IsApproved: body.bool(2), CreatedBy: body.string(3)}
		case processingPackingStarted:
			event = domain.PackingStarted{OrderID: body.int64(1), PackingBy: body.string(2)}
		case processingPackingFinished:
			event = domain.PackingFinished{OrderID: body.int64(1), IsFinishedSuccessfully: body.bool(2), FailureReason: body.string(3)}
		case processingDeliveryStarted:
			event = domain.DeliveryStarted{OrderID: body.int64(1), DeliveredBy: body.string(2)}
		case processingDeliveryFinished:
			event = domain.DeliveryFinished{OrderID: body.int64(1), IsFinishedSuccessfully: body.bool(2), FailureReason: body.string(3)}
		}
	}
	if event == nil {
		return nil, ErrUnknownEvent
	}
	return event, nil
}

type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

type fieldList []field

// parseFields keeps varint and length-delimited fields and skips the rest.
func parseFields(b []byte) (fieldList, error) {
	var fields fieldList
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		if typ == protowire.VarintType || typ == protowire.BytesType {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// last returns the final occurrence of num, matching proto3 merge rules for scalars.
func (l fieldList) last(num protowire.Number, typ protowire.Type) (field, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].num == num && l[i].typ == typ {
			return l[i], true
		}
	}
	return field{}, false
}

func (l fieldList) int64(num protowire.Number) int64 {
	f, _ := l.last(num, protowire.VarintType)
	return int64(f.varint)
}

func (l fieldList) bool(num protowire.Number) bool {
	f, _ := l.last(num, protowire.VarintType)
	return protowire.DecodeBool(f.varint)
}

func (l fieldList) string(num protowire.Number) string {
	f, _ := l.last(num, protowire.BytesType)
	return string(f.bytes)
}

func (l fieldList) timestamp(num protowire.Number) (time.Time, error) {
	f, ok := l.last(num, protowire.BytesType)
	if !ok {
		return time.Time{}, nil
	}
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(f.bytes, &ts); err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendBytes always writes the field so an empty oneof message still marks its variant.
func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
