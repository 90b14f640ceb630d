package transport

import (
	"fmt"

	"github.com/duh-rpc/duh-go"
	v1 "github.com/duh-rpc/duh-go/proto/v1"
	"github.com/kapetan-io/errors"
	"google.golang.org/protobuf/proto"
)

// Each error type matches any error of the same type when the target has no message, otherwise
// the messages must be equal. This allows both errors.Is(err, &ErrConflict{}) and sentinel checks.

func reply(code int, msg string) proto.Message {
	return &v1.Reply{
		Message:  msg,
		CodeText: duh.CodeText(code),
		Code:     int32(code),
	}
}

// -------------------------------------------------

// ErrRequestFailed is used to tell the client that the request was valid, but it failed for some
// reason the client cannot fix by retrying. IE: the configuration references something that does
// not exist.
type ErrRequestFailed struct {
	msg string
}

func NewRequestFailed(msg string, args ...any) *ErrRequestFailed {
	return &ErrRequestFailed{msg: fmt.Sprintf(msg, args...)}
}

func (e *ErrRequestFailed) Error() string {
	return e.msg
}

func (e *ErrRequestFailed) Is(target error) bool {
	var err *ErrRequestFailed
	if !errors.As(target, &err) {
		return false
	}
	return err.msg == "" || err.msg == e.msg
}

func (e *ErrRequestFailed) Code() int {
	return duh.CodeRequestFailed
}

func (e *ErrRequestFailed) ProtoMessage() proto.Message {
	return reply(duh.CodeRequestFailed, e.msg)
}

func (e *ErrRequestFailed) Details() map[string]string {
	return nil
}

func (e *ErrRequestFailed) Message() string {
	return e.msg
}

var _ duh.Error = &ErrRequestFailed{}

// -------------------------------------------------

// ErrInvalidOption is used to indicate an option provided was invalid for some reason
type ErrInvalidOption struct {
	msg string
}

func NewInvalidOption(msg string, args ...any) *ErrInvalidOption {
	return &ErrInvalidOption{msg: fmt.Sprintf(msg, args...)}
}

func (e *ErrInvalidOption) Error() string {
	return e.msg
}

func (e *ErrInvalidOption) Is(target error) bool {
	var err *ErrInvalidOption
	if !errors.As(target, &err) {
		return false
	}
	return err.msg == "" || err.msg == e.msg
}

func (e *ErrInvalidOption) Code() int {
	return duh.CodeBadRequest
}

func (e *ErrInvalidOption) ProtoMessage() proto.Message {
	return reply(duh.CodeBadRequest, e.msg)
}

func (e *ErrInvalidOption) Details() map[string]string {
	return nil
}

func (e *ErrInvalidOption) Message() string {
	return e.msg
}

var _ duh.Error = &ErrInvalidOption{}

// -------------------------------------------------

// ErrRetryRequest tells the client the request was valid but lost a race with another write to
// the same queue. Sending the request again is expected to succeed.
type ErrRetryRequest struct {
	msg string
}

func NewRetryRequest(msg string, args ...any) *ErrRetryRequest {
	return &ErrRetryRequest{msg: fmt.Sprintf(msg, args...)}
}

func (e *ErrRetryRequest) Error() string {
	return e.msg
}

func (e *ErrRetryRequest) Is(target error) bool {
	var err *ErrRetryRequest
	if !errors.As(target, &err) {
		return false
	}
	return err.msg == "" || err.msg == e.msg
}

func (e *ErrRetryRequest) Code() int {
	return duh.CodeRetryRequest
}

func (e *ErrRetryRequest) ProtoMessage() proto.Message {
	return reply(duh.CodeRetryRequest, e.msg)
}

func (e *ErrRetryRequest) Details() map[string]string {
	return nil
}

func (e *ErrRetryRequest) Message() string {
	return e.msg
}

var _ duh.Error = &ErrRetryRequest{}

// -------------------------------------------------

// ErrConflict is used to indicate the request conflicts with the current state of a queue,
// subqueue or module. IE: removing a module which a queue depends upon.
type ErrConflict struct {
	msg string
}

func NewConflict(msg string, args ...any) *ErrConflict {
	return &ErrConflict{msg: fmt.Sprintf(msg, args...)}
}

func (e *ErrConflict) Error() string {
	return e.msg
}

func (e *ErrConflict) Is(target error) bool {
	var err *ErrConflict
	if !errors.As(target, &err) {
		return false
	}
	return err.msg == "" || err.msg == e.msg
}

func (e *ErrConflict) Code() int {
	return duh.CodeBadRequest
}

func (e *ErrConflict) ProtoMessage() proto.Message {
	return reply(duh.CodeBadRequest, e.msg)
}

func (e *ErrConflict) Details() map[string]string {
	return nil
}

func (e *ErrConflict) Message() string {
	return e.msg
}

var _ duh.Error = &ErrConflict{}
