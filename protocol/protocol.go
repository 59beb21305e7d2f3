// Package protocol defines the line-oriented text protocol spoken between
// buffer clients and the buffer server. Each request and each response is a
// single line. Lines are parsed once into a closed set of variants; there is
// no stringly-typed dispatch beyond this package.
//
// Client to server:
//
//	HELLO <PRODUCER|CONSUMER> <id>   (handshake, first line only)
//	PRODUCE <payload>
//	CONSUME
//	STATUS
//	QUIT
//
// Server to client:
//
//	WELCOME
//	OK[ <payload>]
//	FULL
//	EMPTY
//	STATUS <len> <capacity>
//	ERROR <reason>
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned when a protocol line does not match any
	// known request or response form.
	ErrMalformed = errors.New("malformed protocol line")

	// ErrBadHandshake is returned when the first line of a connection is
	// not a well-formed HELLO.
	ErrBadHandshake = errors.New("bad handshake")
)

// Error reasons carried on ERROR response lines.
const (
	ReasonMalformedRequest = "malformed_request"
	ReasonBadHandshake     = "bad_handshake"
	ReasonRoleMismatch     = "role_mismatch"
)

// Role identifies which side of the buffer a session drives.
type Role int

const (
	RoleProducer Role = iota + 1
	RoleConsumer
)

// String returns the protocol word for the role.
func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "PRODUCER"
	case RoleConsumer:
		return "CONSUMER"
	default:
		return "UNKNOWN"
	}
}

// Handshake is the parsed first line of a connection, identifying the
// session's role and its client-chosen positive id.
type Handshake struct {
	Role Role
	ID   uint64
}

// Line renders the handshake as its wire form, without a terminator.
func (h Handshake) Line() string {
	return fmt.Sprintf("HELLO %s %d", h.Role, h.ID)
}

// ParseHandshake parses the first line of a connection. The line must be
// exactly `HELLO <PRODUCER|CONSUMER> <id>` with a positive integer id.
//
// Parameters:
//   - line: The raw handshake line, without its terminator
//
// Returns:
//   - The parsed Handshake, or ErrBadHandshake if the line is not well-formed
func ParseHandshake(line string) (Handshake, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "HELLO" {
		return Handshake{}, ErrBadHandshake
	}

	var role Role
	switch fields[1] {
	case "PRODUCER":
		role = RoleProducer
	case "CONSUMER":
		role = RoleConsumer
	default:
		return Handshake{}, ErrBadHandshake
	}

	id, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil || id == 0 {
		return Handshake{}, ErrBadHandshake
	}

	return Handshake{Role: role, ID: id}, nil
}

// RequestKind enumerates the closed set of request variants.
type RequestKind int

const (
	KindProduce RequestKind = iota + 1
	KindConsume
	KindStatus
	KindQuit
)

// String returns the protocol verb for the request kind.
func (k RequestKind) String() string {
	switch k {
	case KindProduce:
		return "PRODUCE"
	case KindConsume:
		return "CONSUME"
	case KindStatus:
		return "STATUS"
	case KindQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

// Request is one parsed client request. Payload is set only for KindProduce
// and is opaque: everything after the first space of the line, preserved
// byte for byte.
type Request struct {
	Kind    RequestKind
	Payload string
}

// Line renders the request as its wire form, without a terminator.
func (r Request) Line() string {
	if r.Kind == KindProduce {
		return "PRODUCE " + r.Payload
	}
	return r.Kind.String()
}

// ParseRequest parses one request line into its variant. PRODUCE requires a
// non-empty payload; the bare verbs reject trailing content so that a typo
// like `CONSUME now` is not silently accepted.
//
// Parameters:
//   - line: The raw request line, without its terminator
//
// Returns:
//   - The parsed Request, or ErrMalformed if the line matches no variant
func ParseRequest(line string) (Request, error) {
	if line == "" {
		return Request{}, ErrMalformed
	}

	verb, rest, hasRest := strings.Cut(line, " ")
	switch verb {
	case "PRODUCE":
		if !hasRest || rest == "" {
			return Request{}, ErrMalformed
		}
		return Request{Kind: KindProduce, Payload: rest}, nil
	case "CONSUME":
		if hasRest {
			return Request{}, ErrMalformed
		}
		return Request{Kind: KindConsume}, nil
	case "STATUS":
		if hasRest {
			return Request{}, ErrMalformed
		}
		return Request{Kind: KindStatus}, nil
	case "QUIT":
		if hasRest {
			return Request{}, ErrMalformed
		}
		return Request{Kind: KindQuit}, nil
	default:
		return Request{}, ErrMalformed
	}
}

// ResponseKind enumerates the closed set of response variants.
type ResponseKind int

const (
	RespWelcome ResponseKind = iota + 1
	RespOK
	RespFull
	RespEmpty
	RespStatus
	RespError
)

// Response is one parsed server response. Payload is the consumed item for
// RespOK (may be empty for acknowledgement-only OK) or the reason for
// RespError. Len and Capacity are set only for RespStatus.
type Response struct {
	Kind     ResponseKind
	Payload  string
	Len      int
	Capacity int
}

// Welcome returns the handshake acknowledgement response.
func Welcome() Response { return Response{Kind: RespWelcome} }

// OK returns a bare acknowledgement response.
func OK() Response { return Response{Kind: RespOK} }

// OKPayload returns an acknowledgement carrying a consumed payload.
func OKPayload(payload string) Response {
	return Response{Kind: RespOK, Payload: payload}
}

// Full returns the buffer-at-capacity response.
func Full() Response { return Response{Kind: RespFull} }

// Empty returns the buffer-empty response.
func Empty() Response { return Response{Kind: RespEmpty} }

// Status returns the buffer occupancy response.
func Status(length, capacity int) Response {
	return Response{Kind: RespStatus, Len: length, Capacity: capacity}
}

// ErrorResponse returns an ERROR response with the given reason token.
func ErrorResponse(reason string) Response {
	return Response{Kind: RespError, Payload: reason}
}

// Line renders the response as its wire form, without a terminator.
func (r Response) Line() string {
	switch r.Kind {
	case RespWelcome:
		return "WELCOME"
	case RespOK:
		if r.Payload == "" {
			return "OK"
		}
		return "OK " + r.Payload
	case RespFull:
		return "FULL"
	case RespEmpty:
		return "EMPTY"
	case RespStatus:
		return fmt.Sprintf("STATUS %d %d", r.Len, r.Capacity)
	case RespError:
		return "ERROR " + r.Payload
	default:
		return "ERROR internal"
	}
}

// ParseResponse parses one server response line into its variant.
//
// Parameters:
//   - line: The raw response line, without its terminator
//
// Returns:
//   - The parsed Response, or ErrMalformed if the line matches no variant
func ParseResponse(line string) (Response, error) {
	if line == "" {
		return Response{}, ErrMalformed
	}

	verb, rest, hasRest := strings.Cut(line, " ")
	switch verb {
	case "WELCOME":
		if hasRest {
			return Response{}, ErrMalformed
		}
		return Welcome(), nil
	case "OK":
		if !hasRest {
			return OK(), nil
		}
		return OKPayload(rest), nil
	case "FULL":
		if hasRest {
			return Response{}, ErrMalformed
		}
		return Full(), nil
	case "EMPTY":
		if hasRest {
			return Response{}, ErrMalformed
		}
		return Empty(), nil
	case "STATUS":
		fields := strings.Fields(rest)
		if !hasRest || len(fields) != 2 {
			return Response{}, ErrMalformed
		}
		length, err := strconv.Atoi(fields[0])
		if err != nil || length < 0 {
			return Response{}, ErrMalformed
		}
		capacity, err := strconv.Atoi(fields[1])
		if err != nil || capacity < 1 {
			return Response{}, ErrMalformed
		}
		return Status(length, capacity), nil
	case "ERROR":
		if !hasRest || rest == "" {
			return Response{}, ErrMalformed
		}
		return ErrorResponse(rest), nil
	default:
		return Response{}, ErrMalformed
	}
}

// ServerError is an ERROR response surfaced to client callers as a Go error.
type ServerError struct {
	Reason string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return "server error: " + e.Reason
}
