// Package wire implements the line-framed text protocol spoken on the raw
// TCP transport. Each frame is one UTF-8 line terminated by '\n'; the first
// word is the verb, the remainder is the payload. Encoding and decoding are
// exact inverses for every request and response variant.
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxFrameSize bounds a single frame including the trailing newline. Frames
// above the limit abort the connection rather than forcing unbounded reads.
const MaxFrameSize = 8192

var (
	// ErrEmptyFrame is returned for a frame with no verb.
	ErrEmptyFrame = errors.New("wire: empty frame")
	// ErrFrameTooLong is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLong = errors.New("wire: frame exceeds maximum size")
	// ErrInvalidUTF8 is returned for frames that are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("wire: frame is not valid UTF-8")
	// ErrUnknownVerb is returned for frames whose verb is not part of the
	// protocol.
	ErrUnknownVerb = errors.New("wire: unknown verb")
	// ErrBadRoomID is returned when a Join or Joined frame carries a payload
	// that is not a UUID.
	ErrBadRoomID = errors.New("wire: malformed room id")
	// ErrBadPayload is returned when a payload is missing, malformed, or
	// contains the frame delimiter.
	ErrBadPayload = errors.New("wire: malformed payload")
)

// Room is one entry of a Rooms response.
type Room struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Num  int       `json:"num"`
}

// Request is a client-to-server frame.
type Request interface {
	isRequest()
}

// ListRequest asks for the current room list.
type ListRequest struct{}

// JoinRequest enters the identified room.
type JoinRequest struct {
	Room uuid.UUID
}

// MessageRequest relays text to the sender's current room.
type MessageRequest struct {
	Text string
}

// PingRequest is the client liveness signal.
type PingRequest struct{}

func (ListRequest) isRequest()    {}
func (JoinRequest) isRequest()    {}
func (MessageRequest) isRequest() {}
func (PingRequest) isRequest()    {}

// Response is a server-to-client frame.
type Response interface {
	isResponse()
}

// RoomsResponse carries the room list.
type RoomsResponse struct {
	Rooms []Room
}

// JoinedResponse confirms room entry.
type JoinedResponse struct {
	Room uuid.UUID
}

// MessageResponse carries text pushed to the client.
type MessageResponse struct {
	Text string
}

// PingResponse is the server liveness probe.
type PingResponse struct{}

func (RoomsResponse) isResponse()   {}
func (JoinedResponse) isResponse()  {}
func (MessageResponse) isResponse() {}
func (PingResponse) isResponse()    {}

// ReadRequest reads one frame from r and decodes it. I/O errors are returned
// as-is; decode errors are one of the Err variants above and the caller is
// expected to drop the connection.
func ReadRequest(r *bufio.Reader) (Request, error) {
	line, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(line)
}

// ReadResponse reads one frame from r and decodes it as a server response.
// Used by test clients; the server never reads responses.
func ReadResponse(r *bufio.Reader) (Response, error) {
	line, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(line)
}

func readFrame(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := r.ReadSlice('\n')
		sb.Write(chunk)
		if sb.Len() > MaxFrameSize {
			return "", ErrFrameTooLong
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return "", err
	}
	return sb.String(), nil
}

// DecodeRequest decodes a single frame, with or without its trailing newline.
func DecodeRequest(line string) (Request, error) {
	verb, rest, err := splitFrame(line)
	if err != nil {
		return nil, err
	}

	switch verb {
	case "List":
		if rest != "" {
			return nil, ErrBadPayload
		}
		return ListRequest{}, nil
	case "Join":
		id, err := uuid.Parse(rest)
		if err != nil {
			return nil, ErrBadRoomID
		}
		return JoinRequest{Room: id}, nil
	case "Message":
		return MessageRequest{Text: rest}, nil
	case "Ping":
		if rest != "" {
			return nil, ErrBadPayload
		}
		return PingRequest{}, nil
	default:
		return nil, ErrUnknownVerb
	}
}

// DecodeResponse decodes a single server frame, with or without its trailing
// newline.
func DecodeResponse(line string) (Response, error) {
	verb, rest, err := splitFrame(line)
	if err != nil {
		return nil, err
	}

	switch verb {
	case "Rooms":
		var rooms []Room
		if err := json.Unmarshal([]byte(rest), &rooms); err != nil {
			return nil, ErrBadPayload
		}
		return RoomsResponse{Rooms: rooms}, nil
	case "Joined":
		id, err := uuid.Parse(rest)
		if err != nil {
			return nil, ErrBadRoomID
		}
		return JoinedResponse{Room: id}, nil
	case "Message":
		return MessageResponse{Text: rest}, nil
	case "Ping":
		if rest != "" {
			return nil, ErrBadPayload
		}
		return PingResponse{}, nil
	default:
		return nil, ErrUnknownVerb
	}
}

func splitFrame(line string) (verb, rest string, err error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return "", "", ErrEmptyFrame
	}
	if len(line) > MaxFrameSize {
		return "", "", ErrFrameTooLong
	}
	if !utf8.ValidString(line) {
		return "", "", ErrInvalidUTF8
	}
	if strings.ContainsRune(line, '\n') {
		return "", "", ErrBadPayload
	}

	verb, rest, _ = strings.Cut(line, " ")
	return verb, rest, nil
}

// EncodeRequest encodes a request as one newline-terminated frame.
func EncodeRequest(req Request) ([]byte, error) {
	switch r := req.(type) {
	case ListRequest:
		return []byte("List\n"), nil
	case JoinRequest:
		return []byte("Join " + r.Room.String() + "\n"), nil
	case MessageRequest:
		if !validText(r.Text) {
			return nil, ErrBadPayload
		}
		return []byte("Message " + r.Text + "\n"), nil
	case PingRequest:
		return []byte("Ping\n"), nil
	default:
		return nil, ErrUnknownVerb
	}
}

// EncodeResponse encodes a response as one newline-terminated frame. Text
// payloads containing the frame delimiter are rejected, never escaped.
func EncodeResponse(resp Response) ([]byte, error) {
	switch r := resp.(type) {
	case RoomsResponse:
		rooms := r.Rooms
		if rooms == nil {
			rooms = []Room{}
		}
		data, err := json.Marshal(rooms)
		if err != nil {
			return nil, ErrBadPayload
		}
		return append(append([]byte("Rooms "), data...), '\n'), nil
	case JoinedResponse:
		return []byte("Joined " + r.Room.String() + "\n"), nil
	case MessageResponse:
		if !validText(r.Text) {
			return nil, ErrBadPayload
		}
		return []byte("Message " + r.Text + "\n"), nil
	case PingResponse:
		return []byte("Ping\n"), nil
	default:
		return nil, ErrUnknownVerb
	}
}

func validText(text string) bool {
	if len(text) > MaxFrameSize-len("Message \n") {
		return false
	}
	return utf8.ValidString(text) && !strings.ContainsAny(text, "\n\r")
}
