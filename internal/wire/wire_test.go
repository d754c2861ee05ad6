package wire

import (
	"bufio"
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// TestRequestRoundTrip verifies that every request variant decodes back to
// itself after encoding.
func TestRequestRoundTrip(t *testing.T) {
	requests := []Request{
		ListRequest{},
		JoinRequest{Room: uuid.New()},
		MessageRequest{Text: "hello there"},
		MessageRequest{Text: ""},
		MessageRequest{Text: "unicode: épée 日本語"},
		PingRequest{},
	}

	for _, req := range requests {
		frame, err := EncodeRequest(req)
		if err != nil {
			t.Fatalf("EncodeRequest(%#v) returned error: %v", req, err)
		}

		decoded, err := DecodeRequest(string(frame))
		if err != nil {
			t.Fatalf("DecodeRequest(%q) returned error: %v", frame, err)
		}

		if !reflect.DeepEqual(req, decoded) {
			t.Errorf("round trip mismatch: sent %#v, got %#v", req, decoded)
		}
	}
}

// TestResponseRoundTrip verifies that every response variant decodes back to
// itself after encoding.
func TestResponseRoundTrip(t *testing.T) {
	responses := []Response{
		RoomsResponse{Rooms: []Room{}},
		RoomsResponse{Rooms: []Room{
			{ID: uuid.New(), Name: "Main", Num: 2},
			{ID: uuid.New(), Name: "side room", Num: 1},
		}},
		JoinedResponse{Room: uuid.New()},
		MessageResponse{Text: "relayed text"},
		PingResponse{},
	}

	for _, resp := range responses {
		frame, err := EncodeResponse(resp)
		if err != nil {
			t.Fatalf("EncodeResponse(%#v) returned error: %v", resp, err)
		}

		decoded, err := DecodeResponse(string(frame))
		if err != nil {
			t.Fatalf("DecodeResponse(%q) returned error: %v", frame, err)
		}

		if !reflect.DeepEqual(resp, decoded) {
			t.Errorf("round trip mismatch: sent %#v, got %#v", resp, decoded)
		}
	}
}

// TestDecodeRequestErrors verifies that malformed frames surface typed decode
// errors instead of being dropped silently.
func TestDecodeRequestErrors(t *testing.T) {
	cases := []struct {
		name string
		line string
		want error
	}{
		{"empty frame", "\n", ErrEmptyFrame},
		{"unknown verb", "Subscribe topic\n", ErrUnknownVerb},
		{"bad room id", "Join not-a-uuid\n", ErrBadRoomID},
		{"missing room id", "Join\n", ErrBadRoomID},
		{"list with payload", "List extra\n", ErrBadPayload},
		{"ping with payload", "Ping extra\n", ErrBadPayload},
		{"invalid utf8", "Message \xff\xfe\n", ErrInvalidUTF8},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRequest(tc.line)
			if !errors.Is(err, tc.want) {
				t.Errorf("DecodeRequest(%q) error = %v, want %v", tc.line, err, tc.want)
			}
		})
	}
}

// TestEncodeRejectsDelimiter verifies payloads containing the frame delimiter
// are rejected at encode time, never escaped.
func TestEncodeRejectsDelimiter(t *testing.T) {
	if _, err := EncodeResponse(MessageResponse{Text: "line one\nline two"}); !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload for embedded newline, got %v", err)
	}
	if _, err := EncodeRequest(MessageRequest{Text: "cr\rhere"}); !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload for embedded carriage return, got %v", err)
	}
}

// TestReadRequestFrameTooLong verifies that an oversized frame aborts the
// read with ErrFrameTooLong before the whole line is buffered.
func TestReadRequestFrameTooLong(t *testing.T) {
	big := "Message " + strings.Repeat("a", MaxFrameSize) + "\n"
	_, err := ReadRequest(bufio.NewReader(strings.NewReader(big)))
	if !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("expected ErrFrameTooLong, got %v", err)
	}
}

// TestReadRequestConsumesSingleFrame verifies frames are consumed one at a
// time, leaving the rest of the stream intact.
func TestReadRequestConsumesSingleFrame(t *testing.T) {
	reader := bufio.NewReader(bytes.NewBufferString("List\nPing\n"))

	first, err := ReadRequest(reader)
	if err != nil {
		t.Fatalf("first ReadRequest returned error: %v", err)
	}
	if _, ok := first.(ListRequest); !ok {
		t.Errorf("first frame = %#v, want ListRequest", first)
	}

	second, err := ReadRequest(reader)
	if err != nil {
		t.Fatalf("second ReadRequest returned error: %v", err)
	}
	if _, ok := second.(PingRequest); !ok {
		t.Errorf("second frame = %#v, want PingRequest", second)
	}
}
