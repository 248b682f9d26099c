package relay

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type recordingDeliverer struct {
	targeted   map[int64][][]byte
	broadcasts [][]byte
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{targeted: make(map[int64][][]byte)}
}

func (d *recordingDeliverer) DeliverLocal(userID int64, data []byte) {
	d.targeted[userID] = append(d.targeted[userID], data)
}

func (d *recordingDeliverer) BroadcastLocal(data []byte) {
	d.broadcasts = append(d.broadcasts, data)
}

func newTestRelay(local LocalDeliverer) *Relay {
	return &Relay{
		topic:    "courseboard.events",
		instance: "instance-a",
		local:    local,
		log:      zerolog.Nop(),
	}
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"origin":"instance-b","userId":42,"data":{"event":"notification"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.Origin != "instance-b" {
		t.Errorf("expected origin instance-b, got %s", env.Origin)
	}
	if env.UserID != 42 {
		t.Errorf("expected user 42, got %d", env.UserID)
	}
	if string(env.Data) != `{"event":"notification"}` {
		t.Errorf("data not preserved: %s", env.Data)
	}
}

func TestDecodeEnvelope_MissingOrigin(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"userId":42,"data":{}}`))
	if !errors.Is(err, ErrMissingOrigin) {
		t.Errorf("expected ErrMissingOrigin, got %v", err)
	}
}

func TestDecodeEnvelope_MalformedJSON(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed envelope")
	}
}

func TestHandle_ForeignTargetedDelivery(t *testing.T) {
	local := newRecordingDeliverer()
	r := newTestRelay(local)

	r.handle([]byte(`{"origin":"instance-b","userId":42,"data":{"event":"notification"}}`))

	if len(local.targeted[42]) != 1 {
		t.Fatalf("expected 1 local delivery for user 42, got %d", len(local.targeted[42]))
	}
	if len(local.broadcasts) != 0 {
		t.Error("targeted envelope must not broadcast")
	}
}

func TestHandle_ForeignBroadcast(t *testing.T) {
	local := newRecordingDeliverer()
	r := newTestRelay(local)

	r.handle([]byte(`{"origin":"instance-b","data":{"event":"chat_message"}}`))

	if len(local.broadcasts) != 1 {
		t.Fatalf("expected 1 local broadcast, got %d", len(local.broadcasts))
	}
}

func TestHandle_OwnOriginDropped(t *testing.T) {
	local := newRecordingDeliverer()
	r := newTestRelay(local)

	r.handle([]byte(`{"origin":"instance-a","userId":42,"data":{"event":"notification"}}`))

	if len(local.targeted) != 0 || len(local.broadcasts) != 0 {
		t.Error("relay must drop envelopes it published itself")
	}
}

func TestHandle_MalformedEnvelopeDropped(t *testing.T) {
	local := newRecordingDeliverer()
	r := newTestRelay(local)

	r.handle([]byte(`garbage`))
	r.handle([]byte(`{"userId":42,"data":{}}`))

	if len(local.targeted) != 0 || len(local.broadcasts) != 0 {
		t.Error("malformed envelopes must be dropped")
	}
}
