package sqsqueue

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

func TestAttemptOf(t *testing.T) {
	key := string(types.MessageSystemAttributeNameApproximateReceiveCount)
	cases := []struct {
		attrs map[string]string
		want  int
	}{
		{nil, 1},
		{map[string]string{key: "1"}, 1},
		{map[string]string{key: "3"}, 3},
		{map[string]string{key: "garbage"}, 1},
		{map[string]string{key: "0"}, 1},
	}
	for _, tc := range cases {
		m := types.Message{Attributes: tc.attrs}
		if got := attemptOf(m); got != tc.want {
			t.Fatalf("attemptOf(%v) = %d, want %d", tc.attrs, got, tc.want)
		}
	}
}

func TestTaskEnvelopeRoundTrip(t *testing.T) {
	in := Task{
		Type:     TaskNotifySurvey,
		Notify:   &NotifyInfo{Phone: "5511999990000", Name: "Ana", Stage: "ready"},
		ChargeID: 0,
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Zero payload fields stay off the wire.
	if string(b) != `{"type":"notify:survey","notify":{"phone":"5511999990000","name":"Ana","stage":"ready"}}` {
		t.Fatalf("encoded %s", b)
	}

	var out Task
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Notify == nil || out.Notify.Stage != "ready" {
		t.Fatalf("decoded %+v", out)
	}
}
