package notify

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threefoldtech/shipgate/pkg/pipeline"
)

const token = "123456:test-token"

type sent struct {
	chatID string
	text   string
}

func newBotServer(t *testing.T, messages chan<- sent) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("/bot%s/getMe", token), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"shipgate","username":"shipgate_bot"}}`)
	})
	mux.HandleFunc(fmt.Sprintf("/bot%s/sendMessage", token), func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("chat_id") == "13" {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		messages <- sent{chatID: r.FormValue("chat_id"), text: r.FormValue("text")}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func failedReport() pipeline.Report {
	started := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	return pipeline.Report{
		ID:         uuid.MustParse("8d0b8e8e-3c4a-4a57-9a43-7c5d0d3f0c11"),
		Project:    "influencer-agent",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Status:     pipeline.StatusFailed,
		Stages: []pipeline.StageResult{
			{Name: "checkout", Status: pipeline.StatusSucceeded, Details: pipeline.Details{"commit": "c739069e"}},
			{Name: "gate", Status: pipeline.StatusFailed, Error: "quality gate failed", Details: pipeline.Details{"dashboard": "https://sonar.example.com/dashboard?id=influencer-agent"}},
			{Name: "deploy", Status: pipeline.StatusSkipped},
		},
	}
}

func TestMessage(t *testing.T) {
	msg := Message(failedReport())

	assert.True(t, strings.HasPrefix(msg, "❌ influencer-agent: run failed (1m30s)"))
	assert.Contains(t, msg, "commit: c739069e")
	assert.Contains(t, msg, "gate failed: quality gate failed")
	assert.Contains(t, msg, "https://sonar.example.com/dashboard?id=influencer-agent")

	succeeded := failedReport()
	succeeded.Status = pipeline.StatusSucceeded
	succeeded.Stages = nil
	assert.True(t, strings.HasPrefix(Message(succeeded), "✅"))
}

func TestTelegram(t *testing.T) {
	messages := make(chan sent, 1)
	srv := newBotServer(t, messages)
	endpoint := srv.URL + "/bot%s/%s"

	t.Run("sends the run outcome", func(t *testing.T) {
		notifier, err := NewTelegramWithEndpoint(token, endpoint, 42, zerolog.Nop())
		require.NoError(t, err)

		require.NoError(t, notifier.Notify(failedReport()))

		msg := <-messages
		assert.Equal(t, "42", msg.chatID)
		assert.Equal(t, Message(failedReport()), msg.text)
	})

	t.Run("api error", func(t *testing.T) {
		notifier, err := NewTelegramWithEndpoint(token, endpoint, 13, zerolog.Nop())
		require.NoError(t, err)

		assert.Error(t, notifier.Notify(failedReport()))
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := NewTelegramWithEndpoint("other", endpoint, 42, zerolog.Nop())
		assert.Error(t, err)
	})
}
