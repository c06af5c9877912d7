package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hackabot/bot"
	"hackabot/config"
	"hackabot/db"
	"hackabot/monitoring"
	"hackabot/telegram"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

type nopSender struct{}

func (nopSender) Send(chatId int64, text string) error { return nil }
func (nopSender) SendPoll(node *db.Node, when string) (*telegram.PollResult, error) {
	return &telegram.PollResult{}, nil
}
func (nopSender) SendEventReminder(node *db.Node, event *db.Event) error { return nil }

func (nopSender) AnswerCallbackQuery(callbackId string) error { return nil }

func (nopSender) SendChatAction(chatId int64, action string) error { return nil }

func (nopSender) DownloadFile(fileId string) ([]byte, error) { return nil, nil }

func (nopSender) IsChatAdmin(chatId int64, userId int64) (bool, error) { return false, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database := &db.Database{}
	path := filepath.Join(t.TempDir(), "test.db")

	if !database.OpenPath(path, logger.Default.LogMode(logger.Silent)) {
		t.Fatal("opening test database failed")
	}

	t.Cleanup(database.Close)

	conf := &config.Config{WebhookSecret: "hunter2"}

	inbound := &bot.Bot{
		Db:       database,
		Client:   nopSender{},
		Reporter: &monitoring.LogReporter{},
		Config:   conf,
	}

	return &Server{Db: database, Bot: inbound, Config: conf}
}

func postWebhook(router *gin.Engine, secret string, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")

	if secret != "" {
		request.Header.Set(secretTokenHeader, secret)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	return recorder
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	router := newTestServer(t).NewRouter()

	assert.Equal(t, http.StatusForbidden, postWebhook(router, "", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, postWebhook(router, "wrong", `{}`).Code)
}

func TestWebhookRejectsUnparseableBody(t *testing.T) {
	router := newTestServer(t).NewRouter()

	response := postWebhook(router, "hunter2", `{"update_id": not json`)

	assert.Equal(t, http.StatusBadRequest, response.Code)
	assert.JSONEq(t, `{"ok": false}`, response.Body.String())
}

func TestWebhookAcksUnknownUpdateKinds(t *testing.T) {
	router := newTestServer(t).NewRouter()

	// Valid JSON with no actionable key still gets an ack, so the platform
	// stops redelivering it
	response := postWebhook(router, "hunter2", `{"update_id": 1, "shipping_query": {}}`)

	assert.Equal(t, http.StatusOK, response.Code)
	assert.JSONEq(t, `{"ok": true}`, response.Body.String())
}

func TestWebhookProcessesGroupMessage(t *testing.T) {
	server := newTestServer(t)
	router := server.NewRouter()

	body := `{
		"update_id": 1,
		"message": {
			"message_id": 555,
			"date": 1756641600,
			"text": "hello world",
			"from": {"id": 42, "is_bot": false, "first_name": "Ada", "username": "ada"},
			"chat": {"id": -100123, "type": "supergroup", "title": "Testville Chat"}
		}
	}`

	response := postWebhook(router, "hunter2", body)
	assert.Equal(t, http.StatusOK, response.Code)

	var messages int64
	server.Db.Conn.Model(&db.Message{}).Count(&messages)
	assert.EqualValues(t, 1, messages)
}

func TestNodesEndpoint(t *testing.T) {
	server := newTestServer(t)
	router := server.NewRouter()

	group, err := server.Db.UpsertGroup(-100123, "Testville Chat")
	assert.NoError(t, err)

	node := db.Node{Name: "Testville", GroupId: &group.Id}
	assert.NoError(t, server.Db.Conn.Create(&node).Error)

	request := httptest.NewRequest(http.MethodGet, "/api/nodes", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, recorder.Body.String(), `"slug":"testville"`)
}

func TestNodeViewMarksAttendingPeopleFirst(t *testing.T) {
	server := newTestServer(t)

	group, err := server.Db.UpsertGroup(-100123, "Testville Chat")
	assert.NoError(t, err)

	node := db.Node{Name: "Testville", GroupId: &group.Id}
	assert.NoError(t, server.Db.Conn.Create(&node).Error)

	listed := func(telegramId int64, name string, bio string) *db.Person {
		person, err := server.Db.UpsertPerson(telegramId, false, name, "")
		assert.NoError(t, err)

		person.Privacy = false
		person.Bio = bio
		assert.NoError(t, server.Db.SavePerson(person))
		assert.NoError(t, server.Db.UpsertMembership(group, person, false, nil))

		return person
	}

	listed(42, "Ada", "")
	voter := listed(43, "Zoe", "Builds <b>things</b>")

	poll := db.Poll{
		TelegramId: "poll-1",
		NodeId:     &node.Id,
		CreatedAt:  time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC),
	}
	assert.NoError(t, server.Db.Conn.Create(&poll).Error)
	assert.NoError(t, server.Db.UpsertPollAnswer(&poll, voter, true))

	// Wednesday of the poll week
	view := server.nodeToView(&node, time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC))

	assert.Len(t, view.People, 2)
	assert.Equal(t, "Zoe", view.People[0].Name)
	assert.True(t, view.People[0].Attending)
	assert.Equal(t, "Builds &lt;b&gt;things&lt;/b&gt;", view.People[0].Bio)
	assert.Equal(t, "Ada", view.People[1].Name)
	assert.False(t, view.People[1].Attending)
}

func TestNodeDetailNotFound(t *testing.T) {
	router := newTestServer(t).NewRouter()

	request := httptest.NewRequest(http.MethodGet, "/api/nodes/nowhere", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestPhotoImageEndpoint(t *testing.T) {
	server := newTestServer(t)
	router := server.NewRouter()

	photo := db.MeetupPhoto{NodeId: 1, TelegramFileId: "file-1", ImageData: []byte{0xff, 0xd8}}
	assert.NoError(t, server.Db.CreatePhoto(&photo))

	request := httptest.NewRequest(http.MethodGet, "/api/photos/1/image", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "image/jpeg", recorder.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8}, recorder.Body.Bytes())
}
