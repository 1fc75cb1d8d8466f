package dispatcher

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/livedesk-ai/livedesk/internal/config"
	"github.com/livedesk-ai/livedesk/internal/hub"
	"github.com/livedesk-ai/livedesk/internal/line"
	"github.com/livedesk-ai/livedesk/internal/notify"
	"github.com/livedesk-ai/livedesk/internal/router"
	"github.com/livedesk-ai/livedesk/internal/session"
	"github.com/livedesk-ai/livedesk/internal/store"
)

const testSecret = "test-channel-secret"

// --- fakes ---

type memUsers struct {
	m map[string]*store.UserState
}

func newMemUsers() *memUsers { return &memUsers{m: make(map[string]*store.UserState)} }

func (s *memUsers) GetOrCreate(ctx context.Context, userID, displayName, pictureURL string) (*store.UserState, error) {
	st, ok := s.m[userID]
	if !ok {
		st = &store.UserState{UserID: userID, Mode: store.ModeBot, CreatedAt: time.Now()}
		s.m[userID] = st
	}
	if displayName != "" {
		st.DisplayName = displayName
	}
	if pictureURL != "" {
		st.PictureURL = pictureURL
	}
	cp := *st
	return &cp, nil
}

func (s *memUsers) Get(ctx context.Context, userID string) (*store.UserState, error) {
	st, ok := s.m[userID]
	if !ok {
		return nil, fmt.Errorf("user %s not found", userID)
	}
	cp := *st
	return &cp, nil
}

func (s *memUsers) SetMode(ctx context.Context, userID string, mode store.Mode) error {
	st, ok := s.m[userID]
	if !ok {
		st = &store.UserState{UserID: userID}
		s.m[userID] = st
	}
	st.Mode = mode
	return nil
}

func (s *memUsers) TouchActivity(ctx context.Context, userID string, at time.Time) error {
	if st, ok := s.m[userID]; ok {
		st.LastActivity = at
	}
	return nil
}

func (s *memUsers) List(ctx context.Context) ([]store.UserState, error) {
	var out []store.UserState
	for _, st := range s.m {
		out = append(out, *st)
	}
	return out, nil
}

type memHistory struct {
	records []store.ChatRecord
	failOn  string // bodies containing this substring fail to append
}

func (s *memHistory) Append(ctx context.Context, rec *store.ChatRecord) error {
	if s.failOn != "" && strings.Contains(rec.Body, s.failOn) {
		return errors.New("history write failed")
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *memHistory) History(ctx context.Context, userID string, limit int) ([]store.ChatRecord, error) {
	var out []store.ChatRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memHistory) Latest(ctx context.Context, userID string) (*store.ChatRecord, error) {
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].UserID == userID {
			cp := s.records[i]
			return &cp, nil
		}
	}
	return nil, errors.New("no records")
}

func (s *memHistory) bySender(sender string) []store.ChatRecord {
	var out []store.ChatRecord
	for _, r := range s.records {
		if r.SenderType == sender {
			out = append(out, r)
		}
	}
	return out
}

type memActivity struct {
	events []store.FriendActivity
}

func (s *memActivity) Record(ctx context.Context, a *store.FriendActivity) error {
	s.events = append(s.events, *a)
	return nil
}

func (s *memActivity) Recent(ctx context.Context, limit int) ([]store.FriendActivity, error) {
	if len(s.events) > limit {
		return s.events[len(s.events)-limit:], nil
	}
	return s.events, nil
}

type memNotifications struct {
	rows []store.Notification
}

func (s *memNotifications) Insert(ctx context.Context, n *store.Notification) error {
	s.rows = append(s.rows, *n)
	return nil
}

func (s *memNotifications) Pending(ctx context.Context, limit int) ([]store.Notification, error) {
	var out []store.Notification
	for _, n := range s.rows {
		if n.Status == store.NotificationPending && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memNotifications) MarkSent(ctx context.Context, id, channelMessageID string) error { return nil }
func (s *memNotifications) MarkFailed(ctx context.Context, id, errText string) error        { return nil }

func (s *memNotifications) Get(ctx context.Context, id string) (*store.Notification, error) {
	for i := range s.rows {
		if s.rows[i].ID == id {
			return &s.rows[i], nil
		}
	}
	return nil, errors.New("not found")
}

type fakePlatform struct {
	replies  []string
	pushes   []string
	replyErr error
}

func (f *fakePlatform) ReplyMessage(ctx context.Context, replyToken, text string) error {
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakePlatform) PushMessage(ctx context.Context, userID, text string) error {
	f.pushes = append(f.pushes, text)
	return nil
}

func (f *fakePlatform) GetProfile(ctx context.Context, userID string) (*line.Profile, error) {
	return &line.Profile{UserID: userID, DisplayName: "สมชาย"}, nil
}

func (f *fakePlatform) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	return []byte("binary"), nil
}

func (f *fakePlatform) StartLoading(ctx context.Context, userID string, seconds int) error {
	return nil
}

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func (f *fakeProvider) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return f.response, f.err
}

func (f *fakeProvider) AnalyzeDocument(ctx context.Context, prompt string, doc []byte, fileName string) (string, error) {
	return f.response, f.err
}

func (f *fakeProvider) Name() string { return "fake" }

type recordingObserver struct {
	id     string
	events []string
}

func (o *recordingObserver) ID() string { return o.id }

func (o *recordingObserver) Send(data []byte) error {
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	o.events = append(o.events, frame.Type)
	return nil
}

func (o *recordingObserver) count(eventType string) int {
	n := 0
	for _, e := range o.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// --- harness ---

type testEnv struct {
	d        *Dispatcher
	users    *memUsers
	history  *memHistory
	activity *memActivity
	notifs   *memNotifications
	platform *fakePlatform
	observer *recordingObserver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Line.ChannelSecret = testSecret

	env := &testEnv{
		users:    newMemUsers(),
		history:  &memHistory{},
		activity: &memActivity{},
		notifs:   &memNotifications{},
		platform: &fakePlatform{},
		observer: &recordingObserver{id: "dash"},
	}

	h := hub.New()
	h.Connect(env.observer)

	sessions := session.NewService(env.users)
	rt := router.New(&fakeProvider{response: "คำตอบจากบอท"}, cfg.Handoff.ApologyText)
	queue := notify.NewQueue(env.notifs, nil)

	env.d = New(cfg, env.platform, sessions, rt, h, queue, env.history, env.activity)
	return env
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func textDelivery(userID, text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"destination": "bot",
		"events": []map[string]any{{
			"type":       "message",
			"replyToken": "rt-1",
			"source":     map[string]any{"type": "user", "userId": userID},
			"message":    map[string]any{"id": "m-1", "type": "text", "text": text},
		}},
	})
	return body
}

// --- tests ---

func TestHandleDeliveryBadSignature(t *testing.T) {
	env := newTestEnv(t)
	body := textDelivery("U1", "สวัสดี")

	_, err := env.d.HandleDelivery(context.Background(), body, "bogus-signature")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("error = %v, want ErrBadSignature", err)
	}
	if len(env.history.records) != 0 {
		t.Error("records written despite bad signature")
	}
}

func TestHandleDeliveryMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	body := []byte("{not json")

	res, err := env.d.HandleDelivery(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("error = %v, want nil for malformed body", err)
	}
	if res.Processed != 0 || res.Failed != 0 {
		t.Errorf("result = %+v, want zero", res)
	}
}

func TestAutoReplyInBotMode(t *testing.T) {
	env := newTestEnv(t)
	body := textDelivery("U1", "สวัสดีครับ")

	res, err := env.d.HandleDelivery(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	if len(env.platform.replies) != 1 || env.platform.replies[0] != "คำตอบจากบอท" {
		t.Errorf("replies = %v", env.platform.replies)
	}
	if got := env.history.bySender("user"); len(got) != 1 {
		t.Errorf("user records = %d, want 1", len(got))
	}
	if got := env.history.bySender("ai"); len(got) != 1 {
		t.Errorf("ai records = %d, want 1", len(got))
	}
	for _, ev := range []string{"new_message", "bot_typing_start", "bot_typing_stop", "bot_response_complete"} {
		if env.observer.count(ev) != 1 {
			t.Errorf("observer saw %d %s events, want 1", env.observer.count(ev), ev)
		}
	}
}

// Handoff phrase in bot mode: mode flips to live_manual, the user gets
// the acknowledgement, exactly one chat_request lands in the outbox, and
// the dashboards hear about it.
func TestHandoffPhraseStartsLiveChat(t *testing.T) {
	env := newTestEnv(t)
	body := textDelivery("U1", "ติดต่อเจ้าหน้าที่หน่อยค่ะ")

	res, err := env.d.HandleDelivery(context.Background(), body, sign(body))
	if err != nil || res.Processed != 1 {
		t.Fatalf("result = %+v, err = %v", res, err)
	}

	st, _ := env.users.Get(context.Background(), "U1")
	if st.Mode != store.ModeLiveManual {
		t.Errorf("mode = %s, want live_manual", st.Mode)
	}
	if len(env.platform.replies) != 1 || !strings.Contains(env.platform.replies[0], "เจ้าหน้าที่") {
		t.Errorf("ack replies = %v", env.platform.replies)
	}

	pending, _ := env.notifs.Pending(context.Background(), 10)
	if len(pending) != 1 || pending[0].Type != notify.TypeChatRequest {
		t.Errorf("pending notifications = %+v, want one chat_request", pending)
	}
	if env.observer.count("new_user_request") != 1 {
		t.Errorf("new_user_request events = %d, want 1", env.observer.count("new_user_request"))
	}
}

func TestLiveManualHoldsMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.users.GetOrCreate(ctx, "U1", "สมชาย", "")
	env.users.SetMode(ctx, "U1", store.ModeLiveManual)

	body := textDelivery("U1", "มีคนอยู่ไหม")
	res, err := env.d.HandleDelivery(ctx, body, sign(body))
	if err != nil || res.Processed != 1 {
		t.Fatalf("result = %+v, err = %v", res, err)
	}

	if len(env.platform.replies) != 0 {
		t.Errorf("bot replied in live_manual: %v", env.platform.replies)
	}
	if got := env.history.bySender("user"); len(got) != 1 {
		t.Errorf("user records = %d, want 1", len(got))
	}
	if env.observer.count("new_message") != 1 {
		t.Error("dashboards missed the held message")
	}
}

func TestLiveAutoStillReplies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.users.GetOrCreate(ctx, "U1", "สมชาย", "")
	env.users.SetMode(ctx, "U1", store.ModeLiveAuto)

	body := textDelivery("U1", "สอบถามหน่อยครับ")
	if _, err := env.d.HandleDelivery(ctx, body, sign(body)); err != nil {
		t.Fatal(err)
	}
	if len(env.platform.replies) != 1 {
		t.Errorf("replies = %v, want the bot to keep answering in live_auto", env.platform.replies)
	}
}

// One broken event must not poison its siblings: counts reflect both.
func TestPerEventIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.history.failOn = "พัง"

	body, _ := json.Marshal(map[string]any{
		"destination": "bot",
		"events": []map[string]any{
			{
				"type":       "message",
				"replyToken": "rt-1",
				"source":     map[string]any{"type": "user", "userId": "U1"},
				"message":    map[string]any{"id": "m-1", "type": "text", "text": "ข้อความนี้พัง"},
			},
			{
				"type":       "message",
				"replyToken": "rt-2",
				"source":     map[string]any{"type": "user", "userId": "U2"},
				"message":    map[string]any{"id": "m-2", "type": "text", "text": "ปกติดี"},
			},
		},
	})

	res, err := env.d.HandleDelivery(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	if res.Processed != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want 1 processed 1 failed", res)
	}
	if len(env.platform.replies) != 1 {
		t.Errorf("the healthy event did not get its reply: %v", env.platform.replies)
	}
}

// The dispatcher does no delivery dedup: the same delivery processed
// twice produces two records and two replies.
func TestDuplicateDeliveryProcessedTwice(t *testing.T) {
	env := newTestEnv(t)
	body := textDelivery("U1", "สวัสดี")
	sig := sign(body)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := env.d.HandleDelivery(ctx, body, sig)
		if err != nil || res.Processed != 1 {
			t.Fatalf("pass %d: result = %+v, err = %v", i, res, err)
		}
	}
	if got := env.history.bySender("user"); len(got) != 2 {
		t.Errorf("user records = %d, want 2 (no dedup)", len(got))
	}
	if len(env.platform.replies) != 2 {
		t.Errorf("replies = %d, want 2", len(env.platform.replies))
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	env := newTestEnv(t)
	body, _ := json.Marshal(map[string]any{
		"destination": "bot",
		"events":      []map[string]any{{"type": "things_to_come"}},
	})

	res, err := env.d.HandleDelivery(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 {
		t.Errorf("result = %+v, want unknown events to count as processed", res)
	}
}

func TestFollowGreetsAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	body, _ := json.Marshal(map[string]any{
		"destination": "bot",
		"events": []map[string]any{{
			"type":       "follow",
			"replyToken": "rt-1",
			"source":     map[string]any{"type": "user", "userId": "U9"},
		}},
	})

	if _, err := env.d.HandleDelivery(context.Background(), body, sign(body)); err != nil {
		t.Fatal(err)
	}
	if len(env.platform.replies) != 1 {
		t.Errorf("welcome replies = %v", env.platform.replies)
	}
	pending, _ := env.notifs.Pending(context.Background(), 10)
	if len(pending) != 1 || pending[0].Type != notify.TypeNewFriend {
		t.Errorf("pending = %+v, want one new_friend", pending)
	}
	if len(env.activity.events) != 1 || env.activity.events[0].Kind != "follow" {
		t.Errorf("activity = %+v", env.activity.events)
	}
	if env.observer.count("friend_status_change") != 1 {
		t.Error("missing friend_status_change broadcast")
	}
}

func TestUnfollowResetsMode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.users.GetOrCreate(ctx, "U1", "สมชาย", "")
	env.users.SetMode(ctx, "U1", store.ModeLiveManual)

	body, _ := json.Marshal(map[string]any{
		"destination": "bot",
		"events": []map[string]any{{
			"type":   "unfollow",
			"source": map[string]any{"type": "user", "userId": "U1"},
		}},
	})
	if _, err := env.d.HandleDelivery(ctx, body, sign(body)); err != nil {
		t.Fatal(err)
	}

	st, _ := env.users.Get(ctx, "U1")
	if st.Mode != store.ModeBot {
		t.Errorf("mode = %s, want bot after unfollow", st.Mode)
	}
	pending, _ := env.notifs.Pending(ctx, 10)
	if len(pending) != 1 || pending[0].Type != notify.TypeFriendLeft {
		t.Errorf("pending = %+v, want one friend_left", pending)
	}
}

// Group membership events record activity and reach the dashboards.
func TestJoinAndLeaveBroadcast(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, tc := range []struct {
		event  string
		status string
	}{
		{"join", "joined"},
		{"leave", "left"},
	} {
		body, _ := json.Marshal(map[string]any{
			"destination": "bot",
			"events": []map[string]any{{
				"type":   tc.event,
				"source": map[string]any{"type": "group", "groupId": "G1"},
			}},
		})
		res, err := env.d.HandleDelivery(ctx, body, sign(body))
		if err != nil || res.Processed != 1 {
			t.Fatalf("%s: result = %+v, err = %v", tc.event, res, err)
		}
	}

	if len(env.activity.events) != 2 {
		t.Fatalf("activity = %+v, want join and leave records", env.activity.events)
	}
	if env.activity.events[0].Kind != "join" || env.activity.events[1].Kind != "leave" {
		t.Errorf("activity kinds = %s, %s", env.activity.events[0].Kind, env.activity.events[1].Kind)
	}
	if env.observer.count("friend_status_change") != 2 {
		t.Errorf("friend_status_change events = %d, want 2", env.observer.count("friend_status_change"))
	}
}

// Reply failures are absorbed: the event still counts as processed and
// the dashboards get a send_error.
func TestReplyFailureDoesNotFailEvent(t *testing.T) {
	env := newTestEnv(t)
	env.platform.replyErr = errors.New("push quota exceeded")

	body := textDelivery("U1", "สวัสดี")
	res, err := env.d.HandleDelivery(context.Background(), body, sign(body))
	if err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	if res.Processed != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if env.observer.count("send_error") != 1 {
		t.Errorf("send_error events = %d, want 1", env.observer.count("send_error"))
	}
}
