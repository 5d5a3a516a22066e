package event

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// TestNew はNew関数でイベントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("MessageSendRequestedDataでイベントを正常に生成できること", func(t *testing.T) {
		t.Parallel()

		data := MessageSendRequestedData{
			Transport: "default",
			From:      "no-reply@example.com",
			To:        "ann@example.com",
			Subject:   "Hi Ann",
			Body:      "Welcome Ann!",
		}

		before := time.Now().UTC()
		ev, err := New("record-1", AggregateTypeDispatch, TypeMessageSendRequested, 1, data)
		after := time.Now().UTC()

		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		// UUIDが生成されていること
		if ev.ID == "" {
			t.Error("IDが空文字列")
		}
		if ev.AggregateID != "record-1" {
			t.Errorf("AggregateID = %q, want %q", ev.AggregateID, "record-1")
		}
		if ev.AggregateType != AggregateTypeDispatch {
			t.Errorf("AggregateType = %q, want %q", ev.AggregateType, AggregateTypeDispatch)
		}
		if ev.EventType != TypeMessageSendRequested {
			t.Errorf("EventType = %q, want %q", ev.EventType, TypeMessageSendRequested)
		}
		if ev.CreatedAt.Before(before) || ev.CreatedAt.After(after) {
			t.Errorf("CreatedAt = %v, 期待する範囲: [%v, %v]", ev.CreatedAt, before, after)
		}

		// 空のcc/bccは省略されること
		if strings.Contains(string(ev.Data), `"cc"`) {
			t.Errorf("Data = %s, ccは省略されるべき", ev.Data)
		}
	})

	t.Run("連続して生成したイベントのIDが異なること", func(t *testing.T) {
		t.Parallel()

		data := MessageSendRequestedData{To: "a@example.com"}

		ev1, err := New("record-2", AggregateTypeDispatch, TypeMessageSendRequested, 1, data)
		if err != nil {
			t.Fatalf("1回目のNew()でエラーが発生: %v", err)
		}
		ev2, err := New("record-2", AggregateTypeDispatch, TypeMessageSendRequested, 2, data)
		if err != nil {
			t.Fatalf("2回目のNew()でエラーが発生: %v", err)
		}

		if ev1.ID == ev2.ID {
			t.Errorf("異なるイベントが同じIDを持っている: %q", ev1.ID)
		}
	})

	t.Run("シリアライズ不可能なデータでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		// json.Marshalでエラーになるチャネル型を渡す
		ev, err := New("record-3", AggregateTypeDispatch, TypeMessageSendRequested, 1, make(chan int))
		if err == nil {
			t.Fatal("New()がエラーを返すべきだが、nilが返った")
		}
		if ev != nil {
			t.Error("エラー時にnilでないEventが返った")
		}
	})
}

// TestDecodeData はDecodeData関数でイベントデータを正しくデシリアライズできることを検証する。
func TestDecodeData(t *testing.T) {
	t.Parallel()

	t.Run("DispatchRequestedDataのネストしたプレースホルダ値が保持されること", func(t *testing.T) {
		t.Parallel()

		raw := `{
			"id": "ev-1",
			"aggregate_id": "course-1",
			"aggregate_type": "Resource",
			"event_type": "DispatchRequested",
			"data": {
				"action": "schedule",
				"recipients": ["ann@example.com", "bob@example.com"],
				"resource_id": "course-1",
				"resource_name": "course",
				"place_values": {"course_name": "Go", "price": 1200},
				"priority": 3,
				"schedule_time": "2026-01-02T03:04:05Z"
			},
			"version": 1,
			"created_at": "2026-01-01T00:00:00Z"
		}`
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			t.Fatalf("Unmarshalに失敗: %v", err)
		}

		decoded, err := DecodeData[DispatchRequestedData](&ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if decoded.Action != ActionSchedule || len(decoded.Recipients) != 2 || decoded.Priority != 3 {
			t.Errorf("decoded = %+v", decoded)
		}
		if decoded.ScheduleTime == nil || decoded.ScheduleTime.Hour() != 3 {
			t.Errorf("ScheduleTime = %v", decoded.ScheduleTime)
		}
		if string(decoded.PlaceValues) != `{"course_name": "Go", "price": 1200}` {
			t.Errorf("PlaceValues = %s", decoded.PlaceValues)
		}
	})

	t.Run("不正なJSONデータでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ev := &Event{
			Data: json.RawMessage(`{invalid json`),
		}

		decoded, err := DecodeData[DispatchRequestedData](ev)
		if err == nil {
			t.Fatal("DecodeData()がエラーを返すべきだが、nilが返った")
		}
		if decoded != nil {
			t.Error("エラー時にnilでないデータが返った")
		}
	})
}

// TestExpect はイベント種別の検証を検証する。
func TestExpect(t *testing.T) {
	t.Parallel()

	ev := &Event{AggregateType: AggregateTypeResource, EventType: TypeDispatchRequested}
	if err := Expect(ev, AggregateTypeResource, TypeDispatchRequested); err != nil {
		t.Errorf("Expect()でエラーが発生: %v", err)
	}
	if err := Expect(ev, AggregateTypeDispatch, TypeDispatchRequested); !errors.Is(err, ErrUnexpectedEvent) {
		t.Errorf("error = %v, want ErrUnexpectedEvent", err)
	}
}
