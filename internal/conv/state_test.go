package conv

import (
	"testing"
	"time"

	"github.com/Andrew-022/michatapp-sub000/internal/bus"
	"github.com/Andrew-022/michatapp-sub000/internal/model"
)

func TestRegistryReturnsSameState(t *testing.T) {
	r := NewRegistry(bus.New())
	a := r.Get("conv-1")
	b := r.Get("conv-1")
	if a != b {
		t.Error("two Get() calls returned different states")
	}
	if r.Get("conv-2") == a {
		t.Error("different conversations share state")
	}
}

func TestPrependAndUpdate(t *testing.T) {
	r := NewRegistry(bus.New())
	st := r.Get("conv-1")

	st.Prepend(model.Message{ID: "tmp1", Status: model.StatusSending})
	st.Prepend(model.Message{ID: "tmp2", Status: model.StatusSending})

	msgs := st.Messages()
	if len(msgs) != 2 || msgs[0].ID != "tmp2" {
		t.Fatalf("messages = %v, want tmp2 first", msgs)
	}

	ok := st.Update("tmp1", func(m *model.Message) {
		m.ID = "srv1"
		m.Status = model.StatusSent
	})
	if !ok {
		t.Fatal("Update() did not find tmp1")
	}
	msgs = st.Messages()
	if msgs[1].ID != "srv1" || msgs[1].Status != model.StatusSent {
		t.Errorf("message = %+v, want id/status swapped in place", msgs[1])
	}

	if st.Update("nope", func(*model.Message) {}) {
		t.Error("Update() reported success for unknown id")
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	st := NewRegistry(bus.New()).Get("conv-1")
	st.Prepend(model.Message{ID: "m1", Text: "original"})

	snapshot := st.Messages()
	snapshot[0].Text = "mutated"

	if st.Messages()[0].Text != "original" {
		t.Error("caller mutation leaked into state")
	}
}

func TestRebuildSeesLiveList(t *testing.T) {
	st := NewRegistry(bus.New()).Get("conv-1")
	st.Prepend(model.Message{ID: "m1"})
	st.Prepend(model.Message{ID: "tmp-1", Status: model.StatusSending})

	got := st.Rebuild(func(current []model.Message) []model.Message {
		// The function receives whatever the list holds right now.
		if len(current) != 2 || current[0].ID != "tmp-1" {
			t.Errorf("current = %v, want live list with tmp-1 first", current)
		}
		return append([]model.Message{{ID: "m2"}}, current...)
	})

	if len(got) != 3 || got[0].ID != "m2" {
		t.Fatalf("Rebuild() = %v, want result installed and returned", got)
	}
	if msgs := st.Messages(); len(msgs) != 3 || msgs[0].ID != "m2" {
		t.Errorf("state = %v after Rebuild", msgs)
	}
}

func TestReconcileGuard(t *testing.T) {
	st := NewRegistry(bus.New()).Get("conv-1")

	if !st.TryBeginReconcile() {
		t.Fatal("first TryBeginReconcile() = false")
	}
	if st.TryBeginReconcile() {
		t.Error("guard taken twice")
	}
	st.EndReconcile()
	if !st.TryBeginReconcile() {
		t.Error("guard not reusable after EndReconcile")
	}
}

func TestReplyTargetTakeClears(t *testing.T) {
	st := NewRegistry(bus.New()).Get("conv-1")

	st.SetReplyTarget(&model.ReplyTarget{ID: "m1", Text: "hey", Kind: model.KindText})
	got := st.TakeReplyTarget()
	if got == nil || got.ID != "m1" {
		t.Fatalf("TakeReplyTarget() = %+v", got)
	}
	if st.TakeReplyTarget() != nil {
		t.Error("reply target not cleared after take")
	}
}

func TestMutationsPublish(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	st := NewRegistry(b).Get("conv-1")
	st.Prepend(model.Message{ID: "m1"})

	select {
	case evt := <-ch:
		payload, ok := evt.Payload.(map[string]string)
		if !ok || payload["conversation_id"] != "conv-1" {
			t.Errorf("payload = %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for conversation.updated")
	}
}
