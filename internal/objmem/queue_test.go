package objmem

import "testing"

func TestQueuedFinalizerDrainsInOrder(t *testing.T) {
	f := NewQueuedFinalizer(8)

	f.QueueForFinalization(3)
	f.QueueForFinalization(7)

	var got []OTEIndex
	n := f.Drain(func(ote OTEIndex) { got = append(got, ote) })

	if n != 2 || len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("unexpected drain result: n=%d got=%v", n, got)
	}

	if n := f.Drain(func(OTEIndex) {}); n != 0 {
		t.Fatalf("drain of an empty queue should do nothing, got n=%d", n)
	}
}

func TestQueuedMournerDrainsLossCounts(t *testing.T) {
	m := NewQueuedMourner(8)
	m.QueueForBereavement(5, 2)

	var got bereavementEntry
	n := m.Drain(func(weak OTEIndex, losses int) { got = bereavementEntry{weak: weak, losses: losses} })

	if n != 1 || got.weak != 5 || got.losses != 2 {
		t.Fatalf("unexpected bereavement drain: n=%d got=%+v", n, got)
	}
}

func TestSignalSchedulerCoalescesMultipleSignals(t *testing.T) {
	s := NewSignalScheduler()

	s.ScheduleFinalization()
	s.ScheduleFinalization() // should not block: single-slot, already pending

	s.Wait()

	select {
	case <-s.pending:
		t.Fatalf("second Wait should block with nothing pending")
	default:
	}
}
