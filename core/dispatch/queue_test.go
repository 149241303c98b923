package dispatch

import "testing"

func TestWorkQueue(t *testing.T) {
	q := newWorkQueue()
	for i := 0; i < 500; i++ {
		q.needs("t1")
		q.needs("t2")
	}
	q.released()

	select {
	case <-q.wake:
	default:
		t.Fatal("expected a wake-up")
	}
	tasks, resweep := q.drain()
	if len(tasks) != 2 || tasks[0] != "t1" || tasks[1] != "t2" || !resweep {
		t.Fatalf("unexpected drain %v %v", tasks, resweep)
	}
	tasks, resweep = q.drain()
	if len(tasks) != 0 || resweep {
		t.Fatalf("queue must be empty after drain, got %v %v", tasks, resweep)
	}
	q.needs("t1")
	if tasks, _ := q.drain(); len(tasks) != 1 {
		t.Fatalf("task must be queued again after a drain, got %v", tasks)
	}
}
