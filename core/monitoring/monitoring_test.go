package monitoring

import (
	"errors"
	"testing"
	"time"
)

type fakeMonitor struct {
	errs    []error
	tags    []map[string]string
	panics  []any
	flushed int
}

func (f *fakeMonitor) CaptureException(err error, tags map[string]string) {
	f.errs = append(f.errs, err)
	f.tags = append(f.tags, tags)
}
func (f *fakeMonitor) CapturePanic(r any)  { f.panics = append(f.panics, r) }
func (f *fakeMonitor) Flush(time.Duration) { f.flushed++ }

func TestCaptureException(t *testing.T) {
	f := &fakeMonitor{}
	Init(f)
	defer Init(nil)

	CaptureException(nil, nil)
	CaptureException(errors.New("drift"), map[string]string{"vehicle_id": "v1"})
	if len(f.errs) != 1 || f.tags[0]["vehicle_id"] != "v1" {
		t.Fatalf("unexpected captures: %+v", f)
	}
}

func TestRecoverReportsAndRepanics(t *testing.T) {
	f := &fakeMonitor{}
	Init(f)
	defer Init(nil)

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Fatalf("expected re-panic with boom, got %v", r)
			}
		}()
		func() {
			defer Recover()
			panic("boom")
		}()
	}()
	if len(f.panics) != 1 || f.panics[0] != "boom" || f.flushed != 1 {
		t.Fatalf("panic not reported: %+v", f)
	}
}

func TestRecoverWithoutPanic(t *testing.T) {
	f := &fakeMonitor{}
	Init(f)
	defer Init(nil)
	func() {
		defer Recover()
	}()
	if len(f.panics) != 0 || f.flushed != 0 {
		t.Fatalf("nothing should be reported: %+v", f)
	}
}
