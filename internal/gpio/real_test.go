//go:build linux

package gpio

import (
	"errors"
	"testing"

	"github.com/warthog618/go-gpiocdev"
)

// fakeRequest stands in for a requested character device line.
type fakeRequest struct {
	reconfigures [][]gpiocdev.LineConfigOption
	reconfErr    error
	closeErr     error
	closes       int
}

func (r *fakeRequest) Reconfigure(opts ...gpiocdev.LineConfigOption) error {
	if r.reconfErr != nil {
		return r.reconfErr
	}
	r.reconfigures = append(r.reconfigures, opts)
	return nil
}

func (r *fakeRequest) SetValue(int) error { return nil }

func (r *fakeRequest) Value() (int, error) { return 0, nil }

func (r *fakeRequest) Close() error {
	r.closes++
	return r.closeErr
}

func newTestCdevLine(id int, req *fakeRequest) (*CdevController, *cdevLine) {
	c := &CdevController{lines: make(map[int]*cdevLine)}
	l := &cdevLine{ctrl: c, id: id, req: req, mode: InputPullUp}
	c.lines[id] = l
	return c, l
}

func TestCdevOnTransitionKeepsRequest(t *testing.T) {
	req := &fakeRequest{}
	_, l := newTestCdevLine(6, req)

	var got []Transition
	if err := l.OnTransition(func(tr Transition) { got = append(got, tr) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.closes != 0 {
		t.Errorf("request released %d times while subscribing", req.closes)
	}
	if l.req != req {
		t.Error("line should keep its original request")
	}
	if len(req.reconfigures) != 1 {
		t.Fatalf("expected one reconfigure, got %d", len(req.reconfigures))
	}
	if want := len(cdevConfig(InputPullUp, true)); len(req.reconfigures[0]) != want {
		t.Errorf("reconfigure options: got %d, want %d (pull-up with edges)", len(req.reconfigures[0]), want)
	}

	l.onEvent(gpiocdev.LineEvent{Offset: 6})
	if len(got) != 1 || got[0].Line != 6 {
		t.Errorf("expected one transition on line 6, got %+v", got)
	}
}

func TestCdevEventsBeforeSubscribeIgnored(t *testing.T) {
	_, l := newTestCdevLine(13, &fakeRequest{})
	// No handler yet; must not panic.
	l.onEvent(gpiocdev.LineEvent{Offset: 13})
}

func TestCdevOnTransitionFailureKeepsLine(t *testing.T) {
	req := &fakeRequest{reconfErr: errors.New("invalid argument")}
	c, l := newTestCdevLine(19, req)

	if err := l.OnTransition(func(Transition) {}); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.lines[19]; !ok {
		t.Error("line dropped from controller after a failed subscribe")
	}
	if l.req != req || req.closes != 0 {
		t.Error("failed subscribe should leave the request held")
	}

	// Close still releases it.
	req.reconfErr = nil
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if req.closes != 1 {
		t.Errorf("expected request closed once, got %d", req.closes)
	}
}

func TestCdevOnTransitionAfterClose(t *testing.T) {
	_, l := newTestCdevLine(26, &fakeRequest{})
	l.Close()
	if err := l.OnTransition(func(Transition) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCdevCloseJoinsErrors(t *testing.T) {
	closeErr := errors.New("bad file descriptor")
	req := &fakeRequest{reconfErr: ErrLineBusy, closeErr: closeErr}
	_, l := newTestCdevLine(5, req)

	err := l.Close()
	if !errors.Is(err, closeErr) {
		t.Errorf("close error not wrapped: %v", err)
	}
	if !errors.Is(err, ErrLineBusy) {
		t.Errorf("reconfigure error not wrapped: %v", err)
	}
}
