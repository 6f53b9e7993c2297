package job

import (
	"context"

	"github.com/marmos91/dittovfs/pkg/backend"
	"github.com/marmos91/dittovfs/pkg/channel"
	"github.com/marmos91/dittovfs/pkg/vfs"
)

// CreateMonitor watches a file or directory. Events are pushed on a monitor
// data channel until the client closes it.
type CreateMonitor struct {
	Path        string
	MonitorKind vfs.MonitorKind

	Opened
	monitor backend.Monitor
}

func (o *CreateMonitor) Kind() Kind { return KindCreateMonitor }

func (o *CreateMonitor) Try(b backend.Backend) error {
	t, ok := b.(backend.MonitorCreateTrier)
	if !ok {
		return backend.ErrWouldBlock
	}
	mon, err := t.TryCreateMonitor(o.Path, o.MonitorKind)
	return o.setResult(mon, err)
}

func (o *CreateMonitor) Run(ctx context.Context, b backend.Backend) error {
	r, ok := b.(backend.MonitorCreator)
	if !ok {
		return notSupported(o.Kind())
	}
	mon, err := r.CreateMonitor(ctx, o.Path, o.MonitorKind)
	return o.setResult(mon, err)
}

func (o *CreateMonitor) setResult(mon backend.Monitor, err error) error {
	if err != nil {
		return err
	}
	if mon == nil {
		return invalidReply(o.Kind(), "backend returned no monitor for %q", o.Path)
	}
	o.monitor = mon
	return nil
}

func (o *CreateMonitor) complete(d *Dispatcher, j *Job, b backend.Backend) error {
	opened, err := d.attachMonitor(b, o.monitor)
	if err != nil {
		_ = o.monitor.Close()
		return err
	}
	o.Opened = *opened
	return nil
}

// monitorHandler serves a monitor channel. The only request it accepts is
// close; events flow from pumpEvents.
type monitorHandler struct {
	b       backend.Backend
	handle  vfs.HandleID
	monitor backend.Monitor
}

func (h *monitorHandler) Serve(ctx context.Context, req *channel.Request) *channel.Reply {
	if req.Command != channel.CmdClose {
		return channel.ErrorReply(req.Seq, vfs.NewError(vfs.ErrInvalidArgument, "command %d not valid on monitor channel", req.Command))
	}
	if err := h.stop(); err != nil {
		return channel.ErrorReply(req.Seq, vfs.FromOS(err, ""))
	}
	return &channel.Reply{Type: channel.ReplyClosed}
}

func (h *monitorHandler) Release(ctx context.Context) {
	_ = h.stop()
}

func (h *monitorHandler) stop() error {
	if _, err := h.b.Core().Handles().Remove(h.handle); err != nil {
		// Already released by a backend shutdown.
		return nil
	}
	return h.monitor.Close()
}

func eventReply(ev backend.MonitorEvent) *channel.Reply {
	r := &channel.Reply{
		Type:  channel.ReplyEvent,
		Value: int64(ev.Type),
		Text:  ev.Path,
	}
	if ev.OtherPath != "" {
		r.Data = []byte(ev.OtherPath)
	}
	return r
}

func pumpEvents(ch *channel.Channel, mon backend.Monitor) {
	events := mon.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := ch.Send(eventReply(ev)); err != nil {
				return
			}
		case <-ch.Done():
			return
		}
	}
}
