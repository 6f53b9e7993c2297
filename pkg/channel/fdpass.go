package channel

import (
	"fmt"
	"net"
	"os"

	"github.com/marmos91/dittovfs/pkg/vfs"
	"golang.org/x/sys/unix"
)

// SendWithFD writes msg on conn with f attached as SCM_RIGHTS ancillary
// data. On success the receiver holds its own copy of the descriptor and the
// caller should close f.
func SendWithFD(conn *net.UnixConn, msg []byte, f *os.File) error {
	var oob []byte
	if f != nil {
		oob = unix.UnixRights(int(f.Fd()))
	}

	n, oobn, err := conn.WriteMsgUnix(msg, oob, nil)
	if err != nil {
		return fmt.Errorf("sendmsg: %w", err)
	}
	if n != len(msg) || oobn != len(oob) {
		return fmt.Errorf("sendmsg: short write (%d/%d bytes, %d/%d oob)", n, len(msg), oobn, len(oob))
	}
	return nil
}

// ReceiveWithFD reads one message into buf and returns the descriptor
// attached to it, if any. Extra descriptors are closed.
func ReceiveWithFD(conn *net.UnixConn, buf []byte) (int, *os.File, error) {
	oob := make([]byte, unix.CmsgSpace(4*4))

	n, oobn, flags, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return 0, nil, err
	}
	if flags&unix.MSG_CTRUNC != 0 {
		return n, nil, vfs.NewError(vfs.ErrIO, "control message truncated")
	}
	if oobn == 0 {
		return n, nil, nil
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return n, nil, fmt.Errorf("parse control message: %w", err)
	}

	var file *os.File
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			if file == nil {
				file = os.NewFile(uintptr(fd), "vfs-channel")
				continue
			}
			_ = unix.Close(fd)
		}
	}
	return n, file, nil
}
