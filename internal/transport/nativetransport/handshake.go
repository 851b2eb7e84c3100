package nativetransport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/SnowyCoder/wdht/pkg/types"
)

// noDeadline clears a connection deadline once the handshake completes.
var noDeadline time.Time

func applyDeadline(ctx context.Context, conn net.Conn) {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
}

// handshakeDial sends localID and reads the remote's claimed ID back.
func handshakeDial(ctx context.Context, conn net.Conn, localID types.ID) error {
	applyDeadline(ctx, conn)
	defer conn.SetDeadline(noDeadline)

	if _, err := conn.Write(localID[:]); err != nil {
		return fmt.Errorf("send identity: %w", err)
	}
	var remote types.ID
	if _, err := io.ReadFull(conn, remote[:]); err != nil {
		return fmt.Errorf("read identity: %w", err)
	}
	return nil
}

// handshakeAccept reads the dialer's claimed ID, then replies with
// localID.
func handshakeAccept(ctx context.Context, conn net.Conn, localID types.ID) (types.ID, error) {
	applyDeadline(ctx, conn)
	defer conn.SetDeadline(noDeadline)

	var remote types.ID
	if _, err := io.ReadFull(conn, remote[:]); err != nil {
		return types.ID{}, fmt.Errorf("read identity: %w", err)
	}
	if _, err := conn.Write(localID[:]); err != nil {
		return types.ID{}, fmt.Errorf("send identity: %w", err)
	}
	return remote, nil
}
