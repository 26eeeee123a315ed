package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/CiaranWoodward/roomhub/protocol"
)

// ErrRejected is returned by Register when the tracker answers with ERROR
var ErrRejected = errors.New("tracker rejected registration")

// Register announces a room that runs outside the tracker, using the
// tracker's own /register command, and returns the tracker's echo.
func Register(ctx context.Context, trackerAddr string, room Room) (string, error) {
	var dialer net.Dialer
	con, err := dialer.DialContext(ctx, "tcp", trackerAddr)
	if err != nil {
		return "", fmt.Errorf("connect to tracker %s: %w", trackerAddr, err)
	}
	defer con.Close()
	if deadline, ok := ctx.Deadline(); ok {
		con.SetDeadline(deadline)
	} else {
		con.SetDeadline(time.Now().Add(10 * time.Second))
	}

	dc := protocol.NewStreamDecoder(con)
	if _, _, err := dc.DecodeNext(); err != nil {
		return "", fmt.Errorf("tracker welcome: %w", err)
	}

	args := []string{protocol.CmdRegister, room.Name, room.Address, room.AdminUser, strconv.FormatBool(room.Private)}
	if room.Private {
		args = append(args, room.Passkey)
	}
	if err := protocol.WriteFrame(con, room.AdminUser, strings.Join(args, " ")); err != nil {
		return "", fmt.Errorf("send register: %w", err)
	}

	f, _, err := dc.DecodeNext()
	if err != nil {
		return "", fmt.Errorf("register reply: %w", err)
	}
	if f.Header != protocol.HeaderRegistered {
		return "", fmt.Errorf("%w: %s", ErrRejected, f.Body)
	}

	protocol.WriteFrame(con, room.AdminUser, protocol.CmdExit)
	return f.Body, nil
}
