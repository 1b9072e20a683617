package main

import (
	goerrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"groupchat/domain/mimetypes"
	"groupchat/protocol"

	"github.com/gabriel-vasile/mimetype"
)

var errQuit = goerrors.New("quit")

const usage = `commands:
  /register <user> <password>   /login <user> <password>   /resume <token>
  /create <name>   /join <group>   /leave <group>   /use <group>   /groups
  /history [limit] [before]   /file <path>   /ping   /logout   /quit
anything else is sent to the current group`

// parseCommand turns one input line into a request frame. current is the
// group selected with /use, zero when none.
func parseCommand(line string, current uint64) (protocol.Frame, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		if current == 0 {
			return protocol.Frame{}, fmt.Errorf("no group selected, use /use <group>")
		}
		return protocol.Frame{Type: protocol.TypeSend, GroupID: current, Content: line}, nil
	}

	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/register", "/login":
		if len(args) != 2 {
			return protocol.Frame{}, fmt.Errorf("usage: %s <user> <password>", fields[0])
		}
		frameType := protocol.TypeLogin
		if fields[0] == "/register" {
			frameType = protocol.TypeRegister
		}
		return protocol.Frame{Type: frameType, Username: args[0], Password: args[1]}, nil
	case "/resume":
		if len(args) != 1 {
			return protocol.Frame{}, fmt.Errorf("usage: /resume <token>")
		}
		return protocol.Frame{Type: protocol.TypeResume, Token: args[0]}, nil
	case "/create":
		if len(args) == 0 {
			return protocol.Frame{}, fmt.Errorf("usage: /create <name>")
		}
		return protocol.Frame{Type: protocol.TypeCreateGroup, GroupName: strings.Join(args, " ")}, nil
	case "/join", "/leave":
		groupID, err := groupArg(args)
		if err != nil {
			return protocol.Frame{}, err
		}
		frameType := protocol.TypeJoin
		if fields[0] == "/leave" {
			frameType = protocol.TypeLeave
		}
		return protocol.Frame{Type: frameType, GroupID: groupID}, nil
	case "/groups":
		return protocol.Frame{Type: protocol.TypeGroups}, nil
	case "/history":
		if current == 0 {
			return protocol.Frame{}, fmt.Errorf("no group selected, use /use <group>")
		}
		frame := protocol.Frame{Type: protocol.TypeHistory, GroupID: current}
		if len(args) > 0 {
			limit, err := strconv.Atoi(args[0])
			if err != nil || limit < 0 {
				return protocol.Frame{}, fmt.Errorf("invalid limit %q", args[0])
			}
			frame.Limit = limit
		}
		if len(args) > 1 {
			before, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return protocol.Frame{}, fmt.Errorf("invalid sequence %q", args[1])
			}
			frame.Before = before
		}
		return frame, nil
	case "/file":
		if current == 0 {
			return protocol.Frame{}, fmt.Errorf("no group selected, use /use <group>")
		}
		if len(args) != 1 {
			return protocol.Frame{}, fmt.Errorf("usage: /file <path>")
		}
		return protocol.Frame{Type: protocol.TypeSend, GroupID: current, FilePath: args[0], MimeType: detectMime(args[0])}, nil
	case "/ping":
		return protocol.Frame{Type: protocol.TypePing}, nil
	case "/logout":
		return protocol.Frame{Type: protocol.TypeLogout}, nil
	case "/quit":
		return protocol.Frame{}, errQuit
	default:
		return protocol.Frame{}, fmt.Errorf("unknown command %s\n%s", fields[0], usage)
	}
}

func groupArg(args []string) (uint64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("a group id is expected")
	}
	groupID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || groupID == 0 {
		return 0, fmt.Errorf("invalid group id %q", args[0])
	}
	return groupID, nil
}

// detectMime sniffs a local file so the server never has to open it.
// An unreadable file is sent without a type.
func detectMime(path string) string {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return string(mimetypes.Of(detected.String()))
}
