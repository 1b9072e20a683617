package main

import (
	"bufio"
	goerrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"groupchat/contract"
	"groupchat/domain/mimetypes"
	"groupchat/projection"
	"groupchat/protocol"
	"groupchat/transport"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if !config.Colours {
		color.Disable()
	}

	conn, err := dial(config)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(fmt.Sprintf("  ====== connected to %s ======", config.Addr)))
	fmt.Println(usage)

	go printFrames(conn)

	var current uint64
	ref := 0
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if fields := strings.Fields(line); fields[0] == "/use" {
			groupID, err := groupArg(fields[1:])
			if err != nil {
				printError(err)
				continue
			}
			current = groupID
			fmt.Println(color.Cyan.Sprintf("now talking in group %d", current))
			continue
		}

		frame, err := parseCommand(line, current)
		if goerrors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			printError(err)
			continue
		}
		ref++
		frame.Ref = strconv.Itoa(ref)
		data, err := protocol.Encode(frame)
		if err != nil {
			printError(err)
			continue
		}
		if err := conn.WriteFrame(data); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
	}
	return scanner.Err()
}

func dial(config Config) (contract.Conn, error) {
	opts := transport.Options{MaxFrameSize: config.MaxFrameSize}
	switch config.Transport {
	case "tcp":
		conn, err := net.DialTimeout("tcp", config.Addr, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", config.Addr, err)
		}
		return transport.NewTCPConn(conn, opts), nil
	case "ws":
		header := http.Header{}
		if config.Token != "" {
			header.Set("Authorization", "Bearer "+config.Token)
		}
		ws, _, err := websocket.DefaultDialer.Dial(config.Addr, header)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", config.Addr, err)
		}
		return transport.NewWebSocketConn(ws, opts), nil
	default:
		return nil, fmt.Errorf("unknown transport %q, expected tcp or ws", config.Transport)
	}
}

// printFrames renders what the server sends. Messages already shown, live or
// from a history page, are not printed twice.
func printFrames(conn contract.Conn) {
	timelines := projection.Timelines{}
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			printError(fmt.Errorf("disconnected: %w", err))
			os.Exit(0)
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			printError(err)
			continue
		}
		switch frame.Type {
		case protocol.TypeMessage:
			if !timelines.Consume(*frame.Message) {
				continue
			}
			if missing := timelines[frame.GroupID].Missing(); missing > 0 {
				fmt.Println(color.Gray.Sprintf("(%d earlier messages not shown, use /history)", missing))
			}
		case protocol.TypeHistory:
			for _, m := range frame.Messages {
				timelines.Consume(m)
			}
		}
		fmt.Println(render(frame))
	}
}

func render(frame protocol.Frame) string {
	switch frame.Type {
	case protocol.TypeMessage:
		return renderMessage(*frame.Message)
	case protocol.TypeHistory:
		lines := make([]string, 0, len(frame.Messages))
		// history comes newest first
		for i := len(frame.Messages) - 1; i >= 0; i-- {
			lines = append(lines, renderMessage(frame.Messages[i]))
		}
		if len(lines) == 0 {
			return color.Gray.Sprint("(no messages)")
		}
		return strings.Join(lines, "\n")
	case protocol.TypeGroups:
		lines := make([]string, 0, len(frame.Groups))
		for _, g := range frame.Groups {
			lines = append(lines, fmt.Sprintf("  %d  %s", g.ID, g.Name))
		}
		return color.Cyan.Sprint("groups:\n" + strings.Join(lines, "\n"))
	case protocol.TypeError:
		return color.Red.Sprintf("[%s] %s: %s", frame.Ref, frame.Code, frame.Error)
	case protocol.TypePong:
		return color.Gray.Sprintf("[%s] pong", frame.Ref)
	default:
		details := []string{}
		if frame.UserID != 0 {
			details = append(details, fmt.Sprintf("user %d (%s)", frame.UserID, frame.Username))
		}
		if frame.Token != "" {
			details = append(details, "token "+frame.Token)
		}
		if frame.GroupID != 0 {
			details = append(details, fmt.Sprintf("group %d %s", frame.GroupID, frame.GroupName))
		}
		if frame.Seq != 0 {
			details = append(details, fmt.Sprintf("seq %d", frame.Seq))
		}
		return color.Green.Sprintf("[%s] ok %s", frame.Ref, strings.Join(details, ", "))
	}
}

func renderMessage(m protocol.MessageView) string {
	header := color.Yellow.Sprintf("#%d %s %s", m.Seq, m.SentAt.Local().Format("15:04:05"), m.Username)
	body := m.Content
	if m.FilePath != "" {
		kind := "file"
		if mimetypes.MIME(m.MimeType).IsImage() {
			kind = "image"
		}
		body = strings.TrimSpace(body + " " + color.Magenta.Sprintf("[%s %s %s]", kind, m.FilePath, m.MimeType))
	}
	return fmt.Sprintf("%s (group %d): %s", header, m.GroupID, body)
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, color.Red.Sprint(err.Error()))
}
