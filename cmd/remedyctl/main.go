package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"resty.dev/v3"

	"github.com/remedygo/remedyd/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := newClient(profile.SocketPath(profileName))
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		printResult(get(ctx, c, "/v1/status"), *jsonFlag)
	case "login":
		printResult(post(ctx, c, "/v1/lifecycle/authenticated", map[string]string{"platform": "cli"}), *jsonFlag)
	case "logout":
		printResult(post(ctx, c, "/v1/lifecycle/logout", nil), *jsonFlag)
	case "fg":
		printResult(post(ctx, c, "/v1/lifecycle/foreground", map[string]string{"platform": "cli"}), *jsonFlag)
	case "bg":
		printResult(post(ctx, c, "/v1/lifecycle/background", nil), *jsonFlag)
	case "chats":
		printResult(get(ctx, c, "/v1/chats"), *jsonFlag)
	case "queue":
		if len(args) >= 2 && args[1] == "drain" {
			printResult(post(ctx, c, "/v1/queue/drain", nil), *jsonFlag)
		} else {
			printResult(get(ctx, c, "/v1/queue"), *jsonFlag)
		}
	case "ask":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: remedyctl ask <question>")
			os.Exit(1)
		}
		printResult(post(ctx, c, "/v1/assist/ask", map[string]string{"question": args[1]}), *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: remedyctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status        Show daemon status")
	fmt.Fprintln(os.Stderr, "  login         Re-check auth and open a session")
	fmt.Fprintln(os.Stderr, "  logout        End the session and clear identity")
	fmt.Fprintln(os.Stderr, "  fg            Report app foregrounded")
	fmt.Fprintln(os.Stderr, "  bg            Report app backgrounded")
	fmt.Fprintln(os.Stderr, "  chats         List synced chats")
	fmt.Fprintln(os.Stderr, "  queue         Show offline event queue depth")
	fmt.Fprintln(os.Stderr, "  queue drain   Drain the offline event queue now")
	fmt.Fprintln(os.Stderr, "  ask <q>       Ask the product assistant")
}

// newClient builds a resty client speaking HTTP over the daemon's unix
// socket.
func newClient(socketPath string) *resty.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return resty.New().
		SetBaseURL("http://daemon").
		SetTransport(transport)
}

func get(ctx context.Context, c *resty.Client, path string) []byte {
	res, err := c.R().SetContext(ctx).Get(path)
	return checkResponse(res, err)
}

func post(ctx context.Context, c *resty.Client, path string, body any) []byte {
	req := c.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	res, err := req.Post(path)
	return checkResponse(res, err)
}

func checkResponse(res *resty.Response, err error) []byte {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon: %v\n", err)
		os.Exit(1)
	}
	if res.IsError() {
		fmt.Fprintf(os.Stderr, "error: daemon returned %s: %s\n", res.Status(), res.String())
		os.Exit(1)
	}
	return res.Bytes()
}

func printResult(body []byte, jsonOut bool) {
	if len(body) == 0 {
		fmt.Println("ok")
		return
	}
	if jsonOut {
		fmt.Println(string(body))
		return
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		fmt.Println(string(body))
		return
	}
	pretty, _ := json.MarshalIndent(m, "", "  ")
	fmt.Println(string(pretty))
}
