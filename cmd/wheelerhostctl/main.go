package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	addr    = flag.String("addr", "http://127.0.0.1:8766", "wheelerhostd diagnostics server address")
	command = flag.String("cmd", "", "Command to send (e.g., 'STATUS', 'FFB-MODE:hybrid')")
)

const requestTimeout = 3 * time.Second

func main() {
	flag.Parse()

	if *command == "" {
		if len(flag.Args()) > 0 {
			*command = strings.Join(flag.Args(), " ")
		} else {
			showHelp()
			return
		}
	}

	client := &http.Client{Timeout: requestTimeout}

	if err := run(client, *addr, *command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(client *http.Client, base, cmd string) error {
	switch {
	case cmd == "STATUS":
		return getAndPrint(client, base+"/api/v1/status")
	case cmd == "COUNTERS":
		return getAndPrint(client, base+"/api/v1/counters")
	case cmd == "PING":
		return getAndPrint(client, base+"/healthz")
	case strings.HasPrefix(cmd, "FFB-MODE:"):
		mode := strings.TrimPrefix(cmd, "FFB-MODE:")
		return postAndPrint(client, base+"/api/v1/ffb-mode", map[string]string{"mode": mode})
	default:
		return fmt.Errorf("unrecognized command %q", cmd)
	}
}

func getAndPrint(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func postAndPrint(client *http.Client, url string, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	return nil
}

func showHelp() {
	fmt.Println("wheelerhostctl - WheelerHost Daemon Control Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -addr <url>       Diagnostics server address (default: http://127.0.0.1:8766)")
	fmt.Println("  -cmd <command>    Command to send")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  STATUS                 Get session/bridge/FFB status")
	fmt.Println("  COUNTERS               Get error-taxonomy counters")
	fmt.Println("  PING                   Health check")
	fmt.Println("  FFB-MODE:<mode>        Set FFB mode (passthrough, synthetic, hybrid)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s STATUS\n", os.Args[0])
	fmt.Printf("  %s FFB-MODE:synthetic\n", os.Args[0])
}
