// Command eegctl is a small command-line client for the control-command
// JSON protocol (internal/httpapi): pause/resume/reconfigure a running
// daemon and inspect its state over HTTP.
//
// Grounded on cmd/ocx-cli/main.go's flag-less os.Args[1] subcommand
// dispatch and env-var-configured gateway URL.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	gateway := os.Getenv("DAQD_GATEWAY_URL")
	if gateway == "" {
		gateway = "http://localhost:8080"
	}

	switch os.Args[1] {
	case "pause":
		cmdStageCommand(gateway, "Pause")
	case "resume":
		cmdStageCommand(gateway, "Resume")
	case "shutdown":
		cmdStageCommand(gateway, "Shutdown")
	case "set":
		cmdSet(gateway)
	case "reconfigure":
		cmdReconfigure(gateway)
	case "state":
		cmdState(gateway)
	case "version":
		fmt.Printf("eegctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`eegctl v` + version + `

Usage: eegctl <command> [flags]

Commands:
  pause --stage <id>                           Pause a stage
  resume --stage <id>                          Resume a stage
  shutdown --stage <id>                        Send a Shutdown command to a stage
  set --stage <id> --key <k> --value <v>       Hot-update a parameter
  reconfigure --file <graph.json>              Swap the running graph
  state                                        Print the current state snapshot
  version                                      Print version
  help                                         Show this help

Environment:
  DAQD_GATEWAY_URL   Daemon control-plane base URL (default: http://localhost:8080)`)
}

// stageFlags parses the common --stage/--key/--value flag set shared by
// pause/resume/shutdown/set.
type stageFlags struct {
	stage string
	key   string
	value string
}

func parseStageFlags(args []string) stageFlags {
	var f stageFlags
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--stage":
			i++
			if i < len(args) {
				f.stage = args[i]
			}
		case "--key":
			i++
			if i < len(args) {
				f.key = args[i]
			}
		case "--value":
			i++
			if i < len(args) {
				f.value = args[i]
			}
		}
	}
	return f
}

func cmdStageCommand(gateway, cmd string) {
	f := parseStageFlags(os.Args[2:])
	if f.stage == "" {
		fmt.Fprintln(os.Stderr, "error: --stage is required")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"stage_id": f.stage,
		"cmd":      cmd,
	})

	if err := postControl(gateway, body); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", cmd, err)
		os.Exit(1)
	}
	fmt.Printf("%s: ok\n", cmd)
}

func cmdSet(gateway string) {
	f := parseStageFlags(os.Args[2:])
	if f.stage == "" || f.key == "" {
		fmt.Fprintln(os.Stderr, "Usage: eegctl set --stage <id> --key <k> --value <v>")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"stage_id": f.stage,
		"cmd":      "UpdateParam",
		"key":      f.key,
		"value":    parseValue(f.value),
	})

	if err := postControl(gateway, body); err != nil {
		fmt.Fprintf(os.Stderr, "set failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("set: ok")
}

// parseValue tries numeric and boolean interpretation before falling
// back to a raw string, since control command values are typed JSON.
func parseValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func cmdReconfigure(gateway string) {
	args := os.Args[2:]
	var file string
	for i := 0; i < len(args); i++ {
		if args[i] == "--file" && i+1 < len(args) {
			file = args[i+1]
		}
	}
	if file == "" {
		fmt.Fprintln(os.Stderr, "Usage: eegctl reconfigure --file <graph.json>")
		os.Exit(1)
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", file, err)
		os.Exit(1)
	}

	var cfg json.RawMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", file, err)
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"cmd":    "Reconfigure",
		"config": cfg,
	})

	if err := postControl(gateway, body); err != nil {
		fmt.Fprintf(os.Stderr, "reconfigure failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("reconfigure: ok")
}

func cmdState(gateway string) {
	resp, err := doRequest(http.MethodGet, gateway+"/state", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "state failed: %v\n", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp, "", "  "); err != nil {
		fmt.Println(string(resp))
		return
	}
	fmt.Println(pretty.String())
}

func postControl(gateway string, body []byte) error {
	resp, err := doRequest(http.MethodPost, gateway+"/control", body)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if errField, ok := result["error"]; ok {
		return fmt.Errorf("%v", errField)
	}
	return nil
}

func doRequest(method, url string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
