package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const (
	defaultAgentURL = "http://localhost:12212"
)

func main() {
	var agentURL string
	flag.StringVar(&agentURL, "agent", defaultAgentURL, "Agent URL")
	flag.StringVar(&agentURL, "a", defaultAgentURL, "Agent URL (short)")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	agentURL = strings.TrimSuffix(agentURL, "/")
	args := flag.Args()

	var err error
	switch args[0] {
	case "status":
		err = runStatus(agentURL)
	case "print":
		err = runPrint(agentURL, args[1:])
	case "test":
		err = runTest(agentURL)
	case "queue":
		err = runQueue(agentURL, args[1:])
	case "diag":
		err = runDiag(agentURL, args[1:])
	case "settings":
		err = runSettings(agentURL, args[1:])
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Label Print CLI

Usage:
  label-cli [flags] <command>

Flags:
  -a, -agent <url>    Agent URL (default: %s)

Commands:
  status
    Show printer status

  print <label.json> [copies]
    Print a label file immediately

  test
    Print a test label through the active printer

  queue list
  queue add <label.json> [quantity]
  queue remove <id>
  queue clear
  queue print
    Manage and print the pending queue

  diag list
  diag summary
  diag export
  diag clear
    Inspect the connection diagnostics trail

  settings show
  settings type <bluetooth|socket|serial|usb|system|pdf>
    Show or switch the active printer

Examples:
  label-cli print ./chicken-soup.json 3
  label-cli queue add ./chicken-soup.json 5
  label-cli queue print
  label-cli settings type pdf
  label-cli -a http://localhost:8080 status

`, defaultAgentURL)
}

func runStatus(agentURL string) error {
	var status map[string]interface{}
	if err := getJSON(agentURL+"/printer/status", &status); err != nil {
		return err
	}

	state := "disconnected"
	if status["connected"] == true {
		state = "connected"
	}
	fmt.Printf("%s (%s): %s\n", status["name"], status["type"], state)
	if detail, ok := status["detail"].(string); ok && detail != "" {
		fmt.Printf("  %s\n", detail)
	}
	return nil
}

func runPrint(agentURL string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: print <label.json> [copies]")
	}

	label, err := loadLabel(args[0])
	if err != nil {
		return err
	}

	copies := 1
	if len(args) > 1 {
		copies, err = strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid copy count: %s", args[1])
		}
	}

	var resp map[string]interface{}
	if err := postJSON(agentURL+"/print", map[string]interface{}{
		"labelData": label,
		"copies":    copies,
	}, &resp); err != nil {
		return err
	}

	fmt.Printf("printed (label %v)\n", resp["labelId"])
	return nil
}

func runTest(agentURL string) error {
	if err := postJSON(agentURL+"/printer/test", nil, nil); err != nil {
		return err
	}
	fmt.Println("test label printed")
	return nil
}

func runQueue(agentURL string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: queue <list|add|remove|clear|print>")
	}

	switch args[0] {
	case "list":
		var resp struct {
			Items []map[string]interface{} `json:"items"`
		}
		if err := getJSON(agentURL+"/queue", &resp); err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			fmt.Println("queue is empty")
			return nil
		}
		for _, item := range resp.Items {
			fmt.Printf("  %s  %-30s x%v\n", item["id"], item["productName"], item["quantity"])
		}
		return nil

	case "add":
		if len(args) < 2 {
			return fmt.Errorf("usage: queue add <label.json> [quantity]")
		}
		label, err := loadLabel(args[1])
		if err != nil {
			return err
		}
		quantity := 1
		if len(args) > 2 {
			quantity, err = strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid quantity: %s", args[2])
			}
		}
		var resp map[string]interface{}
		if err := postJSON(agentURL+"/queue", map[string]interface{}{
			"labelData": label,
			"quantity":  quantity,
		}, &resp); err != nil {
			return err
		}
		fmt.Println("added to queue")
		return nil

	case "remove":
		if len(args) < 2 {
			return fmt.Errorf("usage: queue remove <id>")
		}
		return deleteReq(agentURL + "/queue/" + args[1])

	case "clear":
		return deleteReq(agentURL + "/queue")

	case "print":
		var resp struct {
			Success bool `json:"success"`
			Result  struct {
				PrintedLabels int `json:"printedLabels"`
				TotalFailed   int `json:"totalFailed"`
				Errors        []struct {
					Product string `json:"productName"`
					Message string `json:"error"`
				} `json:"errors"`
			} `json:"result"`
		}
		if err := postJSON(agentURL+"/queue/print", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("printed %d labels\n", resp.Result.PrintedLabels)
		if !resp.Success {
			fmt.Printf("%d labels failed:\n", resp.Result.TotalFailed)
			for _, e := range resp.Result.Errors {
				fmt.Printf("  %s: %s\n", e.Product, e.Message)
			}
			return fmt.Errorf("batch finished with failures")
		}
		return nil
	}

	return fmt.Errorf("unknown queue command: %s", args[0])
}

func runDiag(agentURL string, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "list":
		var resp struct {
			Entries []struct {
				Timestamp string `json:"timestamp"`
				Level     string `json:"level"`
				Port      int    `json:"port"`
				Message   string `json:"message"`
			} `json:"entries"`
		}
		if err := getJSON(agentURL+"/diagnostics", &resp); err != nil {
			return err
		}
		for _, e := range resp.Entries {
			port := ""
			if e.Port != 0 {
				port = fmt.Sprintf(" [:%d]", e.Port)
			}
			fmt.Printf("  %-7s %s%s  %s\n", e.Level, e.Timestamp, port, e.Message)
		}
		return nil

	case "summary":
		var summary map[string]interface{}
		if err := getJSON(agentURL+"/diagnostics/summary", &summary); err != nil {
			return err
		}
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
		return nil

	case "export":
		resp, err := http.Get(agentURL + "/diagnostics/export")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, err = io.Copy(os.Stdout, resp.Body)
		return err

	case "clear":
		return deleteReq(agentURL + "/diagnostics")
	}

	return fmt.Errorf("unknown diag command: %s", sub)
}

func runSettings(agentURL string, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		var settings map[string]interface{}
		if err := getJSON(agentURL+"/printer/settings", &settings); err != nil {
			return err
		}
		out, _ := json.MarshalIndent(settings, "", "  ")
		fmt.Println(string(out))
		return nil

	case "type":
		if len(args) < 2 {
			return fmt.Errorf("usage: settings type <bluetooth|socket|serial|usb|system|pdf>")
		}
		var resp map[string]interface{}
		if err := postJSON(agentURL+"/printer/settings", map[string]interface{}{
			"type": args[1],
		}, &resp); err != nil {
			return err
		}
		fmt.Printf("printer type set to %s\n", args[1])
		return nil
	}

	return fmt.Errorf("unknown settings command: %s", sub)
}

func loadLabel(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read label file: %w", err)
	}
	var label map[string]interface{}
	if err := json.Unmarshal(data, &label); err != nil {
		return nil, fmt.Errorf("failed to parse label file: %w", err)
	}
	return label, nil
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to agent: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func postJSON(url string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to connect to agent: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func deleteReq(url string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to agent: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, nil)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("agent returned HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
