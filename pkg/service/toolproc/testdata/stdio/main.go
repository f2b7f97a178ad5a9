// Command stdio is a fake tool server used by the toolproc tests. It
// speaks newline-delimited JSON-RPC 2.0 on its standard streams. The
// TOOLSRV_MODE environment variable selects its behavior:
//
//	list    answer tools/list, then answer tools/call (default)
//	noisy   emit two unparsable lines and a readiness log line, never
//	        answer tools/list, answer tools/call when it arrives
//	error   answer tools/call with isError
//	silent  never answer anything
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

type request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

func respond(v any) {
	data, _ := json.Marshal(v)
	fmt.Println(string(data))
}

func main() {
	mode := os.Getenv("TOOLSRV_MODE")
	if mode == "" {
		mode = "list"
	}

	if mode == "noisy" {
		fmt.Println("booting fake tool server...")
		fmt.Println(`{"this is": "not jsonrpc"}`)
		fmt.Fprintln(os.Stderr, "fake tool server started, listening on stdio")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}

		if mode == "silent" {
			continue
		}

		switch req.Method {
		case "tools/list":
			if mode == "list" {
				respond(map[string]any{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"result": map[string]any{
						"tools": []map[string]any{{"name": "fake-tool"}},
					},
				})
			}

		case "tools/call":
			if mode == "error" {
				respond(map[string]any{
					"jsonrpc": "2.0",
					"id":      req.ID,
					"result": map[string]any{
						"isError": true,
						"content": []map[string]any{{"type": "text", "text": "boom"}},
					},
				})
				return
			}

			params, _ := json.Marshal(req.Params)
			respond(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result": map[string]any{
					"content": []map[string]any{
						{"type": "text", "text": "called with " + string(params)},
					},
				},
			})
			return
		}
	}
}
