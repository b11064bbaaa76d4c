package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"matchpool/crypto"
	"matchpool/rpc"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv("MATCHPOOL_RPC_TOKEN")
	rpcCaller    = os.Getenv("MATCHPOOL_CALLER")
	rpcCall      = callRPC
	httpClient   = &http.Client{Timeout: 15 * time.Second}
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "generate-key":
		return runGenerateKey(stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "ops":
		return runOperations(stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	case "call":
		return runCall(args[1:], stdout, stderr)
	case "match":
		return runMatchCommand(args[1:], stdout, stderr)
	case "admin":
		return runAdminCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  matchctl [--rpc URL] [--token JWT] [--caller IDENTITY] <command> [flags]

Commands:
  generate-key  Generate a key and print its identity
  token         Issue a bearer token for an identity
  balance       Show the balance of an identity
  ops           List registered operations
  events        Page through published notifications
  call          Dispatch an arbitrary operation
  match         Match lifecycle commands
  admin         Administration commands
`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("MATCHPOOL_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// applyGlobalFlags strips --rpc, --token and --caller from args.
func applyGlobalFlags(args []string) ([]string, error) {
	globals := map[string]*string{"--rpc": &rpcEndpoint, "--token": &rpcAuthToken, "--caller": &rpcCaller}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		target, ok := globals[name]
		if !ok {
			out = append(out, arg)
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", name)
			}
			value = args[i+1]
			i++
		}
		*target = value
	}
	return out, nil
}

func runGenerateKey(stdout, stderr io.Writer) int {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "identity: %s\n", key.PubKey().Address().String())
	fmt.Fprintf(stdout, "private key: %s\n", hex.EncodeToString(key.Bytes()))
	return 0
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err == nil {
		result = pretty.Bytes()
	}
	fmt.Fprintln(w, string(result))
}

// invoke runs method and prints the outcome.
func invoke(method string, params interface{}, value string, stdout, stderr io.Writer) int {
	result, rpcErr, err := rpcCall(method, params, value)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func callRPC(method string, params interface{}, value string) (json.RawMessage, *rpcError, error) {
	payload := rpc.RPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Value: value}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, nil, err
		}
		payload.Params = raw
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := strings.TrimSpace(rpcAuthToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if caller := strings.TrimSpace(rpcCaller); caller != "" {
		req.Header.Set(rpc.CallerHeader, caller)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}
