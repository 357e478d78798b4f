// Command paychctl is a thin HTTP client for paychledgerd, one subcommand
// per operation.
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

const defaultServer = "http://127.0.0.1:8080"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "setup-database":
		err = runSimple(args, "/setup_database")
	case "selftest":
		err = runSimple(args, "/selftest")
	case "get-channel-status":
		err = runChannelKeyCommand(args, "get-channel-status", "/get_channel_status")
	case "get-channel-events":
		err = runChannelKeyCommand(args, "get-channel-events", "/get_channel_events")
	case "get-latest-state":
		err = runChannelKeyCommand(args, "get-latest-state", "/get_latest_state")
	case "insert-channel-event":
		err = runInsertEvent(args, "/insert_channel_event")
	case "insert-channel-intent":
		err = runInsertEvent(args, "/insert_channel_intent")
	case "get-state-update-status":
		err = runStateUpdate(args, "/get_state_update_status")
	case "insert-state-update":
		err = runStateUpdate(args, "/insert_state_update")
	case "set-recent-blocks":
		err = runSetRecentBlocks(args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "paychctl: %v\n", err)
		os.Exit(1)
	}
}

func runSimple(args []string, path string) error {
	fs := flag.NewFlagSet(path, flag.ExitOnError)
	server := fs.String("server", defaultServer, "paychledgerd base URL")
	fs.Parse(args)
	return postAndPrint(*server, path, map[string]any{})
}

func channelKeyFlags(fs *flag.FlagSet) (chainID *int64, contractID, channelID *string) {
	chainID = fs.Int64("chain-id", 0, "chain id")
	contractID = fs.String("contract-id", "", "contract address, 0x-prefixed")
	channelID = fs.String("channel-id", "", "channel id, 0x-prefixed 32-byte hash")
	return
}

func runChannelKeyCommand(args []string, name, path string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	server := fs.String("server", defaultServer, "paychledgerd base URL")
	includeIntents := fs.Bool("include-intents", true, "include uncorrelated intents")
	chainID, contractID, channelID := channelKeyFlags(fs)
	fs.Parse(args)

	body := map[string]any{
		"chain_id":        *chainID,
		"contract_id":     *contractID,
		"channel_id":      *channelID,
		"include_intents": *includeIntents,
	}
	return postAndPrint(*server, path, body)
}

func runInsertEvent(args []string, path string) error {
	fs := flag.NewFlagSet(path, flag.ExitOnError)
	server := fs.String("server", defaultServer, "paychledgerd base URL")
	chainID, contractID, channelID := channelKeyFlags(fs)
	ts := fs.Int64("ts", time.Now().Unix(), "event timestamp, unix seconds")
	block := fs.Int64("block", 0, "block number")
	blockHash := fs.String("block-hash", "", "0x-prefixed 32-byte block hash (chain events only)")
	sender := fs.String("sender", "", "event sender address, 0x-prefixed")
	eventType := fs.String("event-type", "", "DidCreateChannel, DidDeposit, DidStartSettle, or DidSettle")
	fields := fs.String("fields", "{}", "JSON-encoded partial channel fields")
	fs.Parse(args)

	var parsedFields map[string]any
	if err := json.Unmarshal([]byte(*fields), &parsedFields); err != nil {
		return fmt.Errorf("invalid --fields JSON: %w", err)
	}

	body := map[string]any{
		"chain_id":     *chainID,
		"contract_id":  *contractID,
		"channel_id":   *channelID,
		"ts":           *ts,
		"block_number": *block,
		"sender":       *sender,
		"event_type":   *eventType,
		"fields":       parsedFields,
	}
	if strings.TrimSpace(*blockHash) != "" {
		body["block_hash"] = *blockHash
	}
	return postAndPrint(*server, path, body)
}

func runStateUpdate(args []string, path string) error {
	fs := flag.NewFlagSet(path, flag.ExitOnError)
	server := fs.String("server", defaultServer, "paychledgerd base URL")
	chainID, contractID, channelID := channelKeyFlags(fs)
	amount := fs.String("amount", "", "cumulative payment amount, base-10 wei string")
	signature := fs.String("signature", "", "0x-prefixed 65-byte signature")
	fs.Parse(args)

	body := map[string]any{
		"chain_id":    *chainID,
		"contract_id": *contractID,
		"channel_id":  *channelID,
		"amount":      *amount,
		"signature":   *signature,
	}
	return postAndPrint(*server, path, body)
}

func runSetRecentBlocks(args []string) error {
	fs := flag.NewFlagSet("set-recent-blocks", flag.ExitOnError)
	server := fs.String("server", defaultServer, "paychledgerd base URL")
	chainID := fs.Int64("chain-id", 0, "chain id")
	firstBlockNum := fs.Int64("first-block-num", 0, "block number of the first supplied hash")
	hashes := fs.String("hashes", "", "comma-separated list of 0x-prefixed block hashes, oldest first")
	fs.Parse(args)

	var hashList []string
	if strings.TrimSpace(*hashes) != "" {
		hashList = strings.Split(*hashes, ",")
	}

	body := map[string]any{
		"chain_id":        *chainID,
		"first_block_num": *firstBlockNum,
		"hashes":          hashList,
	}
	return postAndPrint(*server, "/set_recent_blocks", body)
}

func postAndPrint(server, path string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := strings.TrimRight(server, "/") + path
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func usage() {
	fmt.Println("paychctl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  setup-database           Install the ledger schema")
	fmt.Println("  selftest                 Check liveness and report version")
	fmt.Println("  get-channel-status       Fetch a channel's reduced status")
	fmt.Println("  get-channel-events       Fetch a channel's raw event stream")
	fmt.Println("  get-latest-state         Fetch a channel's latest state update")
	fmt.Println("  insert-channel-event     Record a confirmed on-chain event")
	fmt.Println("  insert-channel-intent    Record a pending (unconfirmed) intent")
	fmt.Println("  get-state-update-status  Preview a state update without admitting it")
	fmt.Println("  insert-state-update      Admit a signed off-chain state update")
	fmt.Println("  set-recent-blocks        Reassert the canonical chain suffix")
}
