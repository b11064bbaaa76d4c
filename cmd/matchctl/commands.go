package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"matchpool/core/types"
	"matchpool/native/admin"
	"matchpool/native/escrow"
	"matchpool/rpc"
)

func newFlagSet(name string, stderr io.Writer, usageText string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageText)
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func parseIdentities(raw string) ([]types.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []types.Identity
	for _, part := range strings.Split(raw, ",") {
		id, err := types.ParseIdentity(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr, "Usage: matchctl token --subject IDENTITY [--secret-env NAME] [--issuer ISS] [--ttl 1h]")
	var (
		subject   string
		secretEnv string
		issuer    string
		ttl       time.Duration
	)
	fs.StringVar(&subject, "subject", "", "identity the token binds")
	fs.StringVar(&secretEnv, "secret-env", "MATCHPOOL_JWT_SECRET", "environment variable holding the HMAC secret")
	fs.StringVar(&issuer, "issuer", "", "token issuer")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	id, err := types.ParseIdentity(subject)
	if err != nil {
		return printError(stderr, fmt.Sprintf("invalid subject: %v", err))
	}
	secret, err := resolveSecret(secretEnv, stderr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	token, err := rpc.IssueToken(secret, issuer, id, ttl)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return printError(stderr, "usage: matchctl balance IDENTITY")
	}
	id, err := types.ParseIdentity(args[0])
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(rpc.MethodBalance, rpc.BalanceParams{Identity: id}, "", stdout, stderr)
}

func runOperations(stdout, stderr io.Writer) int {
	return invoke(rpc.MethodOperations, nil, "", stdout, stderr)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr, "Usage: matchctl events [--from N] [--limit N]")
	from := fs.Uint64("from", 0, "first sequence number")
	limit := fs.Int("limit", 0, "maximum records")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return invoke(rpc.MethodEvents, rpc.EventsParams{From: *from, Limit: *limit}, "", stdout, stderr)
}

func runCall(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("call", stderr, "Usage: matchctl call --method NAME [--params JSON] [--value AMOUNT]")
	var method, params, value string
	fs.StringVar(&method, "method", "", "operation name")
	fs.StringVar(&params, "params", "", "JSON arguments")
	fs.StringVar(&value, "value", "", "attached value")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if method == "" {
		return printError(stderr, "--method is required")
	}
	var payload interface{}
	if params != "" {
		if !json.Valid([]byte(params)) {
			return printError(stderr, "--params must be valid JSON")
		}
		payload = json.RawMessage(params)
	}
	return invoke(method, payload, value, stdout, stderr)
}

func matchUsage() string {
	return strings.TrimSpace(`Usage:
  matchctl match <command> [flags]

Commands:
  create   Open a match and stake the creator
  join     Join a match with the stake
  forfeit  Leave a match before it starts and take the stake back
  ready    Lock a match for play (controller)
  loser    Mark a participant as loser (controller)
  resolve  Distribute the pool (controller)
  get      Show a match
  list     List matches
`)
}

func runMatchCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, matchUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return runMatchCreate(args[1:], stdout, stderr)
	case "join":
		return runMatchJoin(args[1:], stdout, stderr)
	case "forfeit":
		return runMatchSimple(escrow.OpForfeitMatch, args[1:], stdout, stderr)
	case "ready":
		return runMatchSimple(escrow.OpSetMatchReady, args[1:], stdout, stderr)
	case "get":
		return runMatchSimple(escrow.OpGetMatch, args[1:], stdout, stderr)
	case "loser":
		return runMatchLoser(args[1:], stdout, stderr)
	case "resolve":
		return runMatchResolve(args[1:], stdout, stderr)
	case "list":
		return runMatchList(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown match subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, matchUsage())
		return 1
	}
}

func runMatchCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("match create", stderr, matchUsage())
	var controller, stake, allow string
	var maxParticipants uint64
	fs.StringVar(&controller, "controller", "", "controller identity")
	fs.StringVar(&stake, "stake", "", "stake amount")
	fs.StringVar(&allow, "allow", "", "comma separated allow-list")
	fs.Uint64Var(&maxParticipants, "max", 0, "participant cap (0 for unlimited)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	ctrl, err := types.ParseIdentity(controller)
	if err != nil {
		return printError(stderr, fmt.Sprintf("invalid controller: %v", err))
	}
	amount, err := parseAmount(stake)
	if err != nil {
		return printError(stderr, err.Error())
	}
	allowList, err := parseIdentities(allow)
	if err != nil {
		return printError(stderr, fmt.Sprintf("invalid allow-list: %v", err))
	}
	params := escrow.CreateMatchArgs{Controller: ctrl, StakeAmount: amount, MaxParticipants: maxParticipants, AllowList: allowList}
	return invoke(escrow.OpCreateMatch, params, amount.String(), stdout, stderr)
}

func runMatchJoin(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("match join", stderr, matchUsage())
	id := fs.Uint64("id", 0, "match id")
	stake := fs.String("stake", "", "stake amount")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	amount, err := parseAmount(*stake)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(escrow.OpJoinMatch, escrow.MatchArgs{MatchID: *id}, amount.String(), stdout, stderr)
}

func runMatchSimple(method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("match "+method, stderr, matchUsage())
	id := fs.Uint64("id", 0, "match id")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return invoke(method, escrow.MatchArgs{MatchID: *id}, "", stdout, stderr)
}

func runMatchLoser(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("match loser", stderr, matchUsage())
	id := fs.Uint64("id", 0, "match id")
	participant := fs.String("participant", "", "participant identity")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	who, err := types.ParseIdentity(*participant)
	if err != nil {
		return printError(stderr, fmt.Sprintf("invalid participant: %v", err))
	}
	return invoke(escrow.OpMarkLoser, escrow.MarkLoserArgs{MatchID: *id, Participant: who}, "", stdout, stderr)
}

func runMatchResolve(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("match resolve", stderr, matchUsage())
	id := fs.Uint64("id", 0, "match id")
	fee := fs.Uint64("fee", 0, "controller fee percent")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return invoke(escrow.OpResolveMatch, escrow.ResolveMatchArgs{MatchID: *id, ControllerFeePercent: *fee}, "", stdout, stderr)
}

func runMatchList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("match list", stderr, matchUsage())
	var controller string
	filter := escrow.MatchFilter{}
	fs.StringVar(&controller, "controller", "", "restrict to a controller")
	fs.BoolVar(&filter.IncludeUnstarted, "unstarted", false, "include matches not yet started")
	fs.BoolVar(&filter.IncludeOngoing, "ongoing", false, "include ready matches")
	fs.BoolVar(&filter.IncludeEnded, "ended", false, "include ended matches")
	fs.Uint64Var(&filter.Offset, "offset", 0, "page offset")
	fs.Uint64Var(&filter.Limit, "limit", 0, "page size")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if controller != "" {
		id, err := types.ParseIdentity(controller)
		if err != nil {
			return printError(stderr, fmt.Sprintf("invalid controller: %v", err))
		}
		filter.Controller = &id
	}
	return invoke(escrow.OpListMatches, filter, "", stdout, stderr)
}

func adminUsage() string {
	return strings.TrimSpace(`Usage:
  matchctl admin <command> [flags]

Commands:
  config     Show the platform configuration
  set-fee    Set the platform fee percent
  transfer   Hand the administrator role to another identity
  pause      Pause or resume a module
  withdraw   Withdraw retained platform fees
`)
}

func runAdminCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	fs := newFlagSet("admin "+args[0], stderr, adminUsage())
	switch args[0] {
	case "config":
		return invoke(admin.OpGetConfig, nil, "", stdout, stderr)
	case "set-fee":
		fee := fs.Uint64("percent", 0, "platform fee percent")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		return invoke(admin.OpSetPlatformFee, admin.SetPlatformFeeArgs{FeePercent: *fee}, "", stdout, stderr)
	case "transfer":
		to := fs.String("to", "", "new administrator")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		id, err := types.ParseIdentity(*to)
		if err != nil {
			return printError(stderr, err.Error())
		}
		return invoke(admin.OpTransferAdministrator, admin.TransferAdministratorArgs{Administrator: id}, "", stdout, stderr)
	case "pause":
		module := fs.String("module", escrow.ModuleName, "module name")
		resume := fs.Bool("resume", false, "resume instead of pausing")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		return invoke(admin.OpSetModulePaused, admin.SetModulePausedArgs{Module: *module, Paused: !*resume}, "", stdout, stderr)
	case "withdraw":
		to := fs.String("to", "", "recipient")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		id, err := types.ParseIdentity(*to)
		if err != nil {
			return printError(stderr, err.Error())
		}
		return invoke(admin.OpWithdrawPlatformFees, admin.WithdrawPlatformFeesArgs{To: id}, "", stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown admin subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
}
