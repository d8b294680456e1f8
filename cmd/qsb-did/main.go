package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"qsb.qbck.io/did/client"
	"qsb.qbck.io/did/didop"
	"qsb.qbck.io/did/keys"
	"qsb.qbck.io/did/keystore"
	"qsb.qbck.io/did/ledger"
)

// passwordEnv holds the keystore password; there is no flag for it so the
// password never lands in shell history or process listings.
const passwordEnv = "QSB_STORE_PASSWORD"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "did":
		return cmdDID(args[1:], out, errOut)
	case "schema":
		return cmdSchema(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "balance":
		return cmdBalance(args[1:], out, errOut)
	case "demo":
		return cmdDemo(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "qsb-did: QSB decentralized identity CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  qsb-did did create")
	fmt.Fprintln(w, "  qsb-did did resolve [<did>]")
	fmt.Fprintln(w, "  qsb-did did add-key --public-key <hex> --role <role> [--role ...]")
	fmt.Fprintln(w, "  qsb-did did update-roles --public-key <hex> --role <role> [--role ...]")
	fmt.Fprintln(w, "  qsb-did did rotate-key --old <hex> --new <hex> --role <role> [--role ...]")
	fmt.Fprintln(w, "  qsb-did did set-metadata --key <k> --value <v>")
	fmt.Fprintln(w, "  qsb-did did remove-metadata --key <k>")
	fmt.Fprintln(w, "  qsb-did did add-service --id <id> --type <type> --endpoint <url>")
	fmt.Fprintln(w, "  qsb-did did remove-service --id <id>")
	fmt.Fprintln(w, "  qsb-did did revoke-key --public-key <hex>")
	fmt.Fprintln(w, "  qsb-did did deactivate")
	fmt.Fprintln(w, "  qsb-did schema register --file <schema.json> [--uri <uri>]")
	fmt.Fprintln(w, "  qsb-did schema deprecate --id <schema-id> --file <schema.json>")
	fmt.Fprintln(w, "  qsb-did key show")
	fmt.Fprintln(w, "  qsb-did key export")
	fmt.Fprintln(w, "  qsb-did balance --account <addr>")
	fmt.Fprintln(w, "  qsb-did demo")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Connection flags (every command): --config <file>, --gateway <host:port>,")
	fmt.Fprintln(w, "--store-dir <dir>, --archive-dir <dir>. Flags override the config file;")
	fmt.Fprintln(w, "environment variables QSB_GATEWAY_TARGET, QSB_STORE_DIR, QSB_ARCHIVE_DIR")
	fmt.Fprintln(w, "override both. The keystore password is read from "+passwordEnv+".")
	fmt.Fprintln(w, "Roles: Authentication, AssertionMethod, KeyAgreement,")
	fmt.Fprintln(w, "CapabilityInvocation, CapabilityDelegation.")
}

// connFlags are the connection settings shared by every subcommand.
type connFlags struct {
	config     string
	gateway    string
	storeDir   string
	archiveDir string
	timeout    int
}

func (c *connFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "JSON config file")
	fs.StringVar(&c.gateway, "gateway", "", "Gateway target (host:port)")
	fs.StringVar(&c.storeDir, "store-dir", "", "Directory holding the encrypted key store")
	fs.StringVar(&c.archiveDir, "archive-dir", "", "Optional local schema archive directory")
	fs.IntVar(&c.timeout, "timeout", 0, "Per-RPC timeout in seconds")
}

func (c *connFlags) open() (*client.Client, func() error, error) {
	var cfg client.Config
	if c.config != "" {
		loaded, err := client.LoadFile(c.config)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	cfg = cfg.FromEnv()
	if c.gateway != "" {
		cfg.GatewayTarget = c.gateway
	}
	if c.storeDir != "" {
		cfg.StoreDir = c.storeDir
	}
	if c.archiveDir != "" {
		cfg.ArchiveDir = c.archiveDir
	}
	if c.timeout > 0 {
		cfg.RPCTimeoutSeconds = c.timeout
	}
	return cfg.Open()
}

func password(errOut io.Writer) (string, bool) {
	pw := os.Getenv(passwordEnv)
	if pw == "" {
		fmt.Fprintf(errOut, "missing keystore password: set %s\n", passwordEnv)
		return "", false
	}
	return pw, true
}

func printReceipt(out io.Writer, receipt ledger.Receipt) {
	fmt.Fprintf(out, "Extrinsic hash: %s\n", receipt.ExtrinsicHash)
	if receipt.BlockHash != "" {
		fmt.Fprintf(out, "Block hash: %s\n", receipt.BlockHash)
	}
	if receipt.FinalizedHash != "" {
		fmt.Fprintf(out, "Finalized hash: %s\n", receipt.FinalizedHash)
	}
	fmt.Fprintf(out, "Success: %v\n", receipt.Success)
	if !receipt.Success {
		fmt.Fprintf(out, "Error: %s\n", receipt.Error)
	}
	for _, ev := range receipt.Events {
		fmt.Fprintf(out, "Event: %s.%s %v\n", ev.Pallet, ev.Name, ev.Params)
	}
}

func receiptExit(out io.Writer, receipt ledger.Receipt) int {
	printReceipt(out, receipt)
	if !receipt.Success {
		return 1
	}
	return 0
}

type roleList []string

func (r *roleList) String() string { return strings.Join(*r, ",") }
func (r *roleList) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func cmdDID(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: qsb-did did <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: create, resolve, add-key, update-roles, rotate-key,")
		fmt.Fprintln(errOut, "  set-metadata, remove-metadata, add-service, remove-service,")
		fmt.Fprintln(errOut, "  revoke-key, deactivate")
		return 2
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("did "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var conn connFlags
	conn.register(fs)

	var publicKeyHex, oldHex, newHex string
	var metaKey, metaValue string
	var serviceID, serviceType, endpoint string
	var roleNames roleList
	switch sub {
	case "add-key", "update-roles", "revoke-key":
		fs.StringVar(&publicKeyHex, "public-key", "", "Target public key (hex)")
	case "rotate-key":
		fs.StringVar(&oldHex, "old", "", "Public key to rotate out (hex)")
		fs.StringVar(&newHex, "new", "", "Public key to rotate in (hex)")
	case "set-metadata", "remove-metadata":
		fs.StringVar(&metaKey, "key", "", "Metadata key")
		if sub == "set-metadata" {
			fs.StringVar(&metaValue, "value", "", "Metadata value")
		}
	case "add-service", "remove-service":
		fs.StringVar(&serviceID, "id", "", "Service id (e.g. #agent)")
		if sub == "add-service" {
			fs.StringVar(&serviceType, "type", "", "Service type")
			fs.StringVar(&endpoint, "endpoint", "", "Service endpoint URL")
		}
	}
	switch sub {
	case "add-key", "update-roles", "rotate-key":
		fs.Var(&roleNames, "role", "Key role (repeatable)")
	}

	if err := fs.Parse(rest); err != nil {
		return 2
	}

	c, closeFn, err := conn.open()
	if err != nil {
		fmt.Fprintf(errOut, "connect: %v\n", err)
		return 1
	}
	defer func() { _ = closeFn() }()
	ctx := context.Background()

	if sub == "resolve" {
		return didResolve(ctx, c, fs.Args(), out, errOut)
	}

	pw, ok := password(errOut)
	if !ok {
		return 2
	}

	if sub == "create" {
		id, receipt, err := c.CreateIdentity(ctx, pw)
		if err != nil {
			fmt.Fprintf(errOut, "create: %v\n", err)
			if receipt.ExtrinsicHash != "" {
				printReceipt(errOut, receipt)
			}
			return 1
		}
		defer id.Keypair.Zero()
		fmt.Fprintf(out, "DID: %s\n", id.DID)
		fmt.Fprintf(out, "Public key: %s\n", hex.EncodeToString(id.Keypair.Public))
		return receiptExit(out, receipt)
	}

	id, err := c.LoadIdentity(pw)
	if err != nil {
		fmt.Fprintf(errOut, "load identity: %v\n", err)
		return 1
	}
	defer id.Keypair.Zero()

	var roles []didop.Role
	if len(roleNames) > 0 {
		roles, err = didop.ParseRoles(roleNames)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --role: %v\n", err)
			return 2
		}
	}

	var receipt ledger.Receipt
	switch sub {
	case "add-key", "update-roles", "revoke-key":
		pub, derr := parseKeyHex(publicKeyHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --public-key: %v\n", derr)
			return 2
		}
		switch sub {
		case "add-key":
			if len(roles) == 0 {
				fmt.Fprintln(errOut, "missing --role")
				return 2
			}
			receipt, err = c.AddKey(ctx, id, pub, roles)
		case "update-roles":
			if len(roles) == 0 {
				fmt.Fprintln(errOut, "missing --role")
				return 2
			}
			receipt, err = c.UpdateRoles(ctx, id, pub, roles)
		case "revoke-key":
			receipt, err = c.RevokeKey(ctx, id, pub)
		}
	case "rotate-key":
		oldPub, derr := parseKeyHex(oldHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --old: %v\n", derr)
			return 2
		}
		newPub, derr := parseKeyHex(newHex)
		if derr != nil {
			fmt.Fprintf(errOut, "invalid --new: %v\n", derr)
			return 2
		}
		if len(roles) == 0 {
			fmt.Fprintln(errOut, "missing --role")
			return 2
		}
		receipt, err = c.RotateKey(ctx, id, oldPub, newPub, roles)
	case "set-metadata":
		if metaKey == "" {
			fmt.Fprintln(errOut, "missing --key")
			return 2
		}
		receipt, err = c.SetMetadata(ctx, id, []byte(metaKey), []byte(metaValue))
	case "remove-metadata":
		if metaKey == "" {
			fmt.Fprintln(errOut, "missing --key")
			return 2
		}
		receipt, err = c.RemoveMetadata(ctx, id, []byte(metaKey))
	case "add-service":
		if serviceID == "" || serviceType == "" || endpoint == "" {
			fmt.Fprintln(errOut, "missing --id, --type, or --endpoint")
			return 2
		}
		receipt, err = c.AddService(ctx, id, []byte(serviceID), []byte(serviceType), []byte(endpoint))
	case "remove-service":
		if serviceID == "" {
			fmt.Fprintln(errOut, "missing --id")
			return 2
		}
		receipt, err = c.RemoveService(ctx, id, []byte(serviceID))
	case "deactivate":
		receipt, err = c.Deactivate(ctx, id)
	default:
		fmt.Fprintf(errOut, "unknown did subcommand: %s\n", sub)
		return 2
	}
	if err != nil {
		fmt.Fprintf(errOut, "did %s: %v\n", sub, err)
		return 1
	}
	return receiptExit(out, receipt)
}

func didResolve(ctx context.Context, c *client.Client, args []string, out io.Writer, errOut io.Writer) int {
	var target string
	switch len(args) {
	case 0:
		pw, ok := password(errOut)
		if !ok {
			return 2
		}
		id, err := c.LoadIdentity(pw)
		if err != nil {
			fmt.Fprintf(errOut, "load identity: %v\n", err)
			return 1
		}
		id.Keypair.Zero()
		target = id.DID
	case 1:
		target = args[0]
	default:
		fmt.Fprintln(errOut, "usage: qsb-did did resolve [<did>]")
		return 2
	}

	doc, err := c.Resolve(ctx, target)
	if err != nil {
		fmt.Fprintf(errOut, "resolve %s: %v\n", target, err)
		return 1
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintf(errOut, "render document: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, string(b))
	return 0
}

func cmdSchema(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: qsb-did schema <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: register, deprecate")
		return 2
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("schema "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var conn connFlags
	conn.register(fs)

	var file, uri, schemaID string
	fs.StringVar(&file, "file", "", "Schema JSON file")
	switch sub {
	case "register":
		fs.StringVar(&uri, "uri", "", "Schema URI recorded on the ledger")
	case "deprecate":
		fs.StringVar(&schemaID, "id", "", "Schema identifier")
	default:
		fmt.Fprintf(errOut, "unknown schema subcommand: %s\n", sub)
		return 2
	}

	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if file == "" {
		fmt.Fprintln(errOut, "missing --file")
		return 2
	}
	schemaJSON, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(errOut, "read schema: %v\n", err)
		return 1
	}
	pw, ok := password(errOut)
	if !ok {
		return 2
	}

	c, closeFn, err := conn.open()
	if err != nil {
		fmt.Fprintf(errOut, "connect: %v\n", err)
		return 1
	}
	defer func() { _ = closeFn() }()
	ctx := context.Background()

	id, err := c.LoadIdentity(pw)
	if err != nil {
		fmt.Fprintf(errOut, "load identity: %v\n", err)
		return 1
	}
	defer id.Keypair.Zero()

	switch sub {
	case "register":
		derivedID, receipt, rerr := c.RegisterSchema(ctx, id, schemaJSON, []byte(uri))
		if rerr != nil {
			fmt.Fprintf(errOut, "register schema: %v\n", rerr)
			return 1
		}
		fmt.Fprintf(out, "Schema ID: %s\n", derivedID)
		return receiptExit(out, receipt)
	case "deprecate":
		if schemaID == "" {
			fmt.Fprintln(errOut, "missing --id")
			return 2
		}
		receipt, derr := c.DeprecateSchema(ctx, id, schemaID, schemaJSON)
		if derr != nil {
			fmt.Fprintf(errOut, "deprecate schema: %v\n", derr)
			return 1
		}
		return receiptExit(out, receipt)
	}
	return 2
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: qsb-did key <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: show, export")
		return 2
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("key "+sub, flag.ContinueOnError)
	fs.SetOutput(errOut)
	var storeDir string
	fs.StringVar(&storeDir, "store-dir", "", "Directory holding the encrypted key store")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if storeDir == "" {
		storeDir = os.Getenv(client.EnvStoreDir)
	}
	if storeDir == "" {
		fmt.Fprintln(errOut, "missing --store-dir (or "+client.EnvStoreDir+")")
		return 2
	}

	switch sub {
	case "show":
		pw, ok := password(errOut)
		if !ok {
			return 2
		}
		c := &client.Client{Store: storeAt(storeDir)}
		id, err := c.LoadIdentity(pw)
		if err != nil {
			fmt.Fprintf(errOut, "load identity: %v\n", err)
			return 1
		}
		defer id.Keypair.Zero()
		fmt.Fprintf(out, "DID: %s\n", id.DID)
		fmt.Fprintf(out, "Public key: %s\n", hex.EncodeToString(id.Keypair.Public))
		return 0
	case "export":
		// Prints the encrypted record verbatim; the private key stays sealed.
		raw, err := os.ReadFile(storeAt(storeDir).Path())
		if err != nil {
			fmt.Fprintf(errOut, "read store: %v\n", err)
			return 1
		}
		_, _ = out.Write(raw)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", sub)
		return 2
	}
}

func cmdBalance(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var conn connFlags
	conn.register(fs)
	var account string
	fs.StringVar(&account, "account", "", "Transport account address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if account == "" {
		fmt.Fprintln(errOut, "missing --account")
		return 2
	}

	c, closeFn, err := conn.open()
	if err != nil {
		fmt.Fprintf(errOut, "connect: %v\n", err)
		return 1
	}
	defer func() { _ = closeFn() }()

	balance, err := c.FreeBalance(context.Background(), account)
	if err != nil {
		fmt.Fprintf(errOut, "balance: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, balance)
	return 0
}

// cmdDemo walks an identity through its whole lifecycle against the
// configured gateway: create, resolve, key management, metadata, services,
// schema registration and deprecation, deactivation.
func cmdDemo(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var conn connFlags
	conn.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pw, ok := password(errOut)
	if !ok {
		return 2
	}

	c, closeFn, err := conn.open()
	if err != nil {
		fmt.Fprintf(errOut, "connect: %v\n", err)
		return 1
	}
	defer func() { _ = closeFn() }()
	ctx := context.Background()

	step := func(name string) { fmt.Fprintf(out, "Step: %s\n", name) }
	check := func(receipt ledger.Receipt, err error) bool {
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return false
		}
		printReceipt(out, receipt)
		return receipt.Success
	}

	step("load or create identity")
	id, created, receipt, err := c.LoadOrCreateIdentity(ctx, pw)
	if err != nil {
		fmt.Fprintf(errOut, "identity: %v\n", err)
		return 1
	}
	defer id.Keypair.Zero()
	if created {
		printReceipt(out, receipt)
	}
	fmt.Fprintf(out, "DID: %s\n", id.DID)

	step("resolve DID document")
	if rc := didResolve(ctx, c, []string{id.DID}, out, errOut); rc != 0 {
		return rc
	}

	step("add key (assertion method)")
	secondary, err := keys.Generate(rand.Reader)
	if err != nil {
		fmt.Fprintf(errOut, "generate key: %v\n", err)
		return 1
	}
	secondary.Zero()
	if !check(c.AddKey(ctx, id, secondary.Public, []didop.Role{didop.RoleAssertionMethod})) {
		return 1
	}

	step("update key roles")
	if !check(c.UpdateRoles(ctx, id, secondary.Public, []didop.Role{didop.RoleCapabilityInvocation})) {
		return 1
	}

	step("rotate key")
	rotated, err := keys.Generate(rand.Reader)
	if err != nil {
		fmt.Fprintf(errOut, "generate key: %v\n", err)
		return 1
	}
	rotated.Zero()
	if !check(c.RotateKey(ctx, id, secondary.Public, rotated.Public, []didop.Role{didop.RoleCapabilityDelegation})) {
		return 1
	}

	step("set metadata")
	if !check(c.SetMetadata(ctx, id, []byte("profile"), []byte("https://example.com/profile"))) {
		return 1
	}

	step("add service")
	if !check(c.AddService(ctx, id, []byte("#agent"), []byte("DIDCommMessaging"), []byte("https://agent.example.com"))) {
		return 1
	}

	step("resolve DID document (after add service)")
	if rc := didResolve(ctx, c, []string{id.DID}, out, errOut); rc != 0 {
		return rc
	}

	step("remove service")
	if !check(c.RemoveService(ctx, id, []byte("#agent"))) {
		return 1
	}

	step("remove metadata")
	if !check(c.RemoveMetadata(ctx, id, []byte("profile"))) {
		return 1
	}

	step("revoke rotated key")
	if !check(c.RevokeKey(ctx, id, rotated.Public)) {
		return 1
	}

	step("register schema")
	schemaJSON, err := client.SchemaJSON(map[string]any{"name": "example", "version": "1.0"}, "")
	if err != nil {
		fmt.Fprintf(errOut, "schema json: %v\n", err)
		return 1
	}
	schemaID, receipt, err := c.RegisterSchema(ctx, id, schemaJSON, []byte("ipfs://example-schema"))
	if err != nil {
		fmt.Fprintf(errOut, "register schema: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Schema ID: %s\n", schemaID)
	printReceipt(out, receipt)
	if !receipt.Success {
		return 1
	}

	step("deprecate schema")
	if !check(c.DeprecateSchema(ctx, id, schemaID, schemaJSON)) {
		return 1
	}

	step("deactivate DID")
	if !check(c.Deactivate(ctx, id)) {
		return 1
	}

	fmt.Fprintln(out, "Done.")
	return 0
}

func storeAt(dir string) *keystore.Store { return keystore.New(dir) }

func parseKeyHex(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty key")
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != keys.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", keys.PublicKeySize, len(b))
	}
	return b, nil
}
