package grpcledger

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"qsb.qbck.io/did/didop"
	"qsb.qbck.io/did/ident"
	"qsb.qbck.io/did/keys"
	"qsb.qbck.io/did/ledger"
	"qsb.qbck.io/did/ledger/memledger"
)

func testClient(t *testing.T, gw ledger.Gateway) *Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterGatewayServer(srv, &Server{Gateway: gw})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })

	return &Client{cc: cc, client: NewGatewayClient(cc), Timeout: 2 * time.Second}
}

func TestGateway_MemLedger_RoundTrip(t *testing.T) {
	genesis := bytes.Repeat([]byte{0x42}, 32)
	client := testClient(t, memledger.New(genesis))
	ctx := context.Background()

	got, err := client.GenesisHash(ctx)
	if err != nil {
		t.Fatalf("GenesisHash: %v", err)
	}
	if !bytes.Equal(got, genesis) {
		t.Fatalf("genesis = %x, want %x", got, genesis)
	}

	kp, err := keys.NewKeypairFromSeed(bytes.Repeat([]byte{7}, keys.SeedSize))
	if err != nil {
		t.Fatalf("NewKeypairFromSeed: %v", err)
	}
	payload, err := didop.Build(didop.CreateIdentity, didop.Bytes(kp.Public))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sig, err := keys.Sign(kp.Private, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	receipt, err := client.Submit(ctx, ledger.Call{
		Op:        didop.CreateIdentity,
		Args:      []ledger.Arg{{Name: "public_key", Bytes: kp.Public}},
		Signature: sig,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !receipt.Success {
		t.Fatalf("submission rejected: %s", receipt.Error)
	}
	if receipt.ExtrinsicHash == "" || len(receipt.Events) != 1 {
		t.Fatalf("receipt = %+v, want hash and one event", receipt)
	}

	did, err := ident.DeriveDID(genesis, kp.Public)
	if err != nil {
		t.Fatalf("DeriveDID: %v", err)
	}
	details, err := client.Resolve(ctx, did)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// structpb decodes numbers as float64.
	if details["version"] != float64(1) {
		t.Fatalf("version = %v (%T), want 1", details["version"], details["version"])
	}
}

func TestGateway_RoleSetSurvivesTransport(t *testing.T) {
	genesis := bytes.Repeat([]byte{0x42}, 32)
	mem := memledger.New(genesis)
	client := testClient(t, mem)
	ctx := context.Background()

	kp, _ := keys.NewKeypairFromSeed(bytes.Repeat([]byte{7}, keys.SeedSize))
	extra, _ := keys.NewKeypairFromSeed(bytes.Repeat([]byte{8}, keys.SeedSize))
	payload, _ := didop.Build(didop.CreateIdentity, didop.Bytes(kp.Public))
	sig, _ := keys.Sign(kp.Private, payload)
	receipt, err := client.Submit(ctx, ledger.Call{
		Op:        didop.CreateIdentity,
		Args:      []ledger.Arg{{Name: "public_key", Bytes: kp.Public}},
		Signature: sig,
	})
	if err != nil || !receipt.Success {
		t.Fatalf("create: err=%v receipt=%+v", err, receipt)
	}
	did, _ := ident.DeriveDID(genesis, kp.Public)

	// A role-set argument crosses the wire as a string list and must rebuild
	// into the identical signed payload on the server side.
	payload, err = didop.Build(didop.AddKey,
		didop.Bytes([]byte(did)),
		didop.Bytes(extra.Public),
		didop.Roles(didop.RoleAssertionMethod, didop.RoleKeyAgreement),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sig, err = keys.Sign(kp.Private, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	receipt, err = client.Submit(ctx, ledger.Call{
		Op: didop.AddKey,
		Args: []ledger.Arg{
			{Name: "did_id", Bytes: []byte(did)},
			{Name: "public_key", Bytes: extra.Public},
			{Name: "roles", Roles: []string{"AssertionMethod", "KeyAgreement"}},
		},
		Signature: sig,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !receipt.Success {
		t.Fatalf("add key rejected after transport: %s", receipt.Error)
	}
}

func TestGateway_ResolveNotFound(t *testing.T) {
	client := testClient(t, memledger.New(bytes.Repeat([]byte{1}, 32)))

	_, err := client.Resolve(context.Background(), "did:qsb:missing")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err = %v, want ledger.ErrNotFound", err)
	}
}

func TestGateway_FreeBalance(t *testing.T) {
	mem := memledger.New(bytes.Repeat([]byte{1}, 32))
	mem.SetBalance("alice", 9001)
	client := testClient(t, mem)

	got, err := client.FreeBalance(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FreeBalance: %v", err)
	}
	if got != 9001 {
		t.Fatalf("balance = %d, want 9001", got)
	}
}
