// qsb-gatewayd serves the Gateway gRPC service over an in-memory ledger.
// It exists for demos and integration tests; a production deployment fronts
// the real chain instead.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"google.golang.org/grpc"

	"qsb.qbck.io/did/ledger/grpcledger"
	"qsb.qbck.io/did/ledger/memledger"
)

func main() {
	fs := flag.NewFlagSet("qsb-gatewayd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:9944", "listen address")
	genesisHex := fs.String("genesis-hex", "", "genesis hash as 64 hex chars (random if empty)")

	_ = fs.Parse(os.Args[1:])

	var genesis []byte
	if *genesisHex != "" {
		b, err := hex.DecodeString(strings.TrimPrefix(*genesisHex, "0x"))
		if err != nil || len(b) != 32 {
			fmt.Fprintln(os.Stderr, "invalid --genesis-hex: expected 32 bytes (64 hex chars)")
			os.Exit(2)
		}
		genesis = b
	} else {
		genesis = make([]byte, 32)
		if _, err := rand.Read(genesis); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcledger.RegisterGatewayServer(s, &grpcledger.Server{Gateway: memledger.New(genesis)})

	fmt.Fprintf(os.Stderr, "qsb-gatewayd listening on %s (genesis=0x%s)\n", lis.Addr().String(), hex.EncodeToString(genesis))
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
