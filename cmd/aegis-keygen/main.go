// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Command aegis-keygen generates a server's long-term identity key and
// persists its 64-byte secret blob to disk. It is a single-command utility,
// not a framework-driven application, so it is built on the standard flag
// package rather than a CLI framework.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sixafter/aegis"
)

func main() {
	var (
		out   = flag.String("out", "server.secret", "path to write the server's persisted secret blob")
		force = flag.Bool("force", false, "overwrite -out if it already exists")
	)
	flag.Parse()

	if !*force {
		if _, err := os.Stat(*out); err == nil {
			log.Fatalf("aegis-keygen: %s already exists; pass -force to overwrite", *out)
		}
	}

	server, err := aegis.NewServer()
	if err != nil {
		log.Fatalf("aegis-keygen: generate server identity: %v", err)
	}

	if err := server.SaveSecretToFile(*out); err != nil {
		log.Fatalf("aegis-keygen: save secret: %v", err)
	}

	pub, err := server.PublicKey()
	if err != nil {
		log.Fatalf("aegis-keygen: read public key: %v", err)
	}

	fmt.Printf("public key:  %s\n", hex.EncodeToString(pub[:]))
	fmt.Printf("secret path: %s\n", *out)
}
