// Command lsmkv is a thin smoke-test harness for the storage engine: it
// opens (or creates) an engine at a directory, applies one of a handful
// of fixed operations against it, and prints the result. Command-line
// parsing proper is out of scope (spec §1); this is not a shell.
package main

import (
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"strconv"

	"github.com/go-faker/faker/v4"

	"github.com/Risc-lt/LSM-KV/engine"
)

func main() {
	dir := flag.String("dir", "./data", "engine data directory")
	seedRecords := flag.Int("seed", 0, "seed this many fake (key, value) pairs on startup, for smoke-testing")
	flag.Parse()

	e, err := engine.Open(*dir)
	if err != nil {
		log.Fatalf("lsmkv: open %s: %v", *dir, err)
	}
	defer func() {
		if err := e.Close(); err != nil {
			log.Printf("lsmkv: close: %v", err)
		}
	}()

	if *seedRecords > 0 {
		seed(e, *seedRecords)
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("usage: lsmkv -dir=<path> <put|get|del|scan> ...")
		return
	}

	switch args[0] {
	case "put":
		key := mustKey(args[1])
		if err := e.Put(key, []byte(args[2])); err != nil {
			log.Fatalf("lsmkv: put: %v", err)
		}
	case "get":
		fmt.Printf("%s\n", e.Get(mustKey(args[1])))
	case "del":
		ok, err := e.Del(mustKey(args[1]))
		if err != nil {
			log.Fatalf("lsmkv: del: %v", err)
		}
		fmt.Println(ok)
	case "scan":
		var out []engine.ScanResult
		e.Scan(mustKey(args[1]), mustKey(args[2]), &out)
		for _, r := range out {
			fmt.Printf("%d\t%s\n", r.Key, r.Value)
		}
	default:
		log.Fatalf("lsmkv: unknown command %q", args[0])
	}
}

// seed populates the engine with n fake records, following the same
// demo-seeding shape as lsm-store/cmd/main.go's seedDatabaseWithTestRecords
// — generated words from go-faker as values. Our key domain is a fixed
// uint64 rather than an arbitrary byte string, so each generated word is
// hashed down to a key instead of used directly.
func seed(e *engine.Engine, n int) {
	for i := 0; i < n; i++ {
		word := faker.Word() + faker.Word()
		if err := e.Put(fnvKey(word), []byte(word)); err != nil {
			log.Fatalf("lsmkv: seed: %v", err)
		}
	}
}

func fnvKey(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func mustKey(s string) uint64 {
	k, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		log.Fatalf("lsmkv: bad key %q: %v", s, err)
	}
	return k
}
