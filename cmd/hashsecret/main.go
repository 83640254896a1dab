// Команда hashsecret печатает bcrypt хеш для DEBUG_PASSWORD.
//
//	echo -n 'password' | go run ./cmd/hashsecret
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/temitopeohassan/perpraid/pkg/crypto"
)

func main() {
	cost := flag.Int("cost", crypto.DefaultCost, "bcrypt cost")
	flag.Parse()

	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && secret == "" {
		fmt.Fprintln(os.Stderr, "read secret from stdin:", err)
		os.Exit(1)
	}
	secret = strings.TrimRight(secret, "\r\n")

	hash, err := crypto.HashSecret(secret, *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hash secret:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
