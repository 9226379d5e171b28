package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadAccounts parses lines of "username:password:shared_secret[:proxy_name]"
// from path, matching the teacher implementation's colon-delimited
// account file format (SPEC_FULL §4.11), with the trailing proxy name
// field used only by the static ProxySelector mode.
func LoadAccounts(path string) ([]Account, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer file.Close()

	var accounts []Account
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 3 {
			continue
		}
		account := Account{
			Username:     parts[0],
			Password:     parts[1],
			SharedSecret: parts[2],
		}
		if len(parts) >= 4 {
			account.ProxyName = parts[3]
		}
		accounts = append(accounts, account)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return accounts, nil
}
