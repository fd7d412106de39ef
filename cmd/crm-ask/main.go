// Package main provides crm-ask, a command-line client for the CRM assistant.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
