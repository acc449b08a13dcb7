//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the allocation testbed. MEMORY_CONFIG selects a configuration file.
func (Run) Testbed() error {
	mg.Deps(Build.Binary)

	args := []string{"run"}
	if path := os.Getenv("MEMORY_CONFIG"); path != "" {
		args = append(args, "--config", path)
	}
	fmt.Println("Run testbed...")
	if _, err := executeCmd("bin/"+binaryName, withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}
