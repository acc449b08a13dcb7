//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

const binaryName = "anima-memory"

type Build mg.Namespace

// Downloads the modules and builds the binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/"+binaryName, "."), withStream())
	return err
}

type Test mg.Namespace

// Runs every package's unit tests.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the unit tests under the race detector.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}

// Runs the allocator and pool benchmarks.
func (Test) Bench() error {
	_, err := executeCmd("go", withArgs("test", "-run", "^$", "-bench", ".", "-benchmem", "./..."), withDir("engine"), withStream())
	return err
}
