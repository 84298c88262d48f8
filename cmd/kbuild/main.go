// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command kbuild compiles a board's TOML configuration (spec §6) into
// the packed descriptor table pkg/abi defines, the way the real
// kernel's xtask build step emits a task/region/IRQ table from board
// RON configuration.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/oxidecomputer/hubris-sub002/pkg/klog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&compileCmd{}, "")
	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

type compileCmd struct {
	out     string
	verbose bool
}

func (*compileCmd) Name() string     { return "compile" }
func (*compileCmd) Synopsis() string { return "compile a board TOML file into a descriptor table" }
func (*compileCmd) Usage() string {
	return "compile -out=<path> <board.toml>\n"
}

func (c *compileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "out", "descriptor.bin", "output descriptor table path")
	f.BoolVar(&c.verbose, "v", false, "verbose logging")
}

func (c *compileCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	log := klog.New(levelFor(c.verbose))

	if f.NArg() != 1 {
		log.Errorf("compile: expected exactly one board config argument")
		return subcommands.ExitUsageError
	}
	boardPath := f.Arg(0)

	if err := run(boardPath, c.out, log); err != nil {
		log.Errorf("compile: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func run(boardPath, outPath string, log klog.Logger) error {
	cfg, err := loadBoardConfig(boardPath)
	if err != nil {
		return err
	}
	log.Debugf("loaded board config %q: %d tasks, %d memory outputs", boardPath, len(cfg.Tasks), len(cfg.Memory))

	desc, err := buildDescriptor(cfg)
	if err != nil {
		return errors.Wrap(err, "building descriptor table")
	}
	log.Infof("built %s", desc.Header.String())

	if err := writeLocked(outPath, desc.Encode()); err != nil {
		return errors.Wrapf(err, "writing descriptor table %q", outPath)
	}
	return nil
}

func levelFor(verbose bool) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}
