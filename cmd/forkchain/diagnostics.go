// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pbnjay/memory"
	"github.com/urfave/cli/v2"
)

var cpuProfileFlag = cli.StringFlag{
	Name:  "cpuprofile",
	Usage: "records a CPU profile of the command in the given file",
}

// addPerformanceDiagnoses wraps a command action with optional CPU profiling
// and a summary of the resources used by the command.
func addPerformanceDiagnoses(action cli.ActionFunc) cli.ActionFunc {
	return func(context *cli.Context) error {
		if path := context.String(cpuProfileFlag.Name); path != "" {
			stop, err := startCpuProfile(path)
			if err != nil {
				return err
			}
			defer stop()
		}

		log.Info("Starting", "command", context.Command.Name, "memory", fmt.Sprintf("%d MB", memory.TotalMemory()>>20))
		start := time.Now()
		err := action(context)
		log.Info("Finished", "command", context.Command.Name, "elapsed", time.Since(start).Round(time.Millisecond), "err", err)
		return err
	}
}

func startCpuProfile(path string) (func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		if err := file.Close(); err != nil {
			log.Warn("Failed to close CPU profile", "path", path, "err", err)
		}
	}, nil
}
