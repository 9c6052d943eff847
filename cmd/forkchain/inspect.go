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
	"errors"
	"fmt"
	"strconv"

	"github.com/0xsoniclabs/forkchain/database/cachestore"
	"github.com/0xsoniclabs/forkchain/database/remote"
	"github.com/urfave/cli/v2"
)

var Inspect = cli.Command{
	Action:    addPerformanceDiagnoses(inspect),
	Name:      "inspect",
	Usage:     "summarizes the fork cache persisted for a chain and block",
	ArgsUsage: "<chain-id> <block>",
	Flags: []cli.Flag{
		&cacheKindFlag,
		&cacheDirFlag,
		&cpuProfileFlag,
	},
}

func inspect(context *cli.Context) (err error) {
	if context.Args().Len() != 2 {
		return fmt.Errorf("missing chain id and block number")
	}
	chainID, err := strconv.ParseUint(context.Args().Get(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chain id: %w", err)
	}
	block, err := strconv.ParseUint(context.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid block number: %w", err)
	}

	store, err := openCacheStore(context.String(cacheKindFlag.Name), context.String(cacheDirFlag.Name))
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("missing --%s", cacheDirFlag.Name)
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	meta := remote.Meta{ChainID: chainID, Block: block}
	data, err := store.Get(remote.CacheKey(meta))
	if errors.Is(err, cachestore.ErrNotFound) {
		fmt.Printf("No cache for chain %d at block %d\n", chainID, block)
		return nil
	}
	if err != nil {
		return err
	}

	db := remote.NewBlockchainDb(meta)
	if err := db.Decode(data); err != nil {
		return err
	}
	accounts, slots, hashes := db.Size()
	fmt.Printf("Cache for chain %d at block %d:\n", chainID, block)
	fmt.Printf("\taccounts:     %d\n", accounts)
	fmt.Printf("\tslots:        %d\n", slots)
	fmt.Printf("\tblock hashes: %d\n", hashes)
	fmt.Printf("\tencoded size: %d bytes\n", len(data))
	return nil
}
