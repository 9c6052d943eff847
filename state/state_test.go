// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"testing"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/stretchr/testify/require"
)

var _ StateSource = EmptySource{}
var _ StateSource = (*MockStateSource)(nil)
var _ State = (*MockState)(nil)

func TestEmptySource_HasNoAccountsAndZeroStorage(t *testing.T) {
	require := require.New(t)
	source := EmptySource{}

	info, err := source.Basic(common.Address{1})
	require.NoError(err)
	require.Nil(info)

	value, err := source.Storage(common.Address{1}, common.Hash{2})
	require.NoError(err)
	require.Equal(common.Hash{}, value)

	code, err := source.CodeByHash(common.EmptyCodeHash)
	require.NoError(err)
	require.Empty(code)
}

func TestEmptySource_BlockHashesAreDistinct(t *testing.T) {
	source := EmptySource{}
	h1, err := source.BlockHash(1)
	require.NoError(t, err)
	h2, err := source.BlockHash(2)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
	require.Equal(t, common.Keccak256([]byte("1")), h1)
}
