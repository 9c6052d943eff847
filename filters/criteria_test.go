// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package filters

import (
	"testing"

	"github.com/0xsoniclabs/forkchain/common"
	"github.com/0xsoniclabs/forkchain/executor"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestCriteria_Matches(t *testing.T) {
	a, b := common.Address{0xa}, common.Address{0xb}
	t1, t2, t3 := common.Hash{1}, common.Hash{2}, common.Hash{3}
	log := &types.Log{Address: a, Topics: []common.Hash{t1, t2}}

	tests := map[string]struct {
		criteria Criteria
		match    bool
	}{
		"empty":                   {Criteria{}, true},
		"address":                 {Criteria{Addresses: []common.Address{a}}, true},
		"one of addresses":        {Criteria{Addresses: []common.Address{b, a}}, true},
		"other address":           {Criteria{Addresses: []common.Address{b}}, false},
		"first topic":             {Criteria{Topics: [][]common.Hash{{t1}}}, true},
		"wildcard then topic":     {Criteria{Topics: [][]common.Hash{nil, {t2}}}, true},
		"one of topics":           {Criteria{Topics: [][]common.Hash{{t3, t1}}}, true},
		"wrong position":          {Criteria{Topics: [][]common.Hash{{t2}}}, false},
		"more topics than log":    {Criteria{Topics: [][]common.Hash{{t1}, {t2}, nil}}, false},
		"address and topic":       {Criteria{Addresses: []common.Address{a}, Topics: [][]common.Hash{{t1}}}, true},
		"address and other topic": {Criteria{Addresses: []common.Address{a}, Topics: [][]common.Hash{{t3}}}, false},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := newMatcher(&test.criteria)
			require.Equal(t, test.match, m.matches(log))
		})
	}
}

func TestCriteria_BloomPrecheck(t *testing.T) {
	a, b := common.Address{0xa}, common.Address{0xb}
	t1, t2 := common.Hash{1}, common.Hash{2}
	bloom := executor.LogsBloom([]*types.Log{{Address: a, Topics: []common.Hash{t1}}})

	require := require.New(t)
	require.True(newMatcher(&Criteria{}).mayContain(bloom))
	require.True(newMatcher(&Criteria{Addresses: []common.Address{b, a}}).mayContain(bloom))
	require.True(newMatcher(&Criteria{Topics: [][]common.Hash{{t2, t1}}}).mayContain(bloom))
	require.False(newMatcher(&Criteria{Addresses: []common.Address{b}}).mayContain(bloom))
	require.False(newMatcher(&Criteria{Topics: [][]common.Hash{nil, {t2}}}).mayContain(bloom))
}

func TestCriteria_BlockRange(t *testing.T) {
	from, to := uint64(5), uint64(7)
	m := newMatcher(&Criteria{FromBlock: &from, ToBlock: &to})
	require.False(t, m.inRange(4))
	require.True(t, m.inRange(5))
	require.True(t, m.inRange(7))
	require.False(t, m.inRange(8))
	require.True(t, newMatcher(nil).inRange(0))
}

func TestCriteria_Check(t *testing.T) {
	hash := common.Hash{1}
	low, high := uint64(1), uint64(2)
	require.NoError(t, (&Criteria{}).Check())
	require.NoError(t, (&Criteria{FromBlock: &low, ToBlock: &high}).Check())
	require.NoError(t, (&Criteria{BlockHash: &hash}).Check())
	require.ErrorIs(t, (&Criteria{FromBlock: &high, ToBlock: &low}).Check(), ErrInvalidCriteria)
	require.ErrorIs(t, (&Criteria{BlockHash: &hash, FromBlock: &low}).Check(), ErrInvalidCriteria)
}

func TestCriteria_CopyIsDeep(t *testing.T) {
	from := uint64(1)
	original := &Criteria{
		FromBlock: &from,
		Addresses: []common.Address{{1}},
		Topics:    [][]common.Hash{{{1}}},
	}
	cp := original.Copy()
	require.Equal(t, original, cp)

	*cp.FromBlock = 2
	cp.Addresses[0] = common.Address{2}
	cp.Topics[0][0] = common.Hash{2}
	require.Equal(t, uint64(1), *original.FromBlock)
	require.Equal(t, common.Address{1}, original.Addresses[0])
	require.Equal(t, common.Hash{1}, original.Topics[0][0])
}
