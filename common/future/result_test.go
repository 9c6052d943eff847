// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package future

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResult_OkAndErr(t *testing.T) {
	value, err := Ok(12).Get()
	require.NoError(t, err)
	require.Equal(t, 12, value)

	injected := fmt.Errorf("injected")
	_, err = Err[int](injected).Get()
	require.ErrorIs(t, err, injected)
}

func TestCollect_KeepsOrderAndJoinsErrors(t *testing.T) {
	values, err := Collect(Ok(1), Ok(2), Ok(3))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, values)

	e1 := fmt.Errorf("e1")
	e2 := fmt.Errorf("e2")
	_, err = Collect(Err[int](e1), Ok(2), Err[int](e2))
	require.ErrorIs(t, err, e1)
	require.ErrorIs(t, err, e2)
}
