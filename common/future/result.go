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

import "errors"

// Result encapsulates a value along with an error. It is used where a single
// type is needed to carry the outcome of an operation, for instance when
// collecting the answers of parallel remote requests over a channel.
type Result[T any] struct {
	Value T
	Error error
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

// Get returns the value and error contained in the Result.
func (r Result[T]) Get() (T, error) {
	return r.Value, r.Error
}

// Collect unpacks a list of results. All values are returned in order; the
// error is the join of all contained errors.
func Collect[T any](results ...Result[T]) ([]T, error) {
	values := make([]T, 0, len(results))
	var errs []error
	for _, r := range results {
		values = append(values, r.Value)
		if r.Error != nil {
			errs = append(errs, r.Error)
		}
	}
	return values, errors.Join(errs...)
}
