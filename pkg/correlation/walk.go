// Copyright 2025 Tom Barlow
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

package correlation

// findFirst walks the forest rooted at roots depth-first in pre-order and
// returns the first node for which match reports true. Siblings are visited
// in slice order, so the result is the first match in backend order.
//
// An explicit stack is used so arbitrarily deep documents cannot exhaust
// the goroutine stack.
func findFirst[T any](roots []T, children func(*T) []T, match func(*T) bool) (*T, bool) {
	stack := make([]*T, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, &roots[i])
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if match(n) {
			return n, true
		}

		kids := children(n)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, &kids[i])
		}
	}
	return nil, false
}

func subsegmentChildren(s *Subsegment) []Subsegment { return s.Subsegments }
