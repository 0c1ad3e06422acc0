// Copyright 2025 Kadir Pekel
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

package main

import "github.com/kadirpekel/lawbase/internal/lawerr"

// exitCode maps a returned error to spec §6's indexing tool exit codes: 0
// success, 2 invariant violation, 3 I/O error, 4 cancelled. Kinds the spec
// doesn't name a code for (invalid_input, already_indexed, store_unavailable,
// embedding_failure) are folded into 3, since all of them surface as the
// operation failing to read, write, or reach something external.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := lawerr.KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case lawerr.InvariantViolation:
		return 2
	case lawerr.Cancelled:
		return 4
	case lawerr.InvalidInput, lawerr.AlreadyIndexed, lawerr.StoreUnavailable, lawerr.EmbeddingFailure:
		return 3
	default:
		return 1
	}
}
