// Copyright 2025 Poiesic Systems
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


package core

import (
	"fmt"
	"strings"
)

// ValidateScope checks that an authorization scope was supplied.
// The token itself is never interpreted.
func ValidateScope(scope Scope) error {
	if strings.TrimSpace(string(scope)) == "" {
		return ErrEmptyScope
	}
	return nil
}

// ValidateDocument validates a reconciliation request.
//
// Validation rules:
//   - Scope must not be empty
//   - DocumentID must not be empty
//
// NOT validated:
//   - texts (an empty slice tombstones every unit in the document)
//   - individual texts (empty strings are valid evidence units)
func ValidateDocument(scope Scope, documentID string) error {
	if err := ValidateScope(scope); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentID)
	}
	return nil
}

// ValidateQuery validates a query request.
func ValidateQuery(scope Scope, query string) error {
	if err := ValidateScope(scope); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if NormalizeText(query) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrEmptyQuery)
	}
	return nil
}
